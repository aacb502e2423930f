package domain

import (
	"fmt"
	"regexp"
)

// TargetField names the request field a SignatureRule is evaluated against.
type TargetField string

const (
	TargetUserAgent TargetField = "user_agent"
	TargetPath      TargetField = "path"
)

// Valid reports whether f is a known target field.
func (f TargetField) Valid() bool {
	return f == TargetUserAgent || f == TargetPath
}

// SignatureRule is one weighted pattern. Rules are immutable once loaded.
type SignatureRule struct {
	ID         string
	Target     TargetField
	Pattern    string
	Category   string
	ScoreDelta int
	// Order is the zero-based position of the rule in its configuration source.
	Order int

	re *regexp.Regexp
}

// NewSignatureRule compiles pattern and returns a ready rule.
func NewSignatureRule(id string, target TargetField, pattern, category string, scoreDelta, order int, caseSensitive bool) (SignatureRule, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return SignatureRule{}, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return SignatureRule{
		ID:         id,
		Target:     target,
		Pattern:    pattern,
		Category:   category,
		ScoreDelta: scoreDelta,
		Order:      order,
		re:         re,
	}, nil
}

// Matches reports whether the rule's pattern matches anywhere in value.
func (r SignatureRule) Matches(value string) bool {
	if r.re == nil {
		return false
	}
	return r.re.MatchString(value)
}

// RuleSet is a read-only, ordered view over loaded signature rules.
type RuleSet interface {
	// RulesFor returns the rules targeting field, in insertion order.
	RulesFor(field TargetField) []SignatureRule
	// Rules returns every rule in insertion order.
	Rules() []SignatureRule
}

// ThreatLevel is the coarse verdict derived from a threat score.
type ThreatLevel string

const (
	ThreatBenign         ThreatLevel = "benign"
	ThreatReconnaissance ThreatLevel = "reconnaissance"
	ThreatMalicious      ThreatLevel = "malicious"
)

// MaliciousThreshold is the lowest score classified as malicious.
const MaliciousThreshold = 20

// UnknownCategory is reported when no rule matches.
const UnknownCategory = "unknown"

// ThreatLevelFor maps a score onto its threat level. Bands are checked in
// order: negative, below MaliciousThreshold, everything else.
func ThreatLevelFor(score int) ThreatLevel {
	switch {
	case score < 0:
		return ThreatBenign
	case score < MaliciousThreshold:
		return ThreatReconnaissance
	default:
		return ThreatMalicious
	}
}

// ClassificationResult is derived per request and never persisted.
type ClassificationResult struct {
	Category        string      `json:"category"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	ThreatScore     int         `json:"threat_score"`
	MatchedPatterns []string    `json:"matched_patterns"`
}
