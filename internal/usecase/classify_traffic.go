package usecase

import (
	"slices"

	"github.com/V4T54L/baitwatch/internal/domain"
)

// Classifier derives a threat classification from a request's user agent
// and path.
type Classifier interface {
	Classify(userAgent, path string) domain.ClassificationResult
}

// TrafficClassifier scores requests against an immutable rule set. It holds
// no mutable state and is safe for concurrent use.
type TrafficClassifier struct {
	userAgentRules []domain.SignatureRule
	pathRules      []domain.SignatureRule
}

var _ Classifier = (*TrafficClassifier)(nil)

// NewTrafficClassifier snapshots the rules of rs.
func NewTrafficClassifier(rs domain.RuleSet) *TrafficClassifier {
	return &TrafficClassifier{
		userAgentRules: rs.RulesFor(domain.TargetUserAgent),
		pathRules:      rs.RulesFor(domain.TargetPath),
	}
}

// Classify evaluates every user-agent rule against userAgent and every path
// rule against path. The score is the sum of all matching deltas; the
// category comes from the match with the largest absolute delta, the
// earliest rule winning ties.
func (c *TrafficClassifier) Classify(userAgent, path string) domain.ClassificationResult {
	var matched []domain.SignatureRule
	for _, r := range c.userAgentRules {
		if r.Matches(userAgent) {
			matched = append(matched, r)
		}
	}
	for _, r := range c.pathRules {
		if r.Matches(path) {
			matched = append(matched, r)
		}
	}
	slices.SortStableFunc(matched, func(a, b domain.SignatureRule) int {
		return a.Order - b.Order
	})

	result := domain.ClassificationResult{
		Category:        domain.UnknownCategory,
		MatchedPatterns: make([]string, 0, len(matched)),
	}
	best := -1
	for _, r := range matched {
		result.ThreatScore += r.ScoreDelta
		result.MatchedPatterns = append(result.MatchedPatterns, r.Category)
		if abs(r.ScoreDelta) > best {
			best = abs(r.ScoreDelta)
			result.Category = r.Category
		}
	}
	result.ThreatLevel = domain.ThreatLevelFor(result.ThreatScore)
	return result
}

// ClassifyEvents pairs each stored event with its classification. Identical
// (user agent, path) pairs within the batch are classified once.
func ClassifyEvents(c Classifier, events []domain.RawTrafficEvent) []domain.ClassifiedEvent {
	type pair struct{ ua, path string }
	seen := make(map[pair]domain.ClassificationResult)

	out := make([]domain.ClassifiedEvent, 0, len(events))
	for _, e := range events {
		k := pair{e.UserAgent, e.Path}
		res, ok := seen[k]
		if !ok {
			res = c.Classify(e.UserAgent, e.Path)
			seen[k] = res
		}
		out = append(out, domain.ClassifiedEvent{RawTrafficEvent: e, Classification: res})
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
