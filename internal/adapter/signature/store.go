// Package signature loads and validates the weighted rule set used to
// classify bait-server traffic.
package signature

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/V4T54L/baitwatch/internal/domain"
)

// SupportedVersion is the only configuration version understood by Load.
const SupportedVersion = 1

//go:embed defaults.yaml
var defaultSignatures []byte

// Record is one rule as written in the configuration source.
type Record struct {
	ID            string `yaml:"id" json:"id"`
	Target        string `yaml:"target" json:"target"`
	Pattern       string `yaml:"pattern" json:"pattern"`
	Category      string `yaml:"category" json:"category"`
	ScoreDelta    *int   `yaml:"score_delta" json:"score_delta"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
}

type document struct {
	Version int      `yaml:"version"`
	Rules   []Record `yaml:"rules"`
}

// Store is an immutable, ordered set of validated signature rules.
// It is safe for concurrent use.
type Store struct {
	version  int
	source   string
	rules    []domain.SignatureRule
	byTarget map[domain.TargetField][]domain.SignatureRule
}

var _ domain.RuleSet = (*Store)(nil)

// Load reads and validates the signature file at path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signature file %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Default returns the embedded default signature set.
func Default() (*Store, error) {
	return Parse(bytes.NewReader(defaultSignatures), "embedded:defaults.yaml")
}

// Parse decodes a YAML (or JSON) signature document from r. source names the
// origin in error messages.
func Parse(r io.Reader, source string) (*Store, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: empty document", domain.ErrInvalidSignatures, source)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidSignatures, source, err)
	}

	if doc.Version != SupportedVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d (want %d)",
			domain.ErrInvalidSignatures, source, doc.Version, SupportedVersion)
	}

	s, err := NewStore(doc.Version, doc.Rules)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	s.source = source
	return s, nil
}

// NewStore validates records and builds a store preserving their order.
// Every validation problem is reported in the returned error.
func NewStore(version int, records []Record) (*Store, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no rules defined", domain.ErrInvalidSignatures)
	}

	var errs []error
	seen := make(map[string]int, len(records))
	rules := make([]domain.SignatureRule, 0, len(records))

	for i, rec := range records {
		ruleErrs := validate(rec)
		if rec.ID != "" {
			if first, dup := seen[rec.ID]; dup {
				ruleErrs = append(ruleErrs, fmt.Errorf("duplicate id (first defined at rule #%d)", first))
			} else {
				seen[rec.ID] = i
			}
		}
		if len(ruleErrs) > 0 {
			errs = append(errs, fmt.Errorf("rule #%d (%q): %w", i, rec.ID, errors.Join(ruleErrs...)))
			continue
		}

		rule, err := domain.NewSignatureRule(rec.ID, domain.TargetField(rec.Target), rec.Pattern,
			rec.Category, *rec.ScoreDelta, i, rec.CaseSensitive)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule #%d (%q): %w", i, rec.ID, err))
			continue
		}
		rules = append(rules, rule)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignatures, errors.Join(errs...))
	}

	byTarget := make(map[domain.TargetField][]domain.SignatureRule, 2)
	for _, r := range rules {
		byTarget[r.Target] = append(byTarget[r.Target], r)
	}

	return &Store{version: version, rules: rules, byTarget: byTarget}, nil
}

func validate(rec Record) []error {
	var errs []error
	if rec.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if !domain.TargetField(rec.Target).Valid() {
		errs = append(errs, fmt.Errorf("unknown target %q", rec.Target))
	}
	if rec.Pattern == "" {
		errs = append(errs, errors.New("pattern is required"))
	}
	if rec.Category == "" {
		errs = append(errs, errors.New("category is required"))
	}
	if rec.ScoreDelta == nil {
		errs = append(errs, errors.New("score_delta is required"))
	}
	return errs
}

// RulesFor returns the rules evaluated against field, in insertion order.
func (s *Store) RulesFor(field domain.TargetField) []domain.SignatureRule {
	return slices.Clone(s.byTarget[field])
}

// Rules returns every rule in insertion order.
func (s *Store) Rules() []domain.SignatureRule {
	return slices.Clone(s.rules)
}

// Version is the configuration version the store was loaded from.
func (s *Store) Version() int { return s.version }

// Source names where the rules came from.
func (s *Store) Source() string { return s.source }

// Len returns the number of loaded rules.
func (s *Store) Len() int { return len(s.rules) }
