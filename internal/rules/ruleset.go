package rules

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// FileSource loads the rule corpus from a YAML file. Each Load reads the
// file again, so a reload picks up a new corpus version without touching
// rule sets already handed to in-flight batches.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(_ context.Context) (domain.RuleSet, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("read rule corpus: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML rule corpus.
func Parse(raw []byte) (domain.RuleSet, error) {
	var set domain.RuleSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return domain.RuleSet{}, fmt.Errorf("decode rule corpus: %w", err)
	}
	if err := Validate(set); err != nil {
		return domain.RuleSet{}, err
	}
	if set.SeverityPenalties == nil {
		set.SeverityPenalties = DefaultSeverityPenalties()
	}
	return set, nil
}

// DefaultSeverityPenalties mirrors the corpus default scoring policy.
func DefaultSeverityPenalties() map[domain.Severity]float64 {
	return map[domain.Severity]float64{
		domain.SeverityError: 0.25,
		domain.SeverityWarn:  0.05,
		domain.SeverityInfo:  0,
	}
}

func Validate(set domain.RuleSet) error {
	if set.Version == "" {
		return fmt.Errorf("rule corpus: missing version")
	}
	seen := make(map[string]struct{}, len(set.Rules))
	for i, rule := range set.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule corpus: rule %d has no id", i)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule corpus: duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		switch rule.Severity {
		case domain.SeverityInfo, domain.SeverityWarn, domain.SeverityError:
		default:
			return fmt.Errorf("rule corpus: rule %q has unknown severity %q", rule.ID, rule.Severity)
		}
		if rule.Predicate.Kind == "" {
			return fmt.Errorf("rule corpus: rule %q has no predicate kind", rule.ID)
		}
	}
	return nil
}
