package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-mastery/internal/assessment"
)

const DefaultInstitution = "default"

// RuleBook maps an institution type (university, school, ...) to the rules
// its evaluation sessions run with.
//
//	profiles:
//	  default:    {max_items: 10, difficulty_levels: 5, mastery_threshold: 95, initial_mastery: 25}
//	  school:     {max_items: 12, mastery_threshold: 90}
type RuleBook struct {
	Profiles map[string]assessment.Rules `yaml:"profiles"`
}

// DefaultRuleBook holds only the default profile.
func DefaultRuleBook() RuleBook {
	return RuleBook{Profiles: map[string]assessment.Rules{DefaultInstitution: assessment.DefaultRules()}}
}

// profile is the on-disk shape of one entry; nil marks a field left out,
// so an explicit 0 survives inheritance.
type profile struct {
	MaxItems         *int `yaml:"max_items"`
	DifficultyLevels *int `yaml:"difficulty_levels"`
	MasteryThreshold *int `yaml:"mastery_threshold"`
	InitialMastery   *int `yaml:"initial_mastery"`
}

// LoadRuleBook reads a YAML rule book. An empty path yields DefaultRuleBook.
func LoadRuleBook(path string) (RuleBook, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRuleBook(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return RuleBook{}, fmt.Errorf("rules: %w", err)
	}
	defer f.Close()
	return ParseRuleBook(f)
}

// ParseRuleBook decodes and validates a rule book. Profile fields left out
// inherit from the default profile.
func ParseRuleBook(r io.Reader) (RuleBook, error) {
	var rb struct {
		Profiles map[string]profile `yaml:"profiles"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rb); err != nil && err != io.EOF {
		return RuleBook{}, fmt.Errorf("rules: decode: %w", err)
	}
	base := assessment.DefaultRules()
	if d, ok := rb.Profiles[DefaultInstitution]; ok {
		base = inherit(d, base)
	}
	out := RuleBook{Profiles: map[string]assessment.Rules{DefaultInstitution: base}}
	for name, p := range rb.Profiles {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == DefaultInstitution {
			continue
		}
		out.Profiles[key] = inherit(p, base)
	}
	for name, p := range out.Profiles {
		if err := p.Validate(); err != nil {
			return RuleBook{}, fmt.Errorf("rules: profile %s: %w", name, err)
		}
	}
	return out, nil
}

// For returns the rules of an institution type, falling back to the default profile.
func (rb RuleBook) For(institution string) assessment.Rules {
	if p, ok := rb.Profiles[strings.ToLower(strings.TrimSpace(institution))]; ok {
		return p
	}
	if p, ok := rb.Profiles[DefaultInstitution]; ok {
		return p
	}
	return assessment.DefaultRules()
}

func inherit(p profile, base assessment.Rules) assessment.Rules {
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.MaxItems, p.MaxItems)
	set(&base.DifficultyLevels, p.DifficultyLevels)
	set(&base.MasteryThreshold, p.MasteryThreshold)
	set(&base.InitialMastery, p.InitialMastery)
	return base
}
