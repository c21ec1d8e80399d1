package guardrail

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}

	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no guardrail rules configured")
	}

	return cfg, nil
}

// DefaultRules covers the raw identifier shapes that must never appear in a
// pseudonymized transcript.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "Aadhaar", Type: "ID_NUMBER", Pattern: `\b\d{4}\s?\d{4}\s?\d{4}\b`, Enabled: true, Severity: "high"},
		{Name: "Phone", Type: "PHONE_NUMBER", Pattern: `\b(\+91[\s-]?)?[6-9]\d{9}\b`, Enabled: true, Severity: "high"},
		{Name: "Email", Type: "EMAIL_ADDRESS", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Enabled: true, Severity: "medium"},
		{Name: "DOB", Type: "DATE_TIME", Pattern: `\b\d{1,2}/\d{1,2}/\d{4}\b`, Enabled: true, Severity: "medium"},
	}}
}
