package dlp

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
		return RulesConfig{}, errors.New("no DLP rules configured")
	}

	return cfg, nil
}

// DefaultRules covers identifiers that commonly survive model redaction on
// prescriptions: phone numbers, dates of birth, e-mail addresses and
// hospital record numbers.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "Phone", Type: "phone", Pattern: `(?:\+?\d{1,3}[\s-]?)?\b\d{10}\b|\b\d{3}-\d{3}-\d{4}\b|\(\d{3}\)\s?\d{3}-\d{4}\b`, Enabled: true, Severity: "medium"},
		{Name: "DOB", Type: "dob", Pattern: `\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`, Enabled: true, Severity: "medium"},
		{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Enabled: true, Severity: "medium"},
		{Name: "SSN", Type: "ssn", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Enabled: true, Severity: "high"},
		{Name: "UHID", Type: "patient_id", Pattern: `(?i)\b(?:UHID|MRN|IP\s?No|OP\s?No)\b\s*[:#.-]?\s*[A-Z0-9/-]{4,}`, Enabled: true, Severity: "high"},
	}}
}
