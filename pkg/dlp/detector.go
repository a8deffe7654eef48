package dlp

import (
	"fmt"
	"regexp"
	"sort"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Finding is one identifier-like span. Value is deliberately not retained.
type Finding struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type Result struct {
	Detected   bool      `json:"detected"`
	Confidence float64   `json:"confidence"`
	Types      []string  `json:"types"`
	Findings   []Finding `json:"findings"`
}

type Detector struct {
	rules []compiledRule
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

// Detect scans text without modifying it.
func (d *Detector) Detect(text string) Result {
	if d == nil || text == "" {
		return Result{}
	}

	var findings []Finding
	types := make(map[string]struct{})
	for _, rule := range d.rules {
		matches := rule.re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		types[rule.rule.Type] = struct{}{}
		for _, match := range matches {
			findings = append(findings, Finding{Type: rule.rule.Type, Start: match[0], End: match[1]})
		}
	}

	typeList := make([]string, 0, len(types))
	for t := range types {
		typeList = append(typeList, t)
	}
	sort.Strings(typeList)

	return Result{
		Detected:   len(findings) > 0,
		Confidence: confidenceScore(len(findings)),
		Types:      typeList,
		Findings:   findings,
	}
}

func confidenceScore(count int) float64 {
	switch {
	case count == 0:
		return 0
	case count == 1:
		return 0.7
	case count == 2:
		return 0.85
	default:
		return 0.95
	}
}
