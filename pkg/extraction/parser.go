package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

var (
	errNoJSONObject   = errors.New("no JSON object in model output")
	errSchemaMismatch = errors.New("model output does not match medicines schema")
)

// maxCandidates bounds how many brace spans are tried on adversarial input.
const maxCandidates = 64

// ParseMedicines extracts the medicines list from free-form model output.
// The greedy span from the first '{' to the last '}' is tried first, then
// every balanced span in order of its opening brace. The first span that
// decodes and matches the schema wins.
func ParseMedicines(output string) ([]models.Medicine, error) {
	candidates := candidateSpans(output)
	if len(candidates) == 0 {
		return nil, errNoJSONObject
	}

	var lastErr error
	for _, span := range candidates {
		meds, err := decodeMedicines(span)
		if err == nil {
			return meds, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func candidateSpans(s string) []string {
	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first < 0 || last < first {
		return nil
	}

	spans := []string{s[first : last+1]}
	seen := map[string]struct{}{spans[0]: {}}
	for i := first; i < len(s) && len(spans) < maxCandidates; i++ {
		if s[i] != '{' {
			continue
		}
		end := balancedEnd(s, i)
		if end < 0 {
			continue
		}
		span := s[i : end+1]
		if _, ok := seen[span]; ok {
			continue
		}
		seen[span] = struct{}{}
		spans = append(spans, span)
	}
	return spans
}

// balancedEnd returns the index of the brace closing the object opened at
// start, honouring JSON string literals, or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeMedicines(span string) ([]models.Medicine, error) {
	var envelope struct {
		Medicines *[]json.RawMessage `json:"medicines"`
	}
	if err := json.Unmarshal([]byte(span), &envelope); err != nil {
		return nil, fmt.Errorf("decoding span: %w", err)
	}
	if envelope.Medicines == nil {
		return nil, fmt.Errorf("%w: missing medicines array", errSchemaMismatch)
	}

	meds := make([]models.Medicine, 0, len(*envelope.Medicines))
	for i, raw := range *envelope.Medicines {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("%w: entry %d is not an object", errSchemaMismatch, i)
		}

		var med models.Medicine
		targets := []struct {
			key string
			dst *string
		}{
			{"name", &med.Name},
			{"dosage", &med.Dosage},
			{"route", &med.Route},
			{"frequency", &med.Frequency},
			{"duration", &med.Duration},
		}
		for _, t := range targets {
			v, err := fieldValue(fields[t.key])
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d field %s: %v", errSchemaMismatch, i, t.key, err)
			}
			*t.dst = v
		}
		meds = append(meds, med)
	}
	return meds, nil
}

// fieldValue accepts strings and numbers. Absent, null and blank values
// become the NotSpecified sentinel.
func fieldValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return models.NotSpecified, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return models.NotSpecified, nil
		}
		return s, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unsupported value %s", string(raw))
}
