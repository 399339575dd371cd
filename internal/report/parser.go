package report

import (
	"encoding/json"
	"strings"
)

// reportPayload mirrors the JSON object the model is instructed to emit.
// ConfidenceScore is a pointer so a missing score can be told apart from an
// explicit zero.
type reportPayload struct {
	Technique       string   `json:"technique"`
	Findings        string   `json:"findings"`
	Impression      string   `json:"impression"`
	ConfidenceScore *float64 `json:"confidenceScore"`
}

// ParseReport extracts a StructuredReport from raw model text. The model is
// asked for bare JSON but often wraps it in prose or code fences, so the
// parser scans for balanced top-level JSON objects and takes the first one
// that decodes with the required keys. It performs no retries and has no
// side effects; failures are *ParseError.
func ParseReport(raw string) (StructuredReport, error) {
	spans := extractJSONObjects(raw)
	if len(spans) == 0 {
		return StructuredReport{}, &ParseError{Reason: "no balanced JSON object found in model reply"}
	}

	var lastErr string
	for _, span := range spans {
		var payload reportPayload
		if err := json.Unmarshal([]byte(span), &payload); err != nil {
			lastErr = err.Error()
			continue
		}
		rep, err := validatePayload(payload)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		return rep, nil
	}
	return StructuredReport{}, &ParseError{Reason: "no JSON object matched the report schema: " + lastErr}
}

// validatePayload checks required fields and normalizes the confidence score.
func validatePayload(p reportPayload) (StructuredReport, error) {
	if strings.TrimSpace(p.Technique) == "" {
		return StructuredReport{}, &ParseError{Reason: "missing or empty technique"}
	}
	if strings.TrimSpace(p.Findings) == "" {
		return StructuredReport{}, &ParseError{Reason: "missing or empty findings"}
	}
	if strings.TrimSpace(p.Impression) == "" {
		return StructuredReport{}, &ParseError{Reason: "missing or empty impression"}
	}

	score := DefaultConfidence
	if p.ConfidenceScore != nil {
		// Scores slightly outside [0,1] are clamped rather than rejected;
		// minor model error should not discard an otherwise valid report.
		score = clamp(*p.ConfidenceScore, 0, 1)
	}

	return StructuredReport{
		Technique:       p.Technique,
		Findings:        p.Findings,
		Impression:      p.Impression,
		ConfidenceScore: score,
		Source:          SourceModel,
	}, nil
}

// extractJSONObjects returns every balanced top-level {...} span in text,
// in order of appearance. Unbalanced trailing braces yield no span.
func extractJSONObjects(text string) []string {
	var spans []string
	for i := 0; i < len(text); {
		if text[i] != '{' {
			i++
			continue
		}
		start := i
		depth := 0
		end := -1
		for j := i; j < len(text); j++ {
			switch text[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = j
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			break
		}
		spans = append(spans, text[start:end+1])
		i = end + 1
	}
	return spans
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
