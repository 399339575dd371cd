package report

import (
	"fmt"
	"strings"
)

// Fallback builds a deterministic, rule-based report directly from the
// request. It is used whenever the model path cannot produce a valid result
// and never fails: the same request always yields the same report, carrying
// the fixed FallbackConfidence score.
func Fallback(req DraftRequest) StructuredReport {
	return StructuredReport{
		Technique:       fallbackTechnique(req),
		Findings:        fallbackFindings(req.Findings),
		Impression:      fallbackImpression(req.Findings),
		ConfidenceScore: FallbackConfidence,
		Source:          SourceFallback,
	}
}

func fallbackTechnique(req DraftRequest) string {
	switch {
	case req.Modality != "" && req.View != "":
		return fmt.Sprintf("%s, %s obtained.", req.Modality, req.View)
	case req.Modality != "":
		return fmt.Sprintf("%s obtained.", req.Modality)
	default:
		return "Imaging study obtained per departmental protocol."
	}
}

func fallbackFindings(findings []Finding) string {
	if len(findings) == 0 {
		return "No findings documented."
	}
	sentences := make([]string, 0, len(findings))
	for _, f := range findings {
		s := fmt.Sprintf("%s demonstrates %s %s", capitalize(f.Location), f.Severity, f.Type)
		if f.AdditionalDetails != "" {
			s += "; " + f.AdditionalDetails
		}
		sentences = append(sentences, s+".")
	}
	return strings.Join(sentences, " ")
}

func fallbackImpression(findings []Finding) string {
	if len(findings) == 0 {
		return "No acute findings documented. Clinical correlation recommended."
	}
	worst := findings[0]
	for _, f := range findings[1:] {
		if f.Severity.Rank() > worst.Severity.Rank() {
			worst = f
		}
	}
	noun := "findings"
	if len(findings) == 1 {
		noun = "finding"
	}
	return fmt.Sprintf("%d documented %s; most significant: %s %s in the %s. Clinical correlation recommended.",
		len(findings), noun, worst.Severity, worst.Type, strings.ToLower(worst.Location))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
