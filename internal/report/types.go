// Package report holds the domain model for structured report drafting:
// the request and report types, the response parser, the deterministic
// fallback synthesizer, and the Drafter that composes the pipeline.
package report

import (
	"fmt"
	"strings"
)

// Severity grades a finding. Only the three enumerated values are valid.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// ParseSeverity normalizes and validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityMild:
		return SeverityMild, nil
	case SeverityModerate:
		return SeverityModerate, nil
	case SeveritySevere:
		return SeveritySevere, nil
	default:
		return "", fmt.Errorf("unknown severity: %q (valid: mild, moderate, severe)", s)
	}
}

// Rank orders severities for triage comparisons. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	default:
		return 0
	}
}

// Finding is a single structured radiological observation.
type Finding struct {
	Location          string   `json:"location"`
	Type              string   `json:"type"`
	Severity          Severity `json:"severity"`
	AdditionalDetails string   `json:"additionalDetails,omitempty"`
}

// ClinicalContext carries the patient-level context for a study.
type ClinicalContext struct {
	PatientInfo          string `json:"patientInfo"`
	ClinicalPresentation string `json:"clinicalPresentation"`
	RelevantHistory      string `json:"relevantHistory,omitempty"`
}

// DraftRequest is the caller-owned input record for one report draft.
// The pipeline treats it as read-only.
type DraftRequest struct {
	Findings []Finding       `json:"findings"`
	Context  ClinicalContext `json:"clinicalContext"`
	Modality string          `json:"modality,omitempty"`
	View     string          `json:"view,omitempty"`
}

// Validate checks the request shape before any generation work starts.
// An empty findings list is rejected outright: there is nothing to report on.
func (r DraftRequest) Validate() error {
	if len(r.Findings) == 0 {
		return &ValidationError{Reason: "findings list is empty"}
	}
	for i, f := range r.Findings {
		if strings.TrimSpace(f.Location) == "" {
			return &ValidationError{Reason: fmt.Sprintf("finding %d: location is required", i+1)}
		}
		if strings.TrimSpace(f.Type) == "" {
			return &ValidationError{Reason: fmt.Sprintf("finding %d: type is required", i+1)}
		}
		if _, err := ParseSeverity(string(f.Severity)); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("finding %d: %v", i+1, err)}
		}
	}
	if strings.TrimSpace(r.Context.PatientInfo) == "" {
		return &ValidationError{Reason: "clinicalContext.patientInfo is required"}
	}
	if strings.TrimSpace(r.Context.ClinicalPresentation) == "" {
		return &ValidationError{Reason: "clinicalContext.clinicalPresentation is required"}
	}
	return nil
}

// ReportSource records which path produced a report.
type ReportSource string

const (
	// SourceModel marks a report parsed from model output; its confidence
	// score is model-reported.
	SourceModel ReportSource = "model"
	// SourceFallback marks a deterministic template report; its confidence
	// score is always FallbackConfidence.
	SourceFallback ReportSource = "fallback"
)

const (
	// FallbackConfidence is the fixed score carried by every fallback report.
	FallbackConfidence = 0.3
	// DefaultConfidence is assumed when the model omits confidenceScore.
	DefaultConfidence = 0.7
)

// StructuredReport is the only artifact the pipeline returns. It is always
// fully populated; partial reports are not a valid output state.
type StructuredReport struct {
	Technique       string       `json:"technique"`
	Findings        string       `json:"findings"`
	Impression      string       `json:"impression"`
	ConfidenceScore float64      `json:"confidenceScore"`
	Source          ReportSource `json:"source"`
}

// ValidationError indicates malformed caller input. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid draft request: " + e.Reason
}

// ParseError indicates the model reply could not be decoded into a
// StructuredReport. The Drafter absorbs it; it never crosses the pipeline
// boundary.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparseable model reply: " + e.Reason
}
