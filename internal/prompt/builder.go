// Package prompt turns a structured draft request into the system and user
// text sent to the generation service. Building is pure: identical requests
// produce byte-identical prompts.
package prompt

import (
	"fmt"
	"strings"

	"radreport/internal/report"
)

const systemText = `You are an experienced, board-certified radiologist specializing in diagnostic imaging.
Your role is to generate high-quality, clinically useful radiology reports from structured inputs.

You DO NOT see images directly. You only receive:
- Clinical indication and relevant history.
- Imaging metadata (modality, view).
- Structured findings entered or confirmed by a human radiologist.

Your responsibilities:
1. Draft a professional, concise, and clinically accurate radiology report.
2. Maintain internal consistency between TECHNIQUE, FINDINGS, and IMPRESSION.
3. Use standard radiology language and hedging appropriately (e.g., "compatible with", "suspicious for").
4. Never infer or fabricate imaging details that are not explicitly given in the input.
5. Remain modality-aware and avoid stating findings that are impossible for the given modality.

Report structure:
- TECHNIQUE: concise description of how the study was performed. Use provided metadata; do not invent parameters.
- FINDINGS: objective, structured description of what is seen, organized by anatomic region where appropriate.
- IMPRESSION: short, prioritized summary of the most important, actionable findings.

Output format:
You MUST respond with a single JSON object with the following keys:
- "technique": string
- "findings": string
- "impression": string
- "confidenceScore": number between 0.0 and 1.0 reflecting your confidence in the report.

Constraints:
- The JSON must be syntactically valid.
- Do not include any comments or trailing commas.
- Do not add extra top-level keys.`

const userTemplate = `Based on the following imaging findings and clinical context, generate a professional radiology report as a single JSON object.

CLINICAL CONTEXT:
- Patient: %s
- Presentation: %s
- History: %s

IMAGING MODALITY: %s
VIEW: %s

RADIOLOGICAL FINDINGS (Human Verified):
%s

IMPORTANT: Output MUST be a single valid JSON object matching the keys specified in the system prompt. Do NOT include any extra text.`

// Builder serializes draft requests into prompts.
type Builder struct{}

// NewBuilder returns a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build returns the system instruction and user prompt for a request.
// Findings are serialized in their given order; order is caller-significant.
func (b *Builder) Build(req report.DraftRequest) (system, user string) {
	modality := req.Modality
	if modality == "" {
		modality = "Imaging"
	}
	view := req.View
	if view == "" {
		view = "Standard views"
	}
	history := req.Context.RelevantHistory
	if history == "" {
		history = "Not provided"
	}

	user = fmt.Sprintf(userTemplate,
		req.Context.PatientInfo,
		req.Context.ClinicalPresentation,
		history,
		modality,
		view,
		formatFindings(req.Findings),
	)
	return systemText, user
}

// formatFindings renders findings as a numbered list, one line each.
func formatFindings(findings []report.Finding) string {
	if len(findings) == 0 {
		return "None documented."
	}
	lines := make([]string, 0, len(findings))
	for i, f := range findings {
		line := fmt.Sprintf("%d. %s: %s (%s)", i+1, f.Location, f.Type, f.Severity)
		if f.AdditionalDetails != "" {
			line += " - " + f.AdditionalDetails
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
