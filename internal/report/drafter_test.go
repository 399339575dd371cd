package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radreport/internal/generation"
)

// generatorFunc adapts a function to the Generator interface.
type generatorFunc func(ctx context.Context, systemText, userText string, p generation.Params) (string, error)

func (f generatorFunc) Generate(ctx context.Context, systemText, userText string, p generation.Params) (string, error) {
	return f(ctx, systemText, userText, p)
}

// stubBuilder keeps drafter tests independent of the prompt package.
type stubBuilder struct{}

func (stubBuilder) Build(req DraftRequest) (string, string) {
	return "system", "user"
}

func newTestDrafter(gen Generator) *Drafter {
	params := generation.Params{Temperature: 0.3, MaxTokens: 1500}
	return NewDrafter(gen, stubBuilder{}, params, nil)
}

func TestDraft_ModelPathVerbatim(t *testing.T) {
	// Scenario: well-formed model reply; report fields pass through untouched.
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		return `{"technique": "PA and lateral chest radiograph.",
			"findings": "Moderate opacity in the right lower lobe.",
			"impression": "Findings compatible with right lower lobe pneumonia.",
			"confidenceScore": 0.85}`, nil
	})

	rep, err := newTestDrafter(gen).Draft(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "PA and lateral chest radiograph.", rep.Technique)
	assert.Equal(t, "Moderate opacity in the right lower lobe.", rep.Findings)
	assert.Equal(t, "Findings compatible with right lower lobe pneumonia.", rep.Impression)
	assert.Equal(t, 0.85, rep.ConfidenceScore)
	assert.Equal(t, SourceModel, rep.Source)
}

func TestDraft_RetryExhaustedFallsBack(t *testing.T) {
	// Scenario: every attempt times out; the caller still gets a report.
	calls := 0
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		calls++
		return "", &generation.ExhaustedError{Attempts: 3, Last: context.DeadlineExceeded}
	})

	rep, err := newTestDrafter(gen).Draft(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, FallbackConfidence, rep.ConfidenceScore)
	assert.Equal(t, SourceFallback, rep.Source)
	assert.Contains(t, rep.Findings, "right lower lobe")
	assert.Contains(t, rep.Findings, "moderate")
}

func TestDraft_TruncatedReplyFallsBack(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		return `{"technique": "PA view"`, nil
	})

	rep, err := newTestDrafter(gen).Draft(context.Background(), sampleRequest())
	require.NoError(t, err, "parse failures must never surface to the caller")
	assert.Equal(t, SourceFallback, rep.Source)
	assert.Equal(t, FallbackConfidence, rep.ConfidenceScore)
}

func TestDraft_PermanentErrorPropagates(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		return "", &generation.PermanentError{StatusCode: 401, Message: "invalid API key"}
	})

	_, err := newTestDrafter(gen).Draft(context.Background(), sampleRequest())
	var permErr *generation.PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, 401, permErr.StatusCode)
}

func TestDraft_ConfigErrorPropagates(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		return "", &generation.ConfigError{Reason: "temperature must be in [0,1]"}
	})

	_, err := newTestDrafter(gen).Draft(context.Background(), sampleRequest())
	var cfgErr *generation.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDraft_EmptyFindingsFailsFast(t *testing.T) {
	called := false
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		called = true
		return "", nil
	})

	req := sampleRequest()
	req.Findings = nil
	_, err := newTestDrafter(gen).Draft(context.Background(), req)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.False(t, called, "generator must not be invoked for an invalid request")
}

func TestDraft_ConfidenceNeverOverwritten(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _, _ string, _ generation.Params) (string, error) {
		return `{"technique": "t", "findings": "f", "impression": "i", "confidenceScore": 0.42}`, nil
	})

	rep, err := newTestDrafter(gen).Draft(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 0.42, rep.ConfidenceScore)
}
