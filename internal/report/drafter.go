package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"radreport/internal/generation"
)

// Generator sends a prompt to the text-generation service and returns the
// raw model text. Implementations own retry/backoff internally.
type Generator interface {
	Generate(ctx context.Context, systemText, userText string, p generation.Params) (string, error)
}

// PromptBuilder serializes a request into the system and user prompt text.
type PromptBuilder interface {
	Build(req DraftRequest) (system, user string)
}

// Drafter composes the pipeline: build prompt, invoke the generator, parse
// the reply, and substitute the deterministic fallback on any recoverable
// failure. Drafter holds no mutable state and is safe for concurrent use.
type Drafter struct {
	gen     Generator
	builder PromptBuilder
	params  generation.Params
	log     *zap.Logger
}

// NewDrafter wires a Drafter. A nil logger defaults to a no-op logger.
func NewDrafter(gen Generator, builder PromptBuilder, params generation.Params, log *zap.Logger) *Drafter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Drafter{
		gen:     gen,
		builder: builder,
		params:  params,
		log:     log,
	}
}

// Draft produces exactly one StructuredReport for the request. It returns an
// error only when the request or the deployment itself is broken
// (ValidationError, ConfigError, PermanentError); transient exhaustion and
// unparseable model output are absorbed into a fallback report, so the
// caller always gets a usable result for a well-formed request.
func (d *Drafter) Draft(ctx context.Context, req DraftRequest) (StructuredReport, error) {
	log := d.log.With(zap.String("draft_id", uuid.NewString()))

	if err := req.Validate(); err != nil {
		return StructuredReport{}, err
	}

	system, user := d.builder.Build(req)
	log.Debug("prompt built",
		zap.Int("findings", len(req.Findings)),
		zap.Int("user_len", len(user)))

	raw, err := d.gen.Generate(ctx, system, user, d.params)
	if err != nil {
		var cfgErr *generation.ConfigError
		var permErr *generation.PermanentError
		if errors.As(err, &cfgErr) || errors.As(err, &permErr) {
			// Broken deployment, not a recoverable generation failure.
			return StructuredReport{}, err
		}
		log.Warn("generation unavailable, using fallback report", zap.Error(err))
		return Fallback(req), nil
	}

	rep, err := ParseReport(raw)
	if err != nil {
		log.Warn("model reply rejected, using fallback report", zap.Error(err))
		return Fallback(req), nil
	}

	log.Info("report drafted",
		zap.Float64("confidence", rep.ConfidenceScore),
		zap.String("source", string(rep.Source)))
	return rep, nil
}
