package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend replays a scripted sequence of results.
type fakeBackend struct {
	calls   int
	results []error
	text    string
}

func (f *fakeBackend) generateOnce(ctx context.Context, _, _ string, _ Params) (string, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.results) && f.results[idx] != nil {
		return "", f.results[idx]
	}
	return f.text, nil
}

// recordingSleep captures requested delays without waiting.
func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

var testParams = Params{Temperature: 0.3, MaxTokens: 1500}

func TestGenerate_ParamValidation(t *testing.T) {
	c := newClient(&fakeBackend{text: "ok"})

	tests := []struct {
		name   string
		params Params
	}{
		{"Temperature Too High", Params{Temperature: 1.5, MaxTokens: 100}},
		{"Temperature Negative", Params{Temperature: -0.1, MaxTokens: 100}},
		{"Zero MaxTokens", Params{Temperature: 0.5, MaxTokens: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Generate(context.Background(), "s", "u", tt.params)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestGenerate_RetriesTransientThenSucceeds(t *testing.T) {
	b := &fakeBackend{
		results: []error{
			&TransientError{StatusCode: 429, Err: errors.New("rate limit exceeded")},
			&TransientError{StatusCode: 503, Err: errors.New("server error")},
			nil,
		},
		text: "report text",
	}
	var delays []time.Duration
	c := newClient(b, WithMaxAttempts(3), WithSleep(recordingSleep(&delays)),
		WithBackoff(Backoff{Base: time.Second, Multiplier: 2, Max: 30 * time.Second}))

	text, err := c.Generate(context.Background(), "s", "u", testParams)
	require.NoError(t, err)
	assert.Equal(t, "report text", text)
	assert.Equal(t, 3, b.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestGenerate_AttemptBound(t *testing.T) {
	b := &fakeBackend{
		results: []error{
			&TransientError{Err: errors.New("timeout")},
			&TransientError{Err: errors.New("timeout")},
			&TransientError{Err: errors.New("timeout")},
			&TransientError{Err: errors.New("timeout")},
		},
	}
	var delays []time.Duration
	c := newClient(b, WithMaxAttempts(3), WithSleep(recordingSleep(&delays)))

	_, err := c.Generate(context.Background(), "s", "u", testParams)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, b.calls, "must issue at most N attempts")

	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1], "inter-attempt delay must be non-decreasing")
	}
}

func TestGenerate_PermanentStopsImmediately(t *testing.T) {
	b := &fakeBackend{
		results: []error{&PermanentError{StatusCode: 401, Message: "invalid key"}},
	}
	c := newClient(b, WithSleep(recordingSleep(&[]time.Duration{})))

	_, err := c.Generate(context.Background(), "s", "u", testParams)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, 1, b.calls, "permanent failures are never retried")
}

func TestGenerate_DeadlineCancelsBackoff(t *testing.T) {
	b := &fakeBackend{
		results: []error{
			&TransientError{Err: errors.New("timeout")},
			&TransientError{Err: errors.New("timeout")},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := newClient(b, WithMaxAttempts(5), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := c.Generate(ctx, "s", "u", testParams)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.calls, "no further attempts once the deadline expires")
}

// --- REST backend wire tests ---

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := newGeminiBackend(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-2.5-flash",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(b.httpClient.CloseIdleConnections)

	base := []Option{WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })}
	return newClient(b, append(base, opts...)...), srv
}

func geminiReply(text string) string {
	return fmt.Sprintf(`{"candidates": [{"content": {"parts": [{"text": %q}], "role": "model"}, "finishReason": "STOP"}]}`, text)
}

func TestGeminiBackend_RateLimitThenSuccess(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"code": 429, "message": "slow down", "status": "RESOURCE_EXHAUSTED"}}`)
			return
		}
		fmt.Fprint(w, geminiReply(`{"technique": "t", "findings": "f", "impression": "i"}`))
	})

	text, err := c.Generate(context.Background(), "system", "user", testParams)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, text, `"technique"`)
}

func TestGeminiBackend_SustainedServerErrorExhausts(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}, WithMaxAttempts(3))

	_, err := c.Generate(context.Background(), "system", "user", testParams)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, attempts)
}

func TestGeminiBackend_AuthFailureIsPermanent(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"}}`)
	})

	_, err := c.Generate(context.Background(), "system", "user", testParams)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, http.StatusForbidden, permErr.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestGeminiBackend_QuotaExhaustedIsPermanent(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"code": 429, "message": "You have exceeded your quota for the day.", "status": "RESOURCE_EXHAUSTED"}}`)
	})

	_, err := c.Generate(context.Background(), "system", "user", testParams)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, 1, attempts, "hard quota exhaustion must not be retried")
}

func TestGeminiBackend_EmptyCandidatesRetried(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			fmt.Fprint(w, `{"candidates": []}`)
			return
		}
		fmt.Fprint(w, geminiReply("ok"))
	})

	text, err := c.Generate(context.Background(), "system", "user", testParams)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, attempts)
}

func TestGeminiBackend_SendsPromptAndParams(t *testing.T) {
	var got geminiRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, jsonDecode(r, &got))
		fmt.Fprint(w, geminiReply("ok"))
	})

	_, err := c.Generate(context.Background(), "system text", "user text", Params{Temperature: 0.3, MaxTokens: 1500})
	require.NoError(t, err)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user text", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "system text", got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, 0.3, got.GenerationConfig.Temperature)
	assert.Equal(t, 1500, got.GenerationConfig.MaxOutputTokens)
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestNewGeminiBackend_RequiresAPIKey(t *testing.T) {
	_, err := newGeminiBackend(GeminiConfig{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
