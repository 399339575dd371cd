package generation

import (
	"fmt"
)

// ConfigError indicates a broken deployment: a missing credential or an
// out-of-range parameter. It is raised before any network attempt and is
// never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "generation config: " + e.Reason
}

// PermanentError indicates a structural failure that retrying cannot fix:
// rejected authentication, a malformed request, or exhausted quota. It is
// surfaced immediately.
type PermanentError struct {
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation failed permanently (status %d): %s", e.StatusCode, e.Message)
	}
	return "generation failed permanently: " + e.Message
}

// TransientError indicates a failure that is expected to self-resolve:
// rate limiting, timeouts, 5xx responses, or transport errors. The retry
// loop consumes these; callers only ever see the final ExhaustedError.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient generation failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient generation failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ExhaustedError reports that every allowed attempt failed transiently.
// Last holds the failure from the final attempt, or the context error when
// the deadline expired mid-sequence.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
