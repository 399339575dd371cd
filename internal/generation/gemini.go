package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// GeminiConfig holds configuration for the REST Gemini backend.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults for the Gemini API.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		BaseURL: defaultGeminiBaseURL,
		Model:   defaultGeminiModel,
		Timeout: 30 * time.Second,
	}
}

// geminiBackend talks to the Gemini REST API over plain HTTP. It issues a
// single attempt per call; retry lives in Client.
type geminiBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func newGeminiBackend(cfg GeminiConfig) (*geminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "Gemini API key is required"}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &geminiBackend{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// geminiContent represents content in the request.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart represents a part of the content.
type geminiPart struct {
	Text string `json:"text,omitempty"`
}

// geminiGenerationConfig represents generation parameters.
type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// geminiRequest represents the Gemini API request.
type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// geminiResponse represents the API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (b *geminiBackend) generateOnce(ctx context.Context, systemText, userText string, p Params) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: userText}},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     p.Temperature,
			MaxOutputTokens: p.MaxTokens,
		},
	}
	if systemText != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemText}},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &PermanentError{Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", b.baseURL, b.model, b.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", &PermanentError{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPStatus(resp.StatusCode, body)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", &TransientError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if geminiResp.Error != nil {
		return "", classifyHTTPStatus(geminiResp.Error.Code, body)
	}

	// A 200 with no candidate text is an unexpected shape; treat it as
	// retriable rather than returning empty content.
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", &TransientError{Err: fmt.Errorf("unexpected response format: no candidates")}
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &TransientError{Err: fmt.Errorf("unexpected response format: empty candidate text")}
	}
	return text, nil
}

// classifyHTTPStatus maps an API failure to the transient/permanent split.
// Rate limiting (429) is transient unless the body signals a hard quota
// exhaustion; 5xx and timeouts are transient; auth and bad-request failures
// are permanent.
func classifyHTTPStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusTooManyRequests:
		if isQuotaExhausted(msg) {
			return &PermanentError{StatusCode: status, Message: "quota exhausted"}
		}
		return &TransientError{StatusCode: status, Err: fmt.Errorf("rate limit exceeded")}
	case status == http.StatusRequestTimeout:
		return &TransientError{StatusCode: status, Err: fmt.Errorf("request timed out")}
	case status >= 500:
		return &TransientError{StatusCode: status, Err: fmt.Errorf("server error")}
	default:
		return &PermanentError{StatusCode: status, Message: msg}
	}
}

// isQuotaExhausted detects the hard-quota variant of RESOURCE_EXHAUSTED,
// which retrying within one request cannot fix.
func isQuotaExhausted(body string) bool {
	return strings.Contains(body, "RESOURCE_EXHAUSTED") &&
		strings.Contains(strings.ToLower(body), "quota")
}
