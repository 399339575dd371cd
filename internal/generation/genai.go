package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// SDKConfig holds configuration for the genai SDK backend.
type SDKConfig struct {
	APIKey string
	Model  string
}

// sdkBackend generates text through the official google.golang.org/genai
// client instead of raw REST. Interchangeable with geminiBackend; selected
// by configuration.
type sdkBackend struct {
	client *genai.Client
	model  string
}

func newSDKBackend(ctx context.Context, cfg SDKConfig) (*sdkBackend, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "Gemini API key is required"}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to create genai client: %v", err)}
	}
	return &sdkBackend{
		client: client,
		model:  model,
	}, nil
}

func (b *sdkBackend) generateOnce(ctx context.Context, systemText, userText string, p Params) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.Temperature)),
		MaxOutputTokens: int32(p.MaxTokens),
	}
	if systemText != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(userText), cfg)
	if err != nil {
		return "", classifySDKError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &TransientError{Err: fmt.Errorf("unexpected response format: empty candidate text")}
	}
	return text, nil
}

// classifySDKError maps genai SDK failures onto the same transient/permanent
// split as the REST backend.
func classifySDKError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests && isQuotaExhausted(apiErr.Message+" "+apiErr.Status) {
			return &PermanentError{StatusCode: apiErr.Code, Message: "quota exhausted"}
		}
		return classifyHTTPStatus(apiErr.Code, []byte(apiErr.Message))
	}
	// Transport-level failures arrive as plain errors.
	return &TransientError{Err: err}
}
