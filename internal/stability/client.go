// Package stability wraps the Stability AI text-to-image REST API.
package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.stability.ai"
	defaultTimeout = 180 * time.Second
)

// Client calls the Stability AI generation endpoint. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	APIKey  string
	BaseURL string        // defaults to the public API
	Timeout time.Duration // defaults to 180s; generation is slow
	// For testing: inject an HTTP client instead of the default.
	HTTPClient *http.Client
}

// NewClient creates a Stability API client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("stability: api key is required")
	}
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

// GenerateRequest holds the parameters for one text-to-image call.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	CfgScale       float64
	Width          int
	Height         int
	Samples        int
	Seed           int64 // 0 lets the API pick a random seed
	Model          string
}

// Artifact is one generated image.
type Artifact struct {
	Image        []byte
	Seed         int64
	FinishReason string
}

// Filtered reports whether the artifact was blanked by the API's content
// filter rather than generated.
func (a Artifact) Filtered() bool {
	reason := strings.ToUpper(a.FinishReason)
	return strings.Contains(reason, "FILTER") || strings.Contains(reason, "CONTENT")
}

// APIError is a non-200 response from the Stability API.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("stability: API error %d (%s): %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("stability: API error %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the API rejected the request for rate limiting.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// textPrompt is one weighted prompt in the request body. The negative
// prompt is expressed as a prompt with weight -1.
type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// generatePayload is the JSON request body for text-to-image.
type generatePayload struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CfgScale    float64      `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
	Seed        int64        `json:"seed,omitempty"`
}

// generateResponse is the JSON response body.
type generateResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// apiErrorBody is the JSON error body for non-200 responses.
type apiErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Generate calls the text-to-image endpoint and returns the decoded
// artifacts. Non-200 responses return an *APIError. No retries — failures
// surface to the caller.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) ([]Artifact, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("stability: prompt is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("stability: model is required")
	}

	prompts := []textPrompt{{Text: req.Prompt, Weight: 1.0}}
	if req.NegativePrompt != "" {
		prompts = append(prompts, textPrompt{Text: req.NegativePrompt, Weight: -1.0})
	}

	payload := generatePayload{
		TextPrompts: prompts,
		CfgScale:    req.CfgScale,
		Height:      req.Height,
		Width:       req.Width,
		Samples:     req.Samples,
		Steps:       req.Steps,
		Seed:        req.Seed,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stability: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stability: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed apiErrorBody
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Message != "" {
			apiErr.Name = parsed.Name
			apiErr.Message = parsed.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, apiErr
	}

	var decoded generateResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("stability: decode response: %w", err)
	}

	artifacts := make([]Artifact, 0, len(decoded.Artifacts))
	for _, art := range decoded.Artifacts {
		if art.Base64 == "" {
			continue
		}
		img, err := base64.StdEncoding.DecodeString(art.Base64)
		if err != nil {
			return nil, fmt.Errorf("stability: decode image: %w", err)
		}
		artifacts = append(artifacts, Artifact{
			Image:        img,
			Seed:         art.Seed,
			FinishReason: art.FinishReason,
		})
	}
	return artifacts, nil
}
