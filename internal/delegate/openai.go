package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the chat completion endpoint used when none is set.
	DefaultBaseURL = "https://api.deepseek.com"

	// DefaultModel is the model requested when none is set.
	DefaultModel = "deepseek-chat"

	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is requests per second.
	DefaultRateLimit = 5.0

	defaultMaxRetries = 4
)

// RetryBaseDelay is the first backoff after a 429. It doubles per attempt.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
}

// ClientOption configures an OpenAIClient.
type ClientOption func(*OpenAIClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OpenAIClient) {
		c.httpClient = hc
	}
}

// WithBaseURL sets the API base URL (for testing or other providers).
func WithBaseURL(url string) ClientOption {
	return func(c *OpenAIClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel sets the model name.
func WithModel(model string) ClientOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) ClientOption {
	return func(c *OpenAIClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMaxRetries sets how many times a 429 reply is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *OpenAIClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// NewOpenAIClient creates a client authenticated with apiKey.
func NewOpenAIClient(apiKey string, opts ...ClientOption) *OpenAIClient {
	c := &OpenAIClient{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Classify asks the model whether the record meets the exclusion criteria.
func (c *OpenAIClient) Classify(ctx context.Context, title, abstract, criteria string) (Decision, error) {
	var reply struct {
		Exclude *bool  `json:"exclude"`
		Reason  string `json:"reason"`
	}
	if err := c.complete(ctx, classifyPrompt(title, abstract, criteria), &reply); err != nil {
		return Decision{}, err
	}
	if reply.Exclude == nil {
		return Decision{}, fmt.Errorf("%w: reply has no \"exclude\" field", ErrInvalidResponse)
	}
	d := Decision{Exclude: *reply.Exclude, Reason: reply.Reason}
	if d.Exclude && strings.TrimSpace(d.Reason) == "" {
		d.Reason = DefaultReason
	}
	return d, nil
}

// Verify asks the model whether the record is genuinely within topic.
func (c *OpenAIClient) Verify(ctx context.Context, title, abstract, topic string) (Verification, error) {
	var reply struct {
		InScope    *bool  `json:"in_scope"`
		Confidence string `json:"confidence"`
	}
	if err := c.complete(ctx, verifyPrompt(title, abstract, topic), &reply); err != nil {
		return Verification{}, err
	}
	if reply.InScope == nil {
		return Verification{}, fmt.Errorf("%w: reply has no \"in_scope\" field", ErrInvalidResponse)
	}
	v := Verification{InScope: *reply.InScope, Confidence: reply.Confidence}
	if v.Confidence == "" {
		v.Confidence = "unknown"
	}
	return v, nil
}

// complete sends one user prompt and decodes the JSON message content into
// out.
func (c *OpenAIClient) complete(ctx context.Context, prompt string, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: no API key configured", ErrAuth)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp); err != nil {
		return err
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrInvalidResponse, err)
	}
	if cr.Error != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: cr.Error.Type, Message: cr.Error.Message}
	}
	if len(cr.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	content := stripCodeFence(cr.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: message is not JSON: %v", ErrInvalidResponse, err)
	}
	return nil
}

// doWithRetry posts body and retries on 429 with exponential backoff. After
// the last retry the 429 response is returned for the caller to inspect.
func (c *OpenAIClient) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("chat completion request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       "api_error",
			Message:    strings.TrimSpace(string(msg)),
		}
	}
	return nil
}

// stripCodeFence removes a ```json fence some models wrap replies in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
