package delegate

import (
	"errors"
	"fmt"
)

// Common errors returned by the chat completion client.
var (
	// ErrAuth indicates a missing or rejected API key.
	ErrAuth = errors.New("delegate authentication error")

	// ErrRateLimited indicates the provider kept answering 429 after retries.
	ErrRateLimited = errors.New("delegate rate limit exceeded")

	// ErrInvalidResponse indicates a reply that is not the expected JSON.
	ErrInvalidResponse = errors.New("invalid response from delegate")
)

// APIError is a non-success HTTP reply from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("delegate API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("delegate API error (status %d): %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err is an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuth) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsRateLimited reports whether err is caused by rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
