package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRateLimitExceeded is returned once every retry of a 429 response is used up.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// APIError is a non-retryable error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// parseAPIError builds an APIError from a response body shaped
// {"error": {"message", "code"}}, falling back to the raw text.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = envelope.Error.Code
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// ItemError is the failure of one item of a bulk operation. Row is the item's
// 1-based position in the caller's input; Ref identifies it for display.
type ItemError struct {
	Row int
	Ref string
	Err error
}

func (e ItemError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d (%s): %v", e.Row, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Ref, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// PartialFailureError summarizes a bulk operation in which some items failed.
type PartialFailureError struct {
	Succeeded int
	Failed    []ItemError
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d items failed", len(e.Failed), e.Succeeded+len(e.Failed))
}
