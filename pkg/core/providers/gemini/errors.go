package gemini

import (
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
)

// mapError translates genai SDK errors into the repair engine's error
// taxonomy so the scan loop can tell rate limits from hard failures.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return core.NewRateLimitError(apiErr.Message, retryAfterSeconds(apiErr))
		case http.StatusServiceUnavailable:
			return core.NewOverloadedError(apiErr.Message)
		case http.StatusBadRequest:
			return core.NewInvalidRequestError(apiErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return core.NewPermissionError(apiErr.Message)
		case http.StatusNotFound:
			return core.NewNotFoundError(apiErr.Message)
		}
		return core.NewAPIError(apiErr.Message)
	}
	return core.NewProviderError("gemini", err)
}

// retryAfterSeconds pulls a RetryInfo hint out of the error details when
// the API provides one. Zero means no hint.
func retryAfterSeconds(apiErr genai.APIError) int {
	for _, detail := range apiErr.Details {
		if t, ok := detail["@type"].(string); !ok || !containsRetryInfo(t) {
			continue
		}
		if delay, ok := detail["retryDelay"].(string); ok {
			return parseRetryDelay(delay)
		}
	}
	return 0
}

func containsRetryInfo(t string) bool {
	return t == "type.googleapis.com/google.rpc.RetryInfo"
}

// parseRetryDelay parses protobuf duration strings like "7s" or "30s".
func parseRetryDelay(s string) int {
	if len(s) < 2 || s[len(s)-1] != 's' {
		return 0
	}
	seconds := 0
	for _, r := range s[:len(s)-1] {
		if r < '0' || r > '9' {
			return 0
		}
		seconds = seconds*10 + int(r-'0')
	}
	return seconds
}
