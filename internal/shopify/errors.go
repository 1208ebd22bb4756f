package shopify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrResponseTooLarge is returned when a body exceeds Request.MaxBytes.
	ErrResponseTooLarge = errors.New("response exceeds size limit")

	// ErrMalformedResponse is returned when a body is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrAdminDisabled is returned by Admin when no usable admin endpoint
	// or token is configured.
	ErrAdminDisabled = errors.New("admin API disabled")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTooManyRedirects is returned when a redirect chain exceeds Request.MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents request timeouts.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassThrottled represents 429 responses and THROTTLED GraphQL errors.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassInvalid represents oversized, malformed or rejected responses.
	ErrorClassInvalid ErrorClass = "invalid"
)

// maxErrorBody bounds how much of an error body is kept.
const maxErrorBody = 512

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("shopify: HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("shopify: HTTP %d from %s", e.StatusCode, e.URL)
}

func newHTTPError(status int, url string, body []byte) *HTTPError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &HTTPError{StatusCode: status, URL: url, Body: strings.TrimSpace(string(body))}
}

// GraphQLError is one entry of a GraphQL errors array.
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// GraphQLErrors is a 200 response carrying a non-empty errors array.
type GraphQLErrors struct {
	Errors []GraphQLError
}

// Error implements the error interface.
func (e *GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Message)
	}
	return "shopify: graphql: " + strings.Join(msgs, "; ")
}

// Throttled reports whether any error carries the THROTTLED code.
func (e *GraphQLErrors) Throttled() bool {
	for _, err := range e.Errors {
		if err.Extensions.Code == "THROTTLED" {
			return true
		}
	}
	return false
}

// Classify returns the class of err, or "" for nil.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return ErrorClassThrottled
		case httpErr.StatusCode >= 500:
			return ErrorClassServer
		default:
			return ErrorClassClient
		}
	}

	var gqlErr *GraphQLErrors
	if errors.As(err, &gqlErr) {
		if gqlErr.Throttled() {
			return ErrorClassThrottled
		}
		return ErrorClassInvalid
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	if errors.Is(err, ErrResponseTooLarge) || errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrAdminDisabled) || errors.Is(err, ErrTooManyRedirects) {
		return ErrorClassInvalid
	}

	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork, ErrorClassThrottled:
		return true
	default:
		// timeouts, 4xx and invalid bodies are final
		return false
	}
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 404
}
