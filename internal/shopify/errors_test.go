package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"404", &HTTPError{StatusCode: 404}, ErrorClassClient},
		{"401 wrapped", fmt.Errorf("admin: %w", &HTTPError{StatusCode: 401}), ErrorClassClient},
		{"429", &HTTPError{StatusCode: 429}, ErrorClassThrottled},
		{"502", &HTTPError{StatusCode: 502}, ErrorClassServer},
		{"throttled graphql", &GraphQLErrors{Errors: []GraphQLError{throttledError()}}, ErrorClassThrottled},
		{"other graphql", &GraphQLErrors{Errors: []GraphQLError{{Message: "Field 'x' doesn't exist"}}}, ErrorClassInvalid},
		{"deadline", fmt.Errorf("shopify request: %w", context.DeadlineExceeded), ErrorClassTimeout},
		{"too large", fmt.Errorf("%w: more than 10 bytes", ErrResponseTooLarge), ErrorClassInvalid},
		{"malformed", ErrMalformedResponse, ErrorClassInvalid},
		{"redirects", fmt.Errorf("post: %w", ErrTooManyRedirects), ErrorClassInvalid},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassNetwork, true},
		{ErrorClassThrottled, true},
		{ErrorClassTimeout, false},
		{ErrorClassInvalid, false},
		{"", false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.want {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}

func TestHTTPError_TruncatesBody(t *testing.T) {
	err := newHTTPError(500, "https://x/graphql.json", []byte(strings.Repeat("a", 2000)))

	if len(err.Body) != maxErrorBody {
		t.Errorf("len(Body) = %d, want %d", len(err.Body), maxErrorBody)
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 404})) {
		t.Error("IsNotFound() = false for wrapped 404")
	}
	if IsNotFound(&HTTPError{StatusCode: 403}) {
		t.Error("IsNotFound() = true for 403")
	}
}

func TestGraphQLErrors_Error(t *testing.T) {
	err := &GraphQLErrors{Errors: []GraphQLError{{Message: "a"}, {Message: "b"}}}
	if got := err.Error(); got != "shopify: graphql: a; b" {
		t.Errorf("Error() = %q", got)
	}
}

func throttledError() GraphQLError {
	var e GraphQLError
	e.Message = "Throttled"
	e.Extensions.Code = "THROTTLED"
	return e
}
