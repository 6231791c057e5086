package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"api 401", genai.APIError{Code: 401, Message: "unauthorized"}, ErrCredential},
		{"api 403 pointer", &genai.APIError{Code: 403, Message: "forbidden"}, ErrCredential},
		{"api 400 invalid key", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key.", Status: "INVALID_ARGUMENT"}, ErrCredential},
		{"api 404 entity", genai.APIError{Code: 404, Message: "Requested entity was not found."}, ErrCredential},
		{"api 400", genai.APIError{Code: 400, Message: "image too small"}, ErrInvalidInput},
		{"api 429", genai.APIError{Code: 429, Message: "quota"}, ErrTransient},
		{"api 503", genai.APIError{Code: 503, Message: "The model is overloaded."}, ErrTransient},
		{"api 500", genai.APIError{Code: 500, Message: "internal"}, ErrTransient},
		{"http 502", &StatusError{StatusCode: 502}, ErrTransient},
		{"http 422", &StatusError{StatusCode: 422, Body: "bad image_url"}, ErrInvalidInput},
		{"http 401 wrapped", fmt.Errorf("upscale: %w", &StatusError{StatusCode: 401}), ErrCredential},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrTransient},
		{"canceled", context.Canceled, ErrProcessingFailed},
		{"message rate limit", errors.New("rate limit exceeded"), ErrTransient},
		{"message key", errors.New("API_KEY_INVALID"), ErrCredential},
		{"message safety", errors.New("response blocked by safety settings"), ErrSafety},
		{"unknown", errors.New("boom"), ErrProcessingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("test", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) kind = %v, want %v", tt.err, got.Kind, tt.want)
			}
			if got.Err == nil {
				t.Errorf("Classify(%v) lost the cause", tt.err)
			}
		})
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := Errorf(ErrMalformedResponse, "analyze", "no json")
	wrapped := fmt.Errorf("asset a: %w", orig)
	if got := Classify("other", wrapped); got != orig {
		t.Errorf("Classify re-wrapped an already classified error: %v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: ErrTransient, Op: "enhance", StatusCode: 503, Attempts: 3, Err: errors.New("overloaded")}
	want := "enhance: service temporarily unavailable (HTTP 503) after 3 attempts: overloaded"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if KindOf(fmt.Errorf("x: %w", err)) != ErrTransient {
		t.Error("KindOf did not find the kind through wrapping")
	}
	if KindOf(errors.New("plain")) != nil {
		t.Error("KindOf of an unclassified error should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &Error{Kind: ErrTransient, Err: errors.New("503")}, true},
		{"wrapped transient", fmt.Errorf("analyze: %w", &Error{Kind: ErrTransient}), true},
		{"credential", &Error{Kind: ErrCredential}, false},
		{"exhausted", &Error{Kind: ErrProcessingFailed, Exhausted: true, Err: &Error{Kind: ErrTransient}}, false},
		{"unclassified", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
