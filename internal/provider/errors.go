package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse indicates the backend returned no usable content.
var ErrEmptyResponse = errors.New("empty response")

// ResponseParseError reports model output that is not a single JSON
// document. Raw holds the text exactly as received.
type ResponseParseError struct {
	Provider string
	Raw      string
	Err      error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("%s: response is not valid JSON: %v", e.Provider, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// ContentRefusedError reports an explicit policy refusal by the backend.
type ContentRefusedError struct {
	Provider string
	Reason   string
}

func (e *ContentRefusedError) Error() string {
	return fmt.Sprintf("%s: content refused: %s", e.Provider, e.Reason)
}

// TransportError reports a failed round trip: connection failures and
// non-2xx statuses. StatusCode is zero when no response was received.
type TransportError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: upstream status %d: %v", e.Provider, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// CallAbortedError reports a call cut short by cancellation or deadline of
// the caller's context.
type CallAbortedError struct {
	Provider string
	Err      error
}

func (e *CallAbortedError) Error() string {
	return fmt.Sprintf("%s: call aborted: %v", e.Provider, e.Err)
}

func (e *CallAbortedError) Unwrap() error { return e.Err }

// EmptyResponse wraps ErrEmptyResponse with the provider name and detail.
func EmptyResponse(provider, detail string) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrEmptyResponse, detail)
}

// RequestFailed classifies an error from the transport. Context
// cancellation wins over whatever the transport reported.
func RequestFailed(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CallAbortedError{Provider: provider, Err: ctxErr}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CallAbortedError{Provider: provider, Err: err}
	}
	return &TransportError{Provider: provider, Err: err}
}
