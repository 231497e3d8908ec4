package generation

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

var (
	// ErrUnconfigured means the credential or endpoint is missing or still a placeholder.
	ErrUnconfigured = errors.New("generation endpoint is not configured")
	// ErrExhaustedRetries is matched by every *ExhaustedError.
	ErrExhaustedRetries = errors.New("generation retries exhausted")
	// ErrMalformedResponse means the body did not have the expected structure.
	ErrMalformedResponse = errors.New("malformed generation response")
	// ErrEmptyResponse means the response carried no generated text.
	ErrEmptyResponse = errors.New("empty generation response")
)

// FaultKind classifies a failed attempt.
type FaultKind int

const (
	// TransportFault is a network error or a timeout.
	TransportFault FaultKind = iota
	// EndpointFault is a non-success status, a malformed body or empty text.
	EndpointFault
)

func (k FaultKind) String() string {
	switch k {
	case TransportFault:
		return "transport"
	case EndpointFault:
		return "endpoint"
	default:
		return "unknown"
	}
}

// StatusError is a non-success HTTP status from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// AttemptError is one failed attempt.
type AttemptError struct {
	Attempt int
	Kind    FaultKind
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d failed (%s): %v", e.Attempt, e.Kind, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     *AttemptError
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("generation failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last.Err)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// Classify maps a provider error onto a fault kind. Anything the endpoint
// answered is an endpoint fault; everything else is transport.
func Classify(err error) FaultKind {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return EndpointFault
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrEmptyResponse) {
		return EndpointFault
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return EndpointFault
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return EndpointFault
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return EndpointFault
	}

	return TransportFault
}
