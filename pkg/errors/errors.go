package errors

import (
	"fmt"
	"strings"
	"time"
)

/*
EngineError represents a typed error raised by the decision and learning
engine. Code identifies the failure class so collaborators can switch on it
without string matching.
*/
type EngineError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for EngineError.
*/
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Engine error codes live in the -41000 range so they never collide with
// JSON-RPC reserved codes should the service layer forward them verbatim.
var (
	ErrInvalidTransition  = &EngineError{Code: -41000, Message: "Invalid lifecycle transition"}
	ErrBoundedValue       = &EngineError{Code: -41001, Message: "Value outside permitted bounds"}
	ErrDimensionMismatch  = &EngineError{Code: -41002, Message: "Embedding dimension mismatch"}
	ErrEmbeddingFailed    = &EngineError{Code: -41003, Message: "Embedding provider failed"}
	ErrAgentNotFound      = &EngineError{Code: -41004, Message: "Agent not found"}
	ErrAgentBusy          = &EngineError{Code: -41005, Message: "Agent is busy"}
	ErrCheckpointNotFound = &EngineError{Code: -41010, Message: "Checkpoint not found"}
	ErrCheckpointCorrupt  = &EngineError{Code: -41011, Message: "Checkpoint could not be decoded"}
	ErrPeerUnavailable    = &EngineError{Code: -41020, Message: "Federation peer unavailable"}
)

// WithMessagef creates a *copy* of an EngineError with a formatted message.
// It does not modify the original error variable.
func (e *EngineError) WithMessagef(format string, args ...any) *EngineError {
	newErr := *e
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

// WithData creates a copy carrying structured context for the caller.
func (e *EngineError) WithData(data any) *EngineError {
	newErr := *e
	newErr.Data = data
	return &newErr
}

/*
Multi aggregates several errors into one, preserving each message. The
federation scheduler uses it to report partial sync failures without
aborting the round.
*/
type Multi struct {
	Errs []error
}

func NewMulti(errs ...error) *Multi {
	multi := &Multi{}

	for _, err := range errs {
		if err != nil {
			multi.Errs = append(multi.Errs, err)
		}
	}

	return multi
}

func (multi *Multi) Add(err error) {
	if err != nil {
		multi.Errs = append(multi.Errs, err)
	}
}

func (multi *Multi) HasErrors() bool {
	return len(multi.Errs) > 0
}

func (multi *Multi) Error() string {
	builder := &strings.Builder{}

	for _, err := range multi.Errs {
		builder.WriteString(err.Error())
		builder.WriteString("\n")
	}

	return builder.String()
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
func RetryWithBackoff(config *RetryConfig, fn func() error) error {
	var err error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts, last error: %w", config.MaxAttempts, err)
}
