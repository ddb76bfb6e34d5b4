package domain

import (
	"errors"
	"fmt"
)

// Turn-level error taxonomy. Adapters wrap one of these together with the
// underlying cause so both remain matchable with errors.Is.
var (
	ErrTranscription   = fmt.Errorf("transcription failed")
	ErrDialogueService = fmt.Errorf("dialogue service failed")
	ErrToolExecution   = fmt.Errorf("tool execution failed")
	ErrSynthesis       = fmt.Errorf("synthesis failed")
	ErrValidation      = fmt.Errorf("tool arguments invalid")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrSessionBusy      = fmt.Errorf("session is processing another turn")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrUpstream        = fmt.Errorf("upstream service error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Orchestrator.Submit")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Kind wraps cause under the taxonomy sentinel kind.
// Returns nil if cause is nil.
func Kind(kind, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUpstream)
}

// ErrorCode is a machine-parseable error category for clients and monitoring.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeTranscription    ErrorCode = "TRANSCRIPTION"
	CodeDialogueService  ErrorCode = "DIALOGUE_SERVICE"
	CodeToolExecution    ErrorCode = "TOOL_EXECUTION"
	CodeSynthesis        ErrorCode = "SYNTHESIS"
	CodeValidation       ErrorCode = "VALIDATION"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionBusy      ErrorCode = "SESSION_BUSY"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeUpstream         ErrorCode = "UPSTREAM"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrTranscription:    CodeTranscription,
	ErrDialogueService:  CodeDialogueService,
	ErrToolExecution:    CodeToolExecution,
	ErrSynthesis:        CodeSynthesis,
	ErrValidation:       CodeValidation,
	ErrProviderNotFound: CodeProviderNotFound,
	ErrToolNotFound:     CodeToolNotFound,
	ErrSessionNotFound:  CodeSessionNotFound,
	ErrSessionBusy:      CodeSessionBusy,
	ErrConfigLoad:       CodeConfigLoad,
	ErrInvalidInput:     CodeInvalidInput,
	ErrTimeout:          CodeTimeout,
	ErrContextOverflow:  CodeContextOverflow,
	ErrRateLimit:        CodeRateLimit,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrUpstream:         CodeUpstream,
}

// codePriority lists the taxonomy kinds first so a wrapped
// "transcription failed: rate limit exceeded" reports TRANSCRIPTION.
var codePriority = []error{
	ErrTranscription,
	ErrDialogueService,
	ErrSynthesis,
	ErrValidation,
	ErrToolExecution,
	ErrSessionBusy,
	ErrSessionNotFound,
	ErrToolNotFound,
	ErrProviderNotFound,
	ErrInvalidInput,
	ErrConfigLoad,
	ErrTimeout,
	ErrRateLimit,
	ErrAuthInvalid,
	ErrContextOverflow,
	ErrUpstream,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
