package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/toolkit/pkg/schema"
)

var (
	// ErrInputValidation is matched by *InputValidationError
	ErrInputValidation = errors.New("input validation failed")

	// ErrBuild is matched by *BuildError
	ErrBuild = errors.New("invalid tool definition")

	// ErrNameConflict is matched by *NameConflictError
	ErrNameConflict = errors.New("tool name conflict")

	// ErrNotFound is matched by *NotFoundError
	ErrNotFound = errors.New("tool not found")

	// ErrServerOnly is matched by *ServerOnlyViolation
	ErrServerOnly = errors.New("server-only tool invoked in client context")

	// ErrHandler is matched by *HandlerError
	ErrHandler = errors.New("tool handler failed")

	// ErrTimeout is matched by *TimeoutError
	ErrTimeout = errors.New("tool execution timed out")

	// ErrMiddleware is matched by *MiddlewareError
	ErrMiddleware = errors.New("tool middleware failed")
)

// InputValidationError is returned when input is rejected by the tool's input schema.
type InputValidationError struct {
	Tool  string
	Cause *schema.ValidationError
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Cause)
}

func (e *InputValidationError) Unwrap() error { return e.Cause }

func (e *InputValidationError) Is(target error) bool { return target == ErrInputValidation }

// Fields returns the per-field diagnostics.
func (e *InputValidationError) Fields() []schema.FieldError {
	if e.Cause == nil {
		return nil
	}
	return append([]schema.FieldError(nil), e.Cause.Fields...)
}

// BuildError is returned by Builder.Build when the definition is incomplete.
type BuildError struct {
	Tool   string
	Reason string
}

func (e *BuildError) Error() string { return e.Reason }

func (e *BuildError) Is(target error) bool { return target == ErrBuild }

// NameConflictError is returned when registering a name that is already taken.
type NameConflictError struct {
	Tool string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Tool)
}

func (e *NameConflictError) Is(target error) bool { return target == ErrNameConflict }

// NotFoundError is returned when a tool name is not in the registry.
type NotFoundError struct {
	Tool string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Tool)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ServerOnlyViolation is returned when a server-only tool is invoked with a
// client execution context.
type ServerOnlyViolation struct {
	Tool string
}

func (e *ServerOnlyViolation) Error() string {
	return fmt.Sprintf("tool %q is server-only and cannot run in a client context", e.Tool)
}

func (e *ServerOnlyViolation) Is(target error) bool { return target == ErrServerOnly }

// HandlerError wraps an error returned (or panic raised) by a tool handler.
type HandlerError struct {
	Tool  string
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("tool %s handler failed: %v", e.Tool, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

func (e *HandlerError) Is(target error) bool { return target == ErrHandler }

// TimeoutError is returned when a tool invocation exceeds its timeout.
type TimeoutError struct {
	Tool  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s execution timeout after %v", e.Tool, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// MiddlewareError wraps an error that originated in a middleware rather than
// being propagated from the handler.
type MiddlewareError struct {
	Tool  string
	Index int
	Cause error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("tool %s middleware %d failed: %v", e.Tool, e.Index, e.Cause)
}

func (e *MiddlewareError) Unwrap() error { return e.Cause }

func (e *MiddlewareError) Is(target error) bool { return target == ErrMiddleware }

// IsRetryable reports whether err may succeed when the invocation is repeated.
// Validation and resolution errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrHandler) || errors.Is(err, ErrMiddleware) || errors.Is(err, ErrTimeout)
}

// isPipelineError reports whether err is already classified by the chain.
func isPipelineError(err error) bool {
	var he *HandlerError
	var me *MiddlewareError
	var te *TimeoutError
	return errors.As(err, &he) || errors.As(err, &me) || errors.As(err, &te)
}

// ErrorInfo is the serializable diagnostic carried by a failed ToolResult.
type ErrorInfo struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []schema.FieldError `json:"fields,omitempty"`
}

// Error codes used in ErrorInfo.Code.
const (
	CodeInputValidation = "input_validation"
	CodeBuild           = "build"
	CodeNameConflict    = "name_conflict"
	CodeNotFound        = "not_found"
	CodeServerOnly      = "server_only"
	CodeHandler         = "handler"
	CodeTimeout         = "timeout"
	CodeMiddleware      = "middleware"
	CodeCanceled        = "canceled"
	CodeInternal        = "internal"
)

// NewErrorInfo classifies err into a serializable diagnostic.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	info := &ErrorInfo{Code: CodeInternal, Message: err.Error()}

	var ive *InputValidationError
	switch {
	case errors.As(err, &ive):
		info.Code = CodeInputValidation
		info.Fields = ive.Fields()
	case errors.Is(err, ErrBuild):
		info.Code = CodeBuild
	case errors.Is(err, ErrNameConflict):
		info.Code = CodeNameConflict
	case errors.Is(err, ErrNotFound):
		info.Code = CodeNotFound
	case errors.Is(err, ErrServerOnly):
		info.Code = CodeServerOnly
	case errors.Is(err, ErrTimeout):
		info.Code = CodeTimeout
	case errors.Is(err, ErrMiddleware):
		info.Code = CodeMiddleware
	case errors.Is(err, ErrHandler):
		info.Code = CodeHandler
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		info.Code = CodeCanceled
	}

	return info
}
