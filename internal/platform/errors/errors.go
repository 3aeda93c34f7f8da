package errors

import (
	stderrors "errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain is the error domain for stockfolio errors.
const Domain = "github.com/louisbranch/stockfolio"

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context for callers
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the machine-readable code.
func (e *Error) ErrorCode() Code {
	return e.Code
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithMetadata creates a domain error with both metadata and a cause.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
		Cause:    cause,
	}
}

// CodeOf returns the code of the first error in the chain that carries one.
// Errors without a code report CodeUnknown; nil reports an empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded interface{ ErrorCode() Code }
	if stderrors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeUnknown
}

// ToGRPCStatus converts err to a gRPC status error carrying an
// errdetails.ErrorInfo. The reason is CodeOf(err). Metadata comes from the
// first error in the chain exposing Metadata() or from an *Error.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	code := CodeOf(err)
	grpcCode := code.GRPCCode()
	st := status.New(grpcCode, err.Error())

	st, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(code),
		Domain:   Domain,
		Metadata: metadataOf(err),
	})
	if detailErr != nil {
		// If we can't attach details, return the basic status
		return status.New(grpcCode, err.Error()).Err()
	}
	return st.Err()
}

func metadataOf(err error) map[string]string {
	var described interface{ Metadata() map[string]string }
	if stderrors.As(err, &described) {
		return described.Metadata()
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Metadata
	}
	return nil
}
