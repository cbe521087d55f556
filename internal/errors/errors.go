// Package errors provides structured error codes for the numeric engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Payload errors
	CodePayloadFetchFailure  Code = "PAYLOAD_FETCH_FAILURE"
	CodePayloadParseFailure  Code = "PAYLOAD_PARSE_FAILURE"
	CodeShapeMismatch        Code = "SHAPE_MISMATCH"
	CodeInvalidNormalization Code = "INVALID_NORMALIZATION"

	// Evaluation errors
	CodeDimensionMismatch Code = "DIMENSION_MISMATCH"
	CodeNonFiniteOutput   Code = "NON_FINITE_OUTPUT"
	CodeDegenerateFit     Code = "DEGENERATE_FIT"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"

	// Engine state errors
	CodeEngineLoading     Code = "ENGINE_LOADING"
	CodeEngineUnavailable Code = "ENGINE_UNAVAILABLE"
	CodeEngineClosed      Code = "ENGINE_CLOSED"
)

// Terminal reports whether an error with this code permanently disables the
// engine that produced it.
func (c Code) Terminal() bool {
	switch c {
	case CodePayloadFetchFailure,
		CodePayloadParseFailure,
		CodeShapeMismatch,
		CodeInvalidNormalization,
		CodeEngineUnavailable,
		CodeEngineClosed:
		return true
	default:
		return false
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Additional context (sizes, indexes, sources)
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

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}
