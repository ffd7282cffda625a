package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error kinds. Scope decides who absorbs them: region and line errors are skipped,
// object and role errors are recorded on the object, unit errors fail one observation.
var (
	ErrMissingInput    = errors.New("missing input")
	ErrMalformedRegion = errors.New("malformed region")
	ErrInvalidRegion   = errors.New("invalid region")
	ErrTransform       = errors.New("coordinate transform failed")
	ErrExternalTool    = errors.New("external tool failed")
	ErrUnit            = errors.New("observation unit failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrDatabase        = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func MissingInput(format string, args ...any) error {
	return NewAppError("MISSING_INPUT", fmt.Sprintf(format, args...), ErrMissingInput)
}

func ExternalTool(tool string, cause error) error {
	return NewAppError("EXTERNAL_TOOL", tool, fmt.Errorf("%w: %v", ErrExternalTool, cause))
}

// Kind names the taxonomy entry err belongs to, for logs and reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingInput):
		return "MissingInputError"
	case errors.Is(err, ErrMalformedRegion):
		return "MalformedRegionError"
	case errors.Is(err, ErrInvalidRegion):
		return "InvalidRegionError"
	case errors.Is(err, ErrTransform):
		return "TransformError"
	case errors.Is(err, ErrExternalTool):
		return "ExternalToolError"
	default:
		return "UnitError"
	}
}

// GRPCCode maps an error kind onto the closest gRPC status code.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrMissingInput):
		return codes.NotFound
	case errors.Is(err, ErrMalformedRegion), errors.Is(err, ErrInvalidRegion), errors.Is(err, ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, ErrTransform):
		return codes.FailedPrecondition
	case errors.Is(err, ErrExternalTool):
		return codes.Unavailable
	case errors.Is(err, ErrDatabase):
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// StatusError converts err into a gRPC status error carrying GRPCCode(err).
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(GRPCCode(err), err.Error())
}
