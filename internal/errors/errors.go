package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType uint

const (
	// Error types
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeInvalidInput
	ErrorTypeInfeasible
	ErrorTypeDivisionByZero
	ErrorTypeStageFailure
	ErrorTypeInternal
)

// Stage identifies which pipeline stage produced a failure.
type Stage string

const (
	StageCorrelation Stage = "correlation"
	StageOptimizer   Stage = "optimizer"
	StageMetrics     Stage = "metrics"
)

// Error represents a custom error with additional context
type Error struct {
	Type       ErrorType
	Message    string
	Details    map[string]interface{}
	Err        error
	StatusCode int
	ErrorCode  string
	Stage      Stage
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison by type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewError creates a new custom error
func NewError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Err:        err,
		StatusCode: errorTypeToStatusCode(errType),
		ErrorCode:  errorTypeToCode(errType),
		Details:    make(map[string]interface{}),
	}
}

// WithDetails adds context details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Common error constructors

func NewInvalidInputError(message string, err error) *Error {
	return NewError(ErrorTypeInvalidInput, message, err)
}

func NewInfeasibleError(message string, err error) *Error {
	return NewError(ErrorTypeInfeasible, message, err)
}

func NewDivisionByZeroError(message string) *Error {
	return NewError(ErrorTypeDivisionByZero, message, nil)
}

func NewInternalError(message string, err error) *Error {
	return NewError(ErrorTypeInternal, message, err)
}

// NewStageFailureError wraps a component error with the pipeline stage
// that produced it. The wrapped error stays reachable via Unwrap so
// callers can still match on the component's own type.
func NewStageFailureError(stage Stage, err error) *Error {
	e := NewError(ErrorTypeStageFailure, fmt.Sprintf("stage %s failed", stage), err)
	e.Stage = stage
	e.Details["stage"] = string(stage)
	if inner, ok := err.(*Error); ok {
		// Surface the component's HTTP mapping, not a generic 500.
		e.StatusCode = inner.StatusCode
	}
	return e
}

// Domain-specific error constructors

func NewEmptyUniverseError() *Error {
	return NewInvalidInputError("asset universe is empty", nil)
}

func NewMissingCorrelationError(assetA, assetB string) *Error {
	return NewInvalidInputError(
		fmt.Sprintf("correlation missing for pair %s/%s", assetA, assetB),
		nil,
	).WithDetails(map[string]interface{}{
		"asset_a": assetA,
		"asset_b": assetB,
	})
}

func NewUniverseValidationError(validationErrors map[string]string) *Error {
	return NewInvalidInputError(
		"asset universe failed validation",
		nil,
	).WithDetails(map[string]interface{}{
		"validation_errors": validationErrors,
	})
}

func NewUnattainableCapError(maxWeight float64, assetCount int) *Error {
	return NewInfeasibleError(
		fmt.Sprintf("max weight %.2f over %d assets cannot reach a fully invested portfolio", maxWeight, assetCount),
		nil,
	).WithDetails(map[string]interface{}{
		"max_weight":  maxWeight,
		"asset_count": assetCount,
	})
}

// Helper functions
func errorTypeToStatusCode(errType ErrorType) int {
	switch errType {
	case ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case ErrorTypeInfeasible:
		return http.StatusUnprocessableEntity
	case ErrorTypeDivisionByZero, ErrorTypeStageFailure, ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func errorTypeToCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeInvalidInput:
		return "INVALID_INPUT"
	case ErrorTypeInfeasible:
		return "INFEASIBLE"
	case ErrorTypeDivisionByZero:
		return "DIVISION_BY_ZERO"
	case ErrorTypeStageFailure:
		return "STAGE_FAILURE"
	case ErrorTypeInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// ErrorResponse structure for API responses
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response from an Error
func NewErrorResponse(err *Error, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Status:    "error",
		ErrorCode: err.ErrorCode,
		Message:   err.Message,
		Details:   err.Details,
		RequestID: requestID,
	}
}
