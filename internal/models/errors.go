package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeForbidden       = "FORBIDDEN"
	CodeValidation      = "VALIDATION_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	CodePartialFailure  = "PARTIAL_FAILURE"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewConflictError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Err:     err,
	}
}

// NewUsernameTakenError reports a username owned by another profile.
func NewUsernameTakenError(username string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: fmt.Sprintf("username %q is already taken", username),
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewExternalServiceError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s unavailable", service),
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool        { return hasCode(err, CodeNotFound) }
func IsConflict(err error) bool        { return hasCode(err, CodeConflict) }
func IsForbidden(err error) bool       { return hasCode(err, CodeForbidden) }
func IsValidation(err error) bool      { return hasCode(err, CodeValidation) }
func IsExternalService(err error) bool { return hasCode(err, CodeExternalService) }

// PurgeError is returned when a purge halts on a document error. Summary
// holds the work completed before the failing phase.
type PurgeError struct {
	Phase   string
	Summary PurgeSummary
	Err     error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge halted in phase %s: %v", e.Phase, e.Err)
}

func (e *PurgeError) Unwrap() error {
	return e.Err
}

// IsPartialFailure reports whether err is a halted purge.
func IsPartialFailure(err error) bool {
	var pe *PurgeError
	return errors.As(err, &pe)
}

// HTTPStatus maps an error to the status an HTTP layer would answer with.
func HTTPStatus(err error) int {
	var pe *PurgeError
	if errors.As(err, &pe) {
		return http.StatusMultiStatus
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	var purgeErr *PurgeError
	switch {
	case errors.As(err, &purgeErr):
		response = ErrorResponse{
			Error:   purgeErr.Error(),
			Code:    CodePartialFailure,
			Details: purgeErr.Phase,
		}
	case errors.As(err, &appErr):
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	default:
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
