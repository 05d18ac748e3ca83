package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/render"
)

// APIError is the JSON error body of the status server
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

var (
	ErrNotFound       = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrRunNotStarted  = New(http.StatusServiceUnavailable, "RUN_NOT_STARTED", "No pipeline run has started")
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// statusByType maps AppError types to HTTP status codes
var statusByType = map[ErrorType]int{
	ErrTypeDataQuality: http.StatusUnprocessableEntity,
	ErrTypeInvariant:   http.StatusConflict,
	ErrTypeConfig:      http.StatusBadRequest,
	ErrTypeValidation:  http.StatusBadRequest,
	ErrTypeNotFound:    http.StatusNotFound,
	ErrTypeStorage:     http.StatusInternalServerError,
	ErrTypeGeocoding:   http.StatusBadGateway,
	ErrTypeParsing:     http.StatusUnprocessableEntity,
}

// FromError converts any error into an APIError, preserving AppError types
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		status, ok := statusByType[appErr.Type]
		if !ok {
			status = http.StatusInternalServerError
		}
		return &APIError{
			StatusCode: status,
			ErrorCode:  string(appErr.Type),
			Message:    appErr.Error(),
			Details:    appErr.Context,
		}
	}
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		ErrorCode:  ErrInternalServer.ErrorCode,
		Message:    err.Error(),
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   err,
	}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(NewErrorResponse(err))
}
