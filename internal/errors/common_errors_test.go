package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Constants(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		expected string
	}{
		{name: "data quality error type", errType: ErrTypeDataQuality, expected: "DATA_QUALITY"},
		{name: "invariant error type", errType: ErrTypeInvariant, expected: "INVARIANT"},
		{name: "config error type", errType: ErrTypeConfig, expected: "CONFIG"},
		{name: "storage error type", errType: ErrTypeStorage, expected: "STORAGE"},
		{name: "geocoding error type", errType: ErrTypeGeocoding, expected: "GEOCODING"},
		{name: "parsing error type", errType: ErrTypeParsing, expected: "PARSING"},
		{name: "validation error type", errType: ErrTypeValidation, expected: "VALIDATION"},
		{name: "not found error type", errType: ErrTypeNotFound, expected: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errType))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    NewInvariantError("postal code 04109 has 2 treatment stores"),
			wantMessage: "[INVARIANT] postal code 04109 has 2 treatment stores",
		},
		{
			name:        "error with cause",
			appError:    NewStorageError("failed to read orders", fmt.Errorf("file not found")),
			wantMessage: "[STORAGE] failed to read orders: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("load stores: %w", NewConfigError("store file unreadable", cause))

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &AppError{Type: ErrTypeConfig}))
	assert.False(t, errors.Is(err, &AppError{Type: ErrTypeInvariant}))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeConfig, appErr.Type)
	assert.True(t, IsConfig(err))
	assert.False(t, IsInvariant(err))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewDataQualityError("invalid postal code", nil).
		WithContext("country", "DE").
		WithContext("postal_code", "1234")

	assert.Equal(t, "DE", err.Context["country"])
	assert.Equal(t, "1234", err.Context["postal_code"])
	assert.True(t, IsDataQuality(err))

	bare := &AppError{Type: ErrTypeGeocoding}
	bare.WithContext("provider", "google")
	assert.Equal(t, "google", bare.Context["provider"])
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
	assert.Equal(t, ErrTypeNotFound, TypeOf(NewNotFoundError("area Leipzig")))
	assert.Equal(t, "[NOT_FOUND] area Leipzig not found", NewNotFoundError("area Leipzig").Error())
	assert.Equal(t, ErrTypeValidation, TypeOf(NewAppValidationError("k must be positive")))
	assert.Equal(t, ErrTypeParsing, TypeOf(NewParsingError("bad quarter", nil)))
	assert.Equal(t, ErrTypeGeocoding, TypeOf(NewGeocodingError("quota", nil)))
}
