package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invariant maps to conflict",
			err:        fmt.Errorf("aggregate: %w", NewInvariantError("duplicate attributes")),
			wantStatus: http.StatusConflict,
			wantCode:   "INVARIANT",
		},
		{
			name:       "config maps to bad request",
			err:        NewConfigError("unknown area", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   "CONFIG",
		},
		{
			name:       "plain error is internal",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
		{
			name:       "api error passes through",
			err:        ErrRunNotStarted,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "RUN_NOT_STARTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.wantCode, got.ErrorCode)
		})
	}

	assert.Nil(t, FromError(nil))
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, ErrNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "NOT_FOUND", body.Error.ErrorCode)
	assert.Equal(t, "Resource not found", body.Error.Error())
}
