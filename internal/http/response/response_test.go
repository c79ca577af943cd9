package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"message": "test"}, slog.New(slog.DiscardHandler))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	env := decode(t, w)
	assert.True(t, env.Success)
	assert.NotNil(t, env.Data)
	assert.Empty(t, env.Error)
}

func TestJSON_ErrorStatusIsNotSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusNotFound, map[string]string{"message": "test"}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decode(t, w).Success)
}

func TestCreatedAndNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	Created(w, map[string]string{"id": "ws-1"}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decode(t, w).Success)

	w = httptest.NewRecorder()
	NoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad", nil) }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "missing", nil) }, http.StatusNotFound},
		{"too many requests", func(w http.ResponseWriter) { TooManyRequests(w, "slow down", nil) }, http.StatusTooManyRequests},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "boom", nil) }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestHandleError_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", errors.NotFound("session ws-1 not found"), http.StatusNotFound, "NOT_FOUND"},
		{"invalid path", errors.InvalidPath(errors.ReasonEmpty, "watch root is empty"), http.StatusBadRequest, "INVALID_PATH"},
		{"wrapped state", fmt.Errorf("start: %w", errors.SessionState("already running")), http.StatusConflict, "SESSION_STATE"},
		{"registration", errors.RegistrationFailed(nil, "watch limit"), http.StatusServiceUnavailable, "REGISTRATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, slog.New(slog.DiscardHandler))

			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestHandleError_ValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.ValidationWithDetails("validation failed", map[string]string{"root": "is required"}), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"root": "is required"}, decode(t, w).Details)
}

func TestHandleError_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, fmt.Errorf("disk on fire"), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Error)
}
