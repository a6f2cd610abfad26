package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("Post", "p1"), http.StatusNotFound},
		{"conflict", NewConflictError("busy", nil), http.StatusConflict},
		{"username taken", NewUsernameTakenError("ada"), http.StatusConflict},
		{"forbidden", NewForbiddenError("no"), http.StatusForbidden},
		{"validation", NewValidationError("bad"), http.StatusBadRequest},
		{"external", NewExternalServiceError("blob storage", errors.New("timeout")), http.StatusServiceUnavailable},
		{"internal", NewInternalError(errors.New("boom")), http.StatusInternalServerError},
		{"wrapped app error", fmt.Errorf("reserve: %w", NewForbiddenError("no")), http.StatusForbidden},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"halted purge", &PurgeError{Phase: PurgePhaseChats, Err: NewExternalServiceError("document store", nil)}, http.StatusMultiStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewNotFoundError("Profile", "u1"))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.True(t, IsConflict(NewUsernameTakenError("ada")))
	assert.True(t, IsForbidden(NewForbiddenError("no")))
	assert.True(t, IsValidation(NewValidationError("bad")))
	assert.True(t, IsExternalService(NewExternalServiceError("cache", nil)))
	assert.False(t, IsNotFound(errors.New("not found")))

	cause := errors.New("socket closed")
	perr := &PurgeError{Phase: PurgePhasePosts, Err: NewExternalServiceError("document store", cause)}
	assert.True(t, IsPartialFailure(fmt.Errorf("ban: %w", perr)))
	assert.True(t, IsExternalService(perr))
	assert.ErrorIs(t, perr, cause)
	assert.Contains(t, perr.Error(), "phase posts")
}

func TestAppError_Message(t *testing.T) {
	assert.Equal(t, "Post with ID p1 not found", NewNotFoundError("Post", "p1").Error())
	assert.Equal(t, "blob storage unavailable: timeout", NewExternalServiceError("blob storage", errors.New("timeout")).Error())
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorResponse
	}{
		{
			name: "app error with cause",
			err:  NewExternalServiceError("blob storage", errors.New("timeout")),
			want: ErrorResponse{Error: "blob storage unavailable", Code: CodeExternalService, Details: "timeout"},
		},
		{
			name: "app error",
			err:  NewValidationError("title is required"),
			want: ErrorResponse{Error: "title is required", Code: CodeValidation},
		},
		{
			name: "halted purge",
			err:  &PurgeError{Phase: PurgePhaseProfile, Err: errors.New("down")},
			want: ErrorResponse{Error: "purge halted in phase profile: down", Code: CodePartialFailure, Details: PurgePhaseProfile},
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: ErrorResponse{Error: "boom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return RespondWithError(c, HTTPStatus(tt.err), tt.err)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, HTTPStatus(tt.err), resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var got ErrorResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
