package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/localstore"
	"lifelog/internal/providers"
	"lifelog/internal/session"
)

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "yes").
		JSON(map[string]int{"n": 1}).
		Send(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Custom") != "yes" {
		t.Error("custom header not set")
	}
	if strings.TrimSpace(w.Body.String()) != `{"n":1}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Send(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "" {
		t.Error("Content-Type set without a body")
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantLog    bool
		wantBody   string
	}{
		{"validation", core.ErrEmptyTitle, http.StatusUnprocessableEntity, false, "empty title"},
		{"wrapped validation", fmt.Errorf("create: %w", localstore.ErrInvalidClock), http.StatusUnprocessableEntity, false, "HH:MM"},
		{"bad body", errBadBody, http.StatusBadRequest, false, "invalid request body"},
		{"signed out", providers.ErrNoIdentity, http.StatusUnauthorized, false, "not signed in"},
		{"login", session.ErrLoginFailed, http.StatusUnauthorized, false, "failed to log in"},
		{"signup", session.ErrSignupFailed, http.StatusBadRequest, false, "failed to sign up"},
		{"missing document", fmt.Errorf("update expenses: %w", docstore.ErrNotFound), http.StatusNotFound, false, "not found"},
		{"missing goal", localstore.ErrGoalNotFound, http.StatusNotFound, false, "not found"},
		{"unconfirmed", fmt.Errorf("%w: create x", providers.ErrNotConfirmed), http.StatusAccepted, false, "accepted"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, true, "timed out"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, true, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, unexpected := ErrorFor(tt.err)
			if resp.StatusCode() != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode(), tt.wantStatus)
			}
			if unexpected != tt.wantLog {
				t.Errorf("unexpected = %v, want %v", unexpected, tt.wantLog)
			}
			w := httptest.NewRecorder()
			resp.Send(w)
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %q missing %q", w.Body.String(), tt.wantBody)
			}
			if strings.Contains(w.Body.String(), "disk on fire") {
				t.Error("internal error leaked to client")
			}
		})
	}
}

func TestWriteStatus(t *testing.T) {
	if got := writeStatus(nil, http.StatusCreated); got != http.StatusCreated {
		t.Errorf("writeStatus(nil) = %d", got)
	}
	if got := writeStatus(fmt.Errorf("%w: x", providers.ErrNotConfirmed), http.StatusCreated); got != http.StatusAccepted {
		t.Errorf("writeStatus(unconfirmed) = %d", got)
	}
}
