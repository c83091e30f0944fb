package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/pkg/config"
	"housekeeping/pkg/staffauth"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

func TestWriteErr_MapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("bad priority"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{fmt.Errorf("wrap: %w", apperr.InvalidTransition("task is completed")), http.StatusConflict, "INVALID_TRANSITION"},
		{apperr.InsufficientStock("short"), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{apperr.NotFound("room r9"), http.StatusNotFound, "NOT_FOUND"},
		{apperr.Busy("room:r1 is held"), http.StatusServiceUnavailable, "BUSY"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "BUSY"},
		{apperr.Forbidden("supervisor only"), http.StatusForbidden, "FORBIDDEN"},
		{apperr.Unauthorized("missing session token"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteErr(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		got := decodeEnvelope(t, rec)
		require.Equal(t, tc.code, got.Code)
		if tc.code == "INTERNAL" {
			require.Equal(t, "internal error", got.Message)
		}
	}
}

func TestStaffSessionAuth_BearerToken(t *testing.T) {
	cfg := config.Config{AppEnv: "prod", SessionSecret: "s3cret"}
	tok, err := staffauth.Issue("S7", "supervisor", cfg.SessionSecret, time.Now(), time.Hour)
	require.NoError(t, err)

	var got actor.Actor
	h := StaffSessionAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/rooms", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, actor.Supervisor("S7"), got)
}

func TestStaffSessionAuth_DevHeadersOnlyOutsideProd(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
		r.Header.Set("X-Staff-Id", "S1")
		return r
	}

	rec := httptest.NewRecorder()
	StaffSessionAuth(config.Config{AppEnv: "dev"}, nil)(ok).ServeHTTP(rec, req())
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	StaffSessionAuth(config.Config{AppEnv: "prod"}, nil)(ok).ServeHTTP(rec, req())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, string(apperr.KindUnauthorized), decodeEnvelope(t, rec).Code)

	r := req()
	r.Header.Set("X-Staff-Role", "system")
	rec = httptest.NewRecorder()
	StaffSessionAuth(config.Config{AppEnv: "dev"}, nil)(ok).ServeHTTP(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSMiddleware_OnlyAllowlistedOrigins(t *testing.T) {
	h := CORSMiddleware(CORSOptions{AllowedOrigins: []string{"https://ops.example"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodOptions, "/v1/rooms", nil)
	req.Header.Set("Origin", "https://ops.example")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/rooms", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
