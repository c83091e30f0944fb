package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/pkg/config"
	"housekeeping/pkg/staffauth"
)

// StaffSessionAuth validates staff session tokens.
//
// Expected header:
// - Authorization: Bearer <JWT>
//
// Outside prod, a missing Authorization header can fall back to
// X-Staff-Id / X-Staff-Role to keep local testing simple.
func StaffSessionAuth(cfg config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token := strings.TrimSpace(authz[7:])
				s, err := staffauth.Verify(token, cfg.SessionSecret, time.Now())
				if err != nil {
					log.Debug("staff session rejected", zap.Error(err))
					WriteErr(w, apperr.Unauthorized("invalid session token"))
					return
				}
				role, err := actor.ParseRole(s.Role)
				if err != nil || role == actor.RoleSystem {
					WriteErr(w, apperr.Unauthorized("invalid role claim"))
					return
				}
				a := actor.Actor{ID: s.StaffID, Role: role}
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
				return
			}

			if !cfg.IsProd() {
				if a, ok := devActor(r); ok {
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
					return
				}
			}

			WriteErr(w, apperr.Unauthorized("missing session token"))
		})
	}
}

func devActor(r *http.Request) (actor.Actor, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Staff-Id"))
	if id == "" {
		return actor.Actor{}, false
	}
	role := actor.RoleStaff
	if v := strings.TrimSpace(r.Header.Get("X-Staff-Role")); v != "" {
		parsed, err := actor.ParseRole(v)
		if err != nil || parsed == actor.RoleSystem {
			return actor.Actor{}, false
		}
		role = parsed
	}
	return actor.Actor{ID: id, Role: role}, true
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
