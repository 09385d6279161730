package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/models"
)

// userLookup loads the stored user record behind a verified identity.
type userLookup interface {
	Me(ctx context.Context, uid string) (models.User, error)
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func makeResponseJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		app.logger.Info("request",
			zap.String("remote", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, fmt.Errorf("%v", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (app *application) serverError(w http.ResponseWriter, err error) {
	app.logger.Error("server error", zap.Error(err), zap.Stack("stack"))
	app.clientError(w, http.StatusInternalServerError, "internal server error")
}

func (app *application) clientError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// verifyBearer decodes the Authorization header. ok is false when the
// header is absent; err is set when it is present but unusable.
func (app *application) verifyBearer(r *http.Request) (auth.Identity, bool, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Identity{}, false, nil
	}
	token, ok := auth.BearerToken(header)
	if !ok {
		return auth.Identity{}, true, auth.ErrInvalidToken
	}
	id, err := app.verifier.VerifyIDToken(r.Context(), token)
	if err != nil {
		return auth.Identity{}, true, err
	}
	return id, true, nil
}

// authenticate rejects requests without a valid bearer token and attaches
// the decoded identity to the request context.
func (app *application) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, present, err := app.verifyBearer(r)
		if !present {
			app.clientError(w, http.StatusUnauthorized, "authorization header missing")
			return
		}
		if err != nil {
			app.clientError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// requireRoles loads the caller's user record and checks it against roles.
// ADMIN passes every check; an empty role list admits any registered user.
// It must run after authenticate.
func (app *application) requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				app.clientError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			user, err := app.users.Me(r.Context(), id.UID)
			switch {
			case errors.Is(err, models.ErrUserNotFound):
				app.clientError(w, http.StatusNotFound, "user not found")
				return
			case err != nil:
				app.serverError(w, err)
				return
			}
			if len(roles) > 0 && !user.HasAnyRole(roles...) {
				app.clientError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

// optionalUser attaches the identity and user when a bearer token is sent.
// A malformed or rejected token is still a 401; a verified caller who has
// not registered continues as a guest.
func (app *application) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, present, err := app.verifyBearer(r)
		if !present {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			app.clientError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := auth.WithIdentity(r.Context(), id)
		user, err := app.users.Me(ctx, id.UID)
		switch {
		case err == nil:
			ctx = auth.WithUser(ctx, user)
		case !errors.Is(err, models.ErrUserNotFound):
			app.serverError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
