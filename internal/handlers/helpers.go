package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/models"
	"danceBack/internal/payments"
	"danceBack/internal/services"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeSuccess writes the {success:true,...} envelope.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func currentUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return models.User{}, false
	}
	return user, true
}

var (
	notFoundErrors = []error{
		models.ErrUserNotFound, models.ErrOrderNotFound, models.ErrCourseNotFound, models.ErrResourceNotFound,
		models.ErrCertificateNotFound, models.ErrCartItemNotFound, models.ErrSubscriptionNotFound,
	}
	badRequestErrors = []error{
		models.ErrInvalidQuantity, models.ErrInvalidItemType, models.ErrEmptyOrder, models.ErrUnknownPlan,
		payments.ErrInvalidSignature,
	}
	conflictErrors = []error{
		models.ErrSubscriptionCancelled, models.ErrPeriodEnded, models.ErrStatusConflict, models.ErrInvalidTransition,
		services.ErrUsernameUnavailable,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusFor maps a service error onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var perr *payments.ProcessorError
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, services.ErrInvalidCartToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case isAny(err, notFoundErrors):
		return http.StatusNotFound, errorMessage(err)
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest, errorMessage(err)
	case isAny(err, conflictErrors):
		return http.StatusConflict, errorMessage(err)
	case errors.As(err, &perr):
		if perr.StatusCode >= 400 && perr.StatusCode < 500 && perr.StatusCode != http.StatusUnauthorized && perr.StatusCode != http.StatusTooManyRequests {
			return http.StatusBadRequest, perr.Message
		}
		return http.StatusBadGateway, "payment processor unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}

func errorMessage(err error) string {
	for _, group := range [][]error{notFoundErrors, badRequestErrors, conflictErrors} {
		for _, t := range group {
			if errors.Is(err, t) {
				return trimPrefix(t.Error())
			}
		}
	}
	return err.Error()
}

// trimPrefix drops the "package: " prefix of sentinel messages.
func trimPrefix(msg string) string {
	if _, rest, ok := strings.Cut(msg, ": "); ok {
		return rest
	}
	return msg
}

// respondError writes the mapped status. Unexpected errors are logged and
// hidden behind a generic message.
func respondError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}
