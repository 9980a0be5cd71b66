package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/log-console/internal/assistant"
	"github.com/miradorstack/log-console/internal/conversation"
	"github.com/miradorstack/log-console/internal/dashboard"
	"github.com/miradorstack/log-console/internal/models"
	"github.com/miradorstack/log-console/internal/repo"
	"github.com/miradorstack/log-console/internal/session"
	"github.com/miradorstack/log-console/internal/utils"
)

var errBadRequest = errors.New("malformed request body")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var httpErr *repo.HTTPError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, conversation.ErrTurnNotFound),
		errors.Is(err, assistant.ErrFeedbackClosed):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, errBadRequest),
		errors.Is(err, assistant.ErrEmptyInput),
		errors.Is(err, assistant.ErrUnknownAction),
		errors.Is(err, dashboard.ErrInvalidPage),
		errors.Is(err, dashboard.ErrInvalidRange),
		errors.Is(err, models.ErrInvalidBound),
		errors.Is(err, conversation.ErrInvalidRating),
		errors.Is(err, session.ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.As(err, &httpErr):
		if httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden {
			return httpErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn("request failed", slog.String("path", c.FullPath()), slog.Int("status", code), slog.Any("error", err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": utils.UserMessage(err)})
}
