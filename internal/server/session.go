package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey  = "marquee_user_id"
	eventsPath        = "/api/events"
	accessTokenQuery  = "access_token"
	authorizationName = "Authorization"
)

// resolveSession attaches the signed-in user to the request when a valid
// session is present. Requests without one continue anonymously.
func (h *httpHandler) resolveSession(c *gin.Context) {
	// EventSource cannot send headers, so the stream also accepts a query token.
	if c.FullPath() == eventsPath && c.GetHeader(authorizationName) == "" {
		if token := strings.TrimSpace(c.Query(accessTokenQuery)); token != "" {
			c.Request.Header.Set(authorizationName, "Bearer "+token)
		}
	}

	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingSessionToken) {
			h.logSessionFailure(c, err)
		}
		c.Next()
		return
	}

	userID, err := h.identities.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("identity resolution failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.Next()
		return
	}

	ctx := auth.WithClaims(auth.WithUserID(c.Request.Context(), userID), claims)
	c.Request = c.Request.WithContext(ctx)
	c.Set(userIDContextKey, userID)
	c.Next()
}

// requireSession rejects anonymous requests.
func (h *httpHandler) requireSession(c *gin.Context) {
	if _, ok := auth.UserIDFromContext(c.Request.Context()); ok {
		c.Next()
		return
	}
	notification := h.notifications.Error("", notify.MessageSignedOut)
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
		Error:        "unauthorized",
		Notification: &notification,
	})
}

// Expired sessions are routine; anything else is worth a warning.
func (h *httpHandler) logSessionFailure(c *gin.Context, err error) {
	fields := []zap.Field{
		zap.String("request_id", c.GetString(requestIDContextKey)),
		zap.Error(err),
	}
	if errors.Is(err, auth.ErrExpiredSessionToken) {
		h.logger.Info("session validation failed", fields...)
		return
	}
	h.logger.Warn("session validation failed", fields...)
}
