package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/auth"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"go.uber.org/zap"
)

const (
	identityContextKey = "dong_editor_identity"
	claimsContextKey   = "dong_session_claims"
)

// identify resolves the editor identity of every request. A request without a session is
// anonymous; a request carrying an invalid session is rejected.
func (h *httpHandler) identify(c *gin.Context) {
	identity := revisions.EditorIdentity{AnonymousSessionID: h.anonymousSessionID(c)}

	claims, err := h.sessions.ValidateRequest(c.Request)
	switch {
	case err == nil:
		identity.UserID = claims.UserID
		c.Set(claimsContextKey, claims)
	case errors.Is(err, auth.ErrMissingSessionToken):
	default:
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) requireReviewer(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !claims.HasRole(auth.RoleReviewer) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *httpHandler) anonymousSessionID(c *gin.Context) string {
	if h.anonymousName != "" {
		if value, err := c.Cookie(h.anonymousName); err == nil && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(c.GetHeader(anonymousSessionHeader))
}

func editorIdentity(c *gin.Context) revisions.EditorIdentity {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return revisions.EditorIdentity{}
	}
	identity, _ := value.(revisions.EditorIdentity)
	return identity
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}
