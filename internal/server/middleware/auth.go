package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"bitbattle/internal/user/service"
	pkgerrors "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/response"
)

// RequireAuth rejects requests that do not carry a valid access token and
// stores the caller's identity in the gin context.
func RequireAuth(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing bearer token")
			return
		}
		identify(c, tokens, token)
	}
}

// OptionalAuth resolves the caller when a token is presented and lets
// anonymous requests through untouched. A presented but invalid token is
// still rejected so callers never get silently downgraded to guests.
func OptionalAuth(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}
		identify(c, tokens, token)
	}
}

func identify(c *gin.Context, tokens *service.TokenManager, token string) {
	claims, err := tokens.Parse(token, service.TokenTypeAccess)
	if err != nil {
		response.AbortWithError(c, err)
		return
	}
	c.Set("user_id", claims.Subject)
	c.Set("username", claims.Username)
	c.Next()
}

// extractToken prefers the Authorization header. Browser WebSocket clients
// cannot set headers, so socket routes accept the token as a query
// parameter instead.
func extractToken(c *gin.Context) string {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
