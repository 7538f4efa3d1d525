package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"refund-review-api/models"
	"refund-review-api/services"
)

const (
	reviewerKey  = "reviewer"
	principalKey = "principal"
)

// AuthMiddleware validates the bearer token and loads the reviewer it names.
// Websocket clients may pass the token as ?token= since browsers cannot set headers.
func AuthMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		reviewer, err := auth.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, services.ErrUnavailable) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": services.ReasonOf(err)})
			c.Abort()
			return
		}

		principal := reviewer.Principal()
		c.Set(reviewerKey, reviewer)
		c.Set(principalKey, &principal)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := strings.TrimSpace(c.Query("token")); token != "" && isWebsocketUpgrade(c) {
			return token, true
		}
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
		return "", false
	}
	return strings.TrimSpace(tokenString), true
}

func isWebsocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// PrincipalFrom returns the principal set by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (*models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Principal)
	return p, ok && p != nil
}

// ReviewerFrom returns the reviewer loaded by AuthMiddleware.
func ReviewerFrom(c *gin.Context) (*models.Reviewer, bool) {
	v, ok := c.Get(reviewerKey)
	if !ok {
		return nil, false
	}
	r, ok := v.(*models.Reviewer)
	return r, ok && r != nil
}

// RequireCapability checks the caller's role against the casbin capability policy.
func RequireCapability(enforcer *services.CapabilityEnforcer, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Reviewer not found in context"})
			c.Abort()
			return
		}

		allowed, err := enforcer.Allowed(principal.Role, resource, action)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireIngestToken guards machine-to-machine ingestion with a shared token.
// An empty configured token disables the endpoint.
func RequireIngestToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimSpace(c.GetHeader("X-Ingest-Token"))
		if token == "" || got != token {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
