package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/domain/models"
	"github.com/kdiawara/branchstock/pkg/clients/identity"
)

const principalKey = "principal"

// Auth verifies the caller's bearer token against the identity provider and
// stores the resolved principal in the request context.
func Auth(client identity.Client, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"category": "authorization",
				"error":    "missing bearer token",
			})
			return
		}

		principal, err := client.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"category": "authorization",
					"error":    "invalid credentials",
				})
				return
			}
			logger.Error("identity provider unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"category": "internal",
				"error":    "identity provider unavailable",
			})
			return
		}

		c.Set(principalKey, *principal)
		c.Next()
	}
}

// PrincipalFrom extracts the verified principal stored by the Auth
// middleware.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := v.(models.Principal)
	return principal, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
