package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/JuanCarJ/studioz-academy-sub000/common/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"
	accessCookie   = "access_token"
)

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireUser authenticates the storefront session from the bearer header,
// falling back to the access_token cookie.
func RequireUser(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if v, err := c.Cookie(accessCookie); err == nil {
				token = v
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := auth.ParseAndValidateToken(jwtSecret, token, "")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		identity, err := auth.IdentityFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(UserContextKey, identity.UserID)
		c.Set(RoleContextKey, identity.Role)
		c.Next()
	}
}

// RequireAdmin must run after RequireUser.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleContextKey) != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// CronAuth guards the scheduled job endpoints with a shared bearer secret.
// An empty secret locks the endpoints.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) (uuid.UUID, error) {
	val, exists := c.Get(UserContextKey)
	if !exists {
		return uuid.Nil, errors.New("user ID not found in context")
	}
	userID, ok := val.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, errors.New("user ID has invalid type in context")
	}
	return userID, nil
}
