// auth.go validates bearer JWT authentication and mirrors the authenticated
// identity into the users table so memberships and audit rows always have a
// row to reference.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → Auth → Handler
//
// Security headers run first so they appear on all responses including
// errors. Auth populates the user identity; membership roles are resolved per
// organization by the service layer, not here.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/auth"
	"github.com/keynest/keynest/internal/db/models"
	"github.com/keynest/keynest/internal/db/repositories"
)

// Context keys set by AuthMiddleware
const (
	UserKey      = "user"
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
)

// AuthMiddleware validates the bearer JWT and loads the caller into context
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		// Mirror the identity so foreign keys resolve even for callers the
		// identity layer created after our last sighting of them.
		user := &models.User{
			ID:    claims.UserID,
			Email: claims.Email,
		}
		if err := userRepo.Upsert(c.Request.Context(), user); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(UserEmailKey, user.Email)

		c.Next()
	}
}

// CurrentUserID returns the authenticated caller's user id, or "" when the
// request did not pass AuthMiddleware.
func CurrentUserID(c *gin.Context) string {
	id, ok := c.Get(UserIDKey)
	if !ok {
		return ""
	}
	s, _ := id.(string)
	return s
}
