package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-document-platform/utils"
)

const (
	userIDKey = "user_id"
	claimsKey = "claims"
)

// RequireAuth accepts an HS256 bearer token and stores its user in the context.
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			return
		}

		claims, err := utils.ValidateJWT(tokenString, jwtSecret)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized, "invalid_token", "Could not validate credentials", nil)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// GetUserID returns the authenticated user, or "" outside RequireAuth.
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get(userIDKey); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}
