package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TeacherAuth enforces bearer JWT tokens carrying the teacher role. The
// authenticated teacher id is stored in the context as "teacher_id".
func TeacherAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != RoleTeacher {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "teacher role required"})
			return
		}
		c.Set("teacher_id", claims.Subject)
		c.Next()
	}
}
