package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/wearly/wearly/internal/auth/domain"
)

const contextUserKey = "auth.user"

// AuthRequired resolves the bearer token to a user and puts it on the
// request context. No identity means 401 before any handler runs.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) (authdomain.User, bool) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return authdomain.User{}, false
	}
	user, ok := value.(authdomain.User)
	return user, ok
}
