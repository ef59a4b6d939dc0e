package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/stock-ledger/services/common/auth"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
)

const (
	UserContextKey = "user_id"
	RoleContextKey = "user_role"
)

// AuthMiddleware accepts the identity headers set by the API gateway, or
// a Bearer access token when the service is called directly.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			role := c.GetHeader("X-User-Role")
			if role == "" {
				role = auth.RoleUser
			}
			setIdentity(c, auth.Identity{UserID: userID, Role: role})
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			apperrors.Respond(c, apperrors.ErrUnauthorized.WithMessage("missing credentials"))
			return
		}
		id, err := verifier.Identify(token)
		if err != nil {
			apperrors.Respond(c, apperrors.ErrInvalidToken.Wrap(err))
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleContextKey) != auth.RoleAdmin {
			apperrors.Respond(c, apperrors.ErrForbidden.WithMessage("admin role required"))
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) (string, error) {
	if id := c.GetString(UserContextKey); id != "" {
		return id, nil
	}
	return "", errors.New("user ID not found in context")
}

func setIdentity(c *gin.Context, id auth.Identity) {
	c.Set(UserContextKey, id.UserID)
	c.Set(RoleContextKey, id.Role)
}
