package middleware

import (
	"net/http"
	"slices"
	"strings"

	"safeflag/internal/dto/resp"
	"safeflag/internal/service"

	"github.com/gin-gonic/gin"
)

type TokenParser interface {
	ParseToken(tokenString string) (*service.UserClaims, error)
}

// JWTMiddleware authenticates the bearer token and puts the operator into the request context.
// EventSource clients cannot set headers, so a token query parameter is accepted too.
func JWTMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "authorization header missing", nil))
			return
		}

		claims, err := parser.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "invalid access token", nil))
			return
		}

		op := &service.OperatorInfo{
			UserID: claims.UserID,
			Name:   claims.Username,
			Role:   claims.Role,
		}

		ctx := service.WithOperator(c.Request.Context(), op)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole lets through operators holding one of roles. Must run after JWTMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op := service.GetOperatorInfo(c.Request.Context())
		if op == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "no authenticated operator", nil))
			return
		}
		if !slices.Contains(roles, op.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, resp.Fail("Forbidden", "insufficient role", gin.H{"required": roles}))
			return
		}
		c.Next()
	}
}
