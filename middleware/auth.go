package middleware

import (
	"errors"
	"net/http"
	"strings"

	"riderx/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var ErrTokenRequired = errors.New("authentication token required")

type AuthMiddleware struct {
	jwtService *utils.JWTService
}

func NewAuthMiddleware(jwtService *utils.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// RequireAuth validates the bearer token and sets the rider in the context
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := am.extractToken(c)
		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication token required", "AUTH_TOKEN_REQUIRED")
			c.Abort()
			return
		}

		claims, err := am.jwtService.ValidateToken(token)
		if err != nil {
			logrus.Warnf("Invalid token: %v", err)
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid authentication token", "AUTH_TOKEN_INVALID")
			c.Abort()
			return
		}

		c.Set("riderID", claims.RiderID)
		c.Next()
	}
}

// WebSocketAuth validates a token passed on the websocket handshake
func (am *AuthMiddleware) WebSocketAuth(token string) (string, error) {
	if token == "" {
		return "", ErrTokenRequired
	}

	claims, err := am.jwtService.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.RiderID, nil
}

// ExtractToken reads the bearer token from the header, query or cookie.
func (am *AuthMiddleware) ExtractToken(c *gin.Context) string {
	return am.extractToken(c)
}

func (am *AuthMiddleware) extractToken(c *gin.Context) string {
	// Bearer token format
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// Browsers cannot set headers on websocket upgrades
	if token := c.Query("token"); token != "" {
		return token
	}

	if token, err := c.Cookie("auth_token"); err == nil {
		return token
	}

	return ""
}
