package middleware

import (
	"strings"

	"slagie/internal/logger"
	"slagie/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	AuthorizationHeader = "Authorization"
	BearerSchema        = "Bearer "
	UserIDKey           = "userID" // Key for storing UserID in fiber.Ctx locals
)

// bearerToken extracts the token from the Authorization header. The returned
// code is empty on success.
func bearerToken(c *fiber.Ctx) (token, code, message string) {
	authHeader := c.Get(AuthorizationHeader)
	if authHeader == "" {
		return "", "MISSING_AUTH_HEADER", "Authorization header is missing"
	}
	if !strings.HasPrefix(authHeader, BearerSchema) {
		return "", "INVALID_AUTH_SCHEME", "Authorization scheme is not Bearer"
	}
	token = strings.TrimSpace(strings.TrimPrefix(authHeader, BearerSchema))
	if token == "" {
		return "", "EMPTY_TOKEN", "Token is empty"
	}
	return token, "", ""
}

// Protected requires a valid bearer token and stores the caller's user id in
// the context. It authenticates only; roles are not checked.
func Protected(tokens service.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, code, message := bearerToken(c)
		if code != "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Code:    code,
				Message: message,
				Status:  fiber.StatusUnauthorized,
			})
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: err.Error(),
				Status:  fiber.StatusUnauthorized,
			})
		}

		c.Locals(UserIDKey, claims.UserID)
		return c.Next()
	}
}

// OptionalAuth sets the user id when a valid token is presented and otherwise
// lets the request through anonymously.
func OptionalAuth(tokens service.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, code, _ := bearerToken(c)
		if code == "MISSING_AUTH_HEADER" {
			return c.Next()
		}
		if code != "" {
			logger.Get().Debug("OptionalAuth: malformed authorization header, proceeding as anonymous.", zap.String("reason", code))
			return c.Next()
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			logger.Get().Debug("OptionalAuth: token validation failed, proceeding as anonymous.", zap.Error(err))
			return c.Next()
		}

		c.Locals(UserIDKey, claims.UserID)
		logger.Get().Debug("OptionalAuth: user authenticated.", zap.String("userID", claims.UserID))
		return c.Next()
	}
}

// UserID returns the authenticated user id or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals(UserIDKey).(string); ok {
		return v
	}
	return ""
}
