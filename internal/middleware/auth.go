package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// JWT verifies an HS256 bearer token and stores the caller's identity and role on the
// context. The identity is read from the "sub" claim, falling back to "user_id".
func JWT(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id, _ := claims["sub"].(string)
			if id == "" {
				id, _ = claims["user_id"].(string)
			}
			if id == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}
			role, _ := claims["role"].(string)

			c.Set(userIDKey, id)
			c.Set(roleKey, role)
			return next(c)
		}
	}
}

// UserID returns the identity set by JWT.
func UserID(c echo.Context) (string, error) {
	id, ok := c.Get(userIDKey).(string)
	if !ok || id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

// Role returns the role claim set by JWT, if any.
func Role(c echo.Context) string {
	role, _ := c.Get(roleKey).(string)
	return role
}
