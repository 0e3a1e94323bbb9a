package middleware

import "github.com/labstack/echo/v4"

// RoleAdmin is the role claim that unlocks operator routes.
const RoleAdmin = "admin"

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return RequireRoles(RoleAdmin)(next)
}
