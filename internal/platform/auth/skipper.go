package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that bypass authentication. These are
// infrastructure endpoints that must stay reachable without credentials.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper returns true for requests whose path should skip
// authentication. Pass it to JWTMiddleware or DevAuthMiddleware so that
// health-check endpoints remain accessible without a bearer token.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
