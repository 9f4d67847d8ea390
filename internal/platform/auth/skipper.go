package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: health checks and the branding the
// sign-in page renders.
var publicPaths = map[string]bool{
	"/health":                   true,
	"/health/db":                true,
	"/health/ready":             true,
	"/api/v1/settings/branding": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
