package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that bypass bearer-token authentication. They
// carry their own boundary protection: health endpoints expose no data, the
// billing webhook authenticates by payload signature, event ingest by shared
// secret, and registration is the unauthenticated bootstrap for a practice's
// first admin (rate limited like the rest of the API).
var publicPaths = map[string]bool{
	"/health":               true,
	"/health/db":            true,
	"/webhooks/billing":     true,
	"/api/v1/registrations": true,
	"/api/v1/events":        true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is a public endpoint that
// should bypass auth and tenant middleware.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
