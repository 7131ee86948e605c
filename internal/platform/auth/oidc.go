package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// discoveryDoc is the slice of the OpenID Connect discovery document this
// service reads. The identity platform publishes it at
// /.well-known/openid-configuration under the issuer URL.
type discoveryDoc struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL fetches the issuer's discovery document and returns the
// advertised jwks_uri.
func discoverJWKSURL(issuerURL string) (string, error) {
	discoveryURL := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(discoveryURL)
	if err != nil {
		return "", fmt.Errorf("fetching OIDC discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decoding OIDC discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("OIDC discovery document missing jwks_uri")
	}
	return doc.JWKSURI, nil
}

// issuerKeyFunc returns a jwt.Keyfunc that resolves the issuer's JWKS
// endpoint lazily through OIDC discovery. Discovery is retried on every
// token until it succeeds; after that the cached JWKS keyfunc takes over.
// An identity platform that is unreachable at boot therefore delays
// authentication instead of disabling it for the life of the process.
func issuerKeyFunc(issuerURL string) jwt.Keyfunc {
	var (
		mu    sync.Mutex
		inner jwt.Keyfunc
	)
	return func(token *jwt.Token) (interface{}, error) {
		mu.Lock()
		if inner == nil {
			jwksURL, err := discoverJWKSURL(issuerURL)
			if err != nil {
				mu.Unlock()
				return nil, fmt.Errorf("resolve jwks endpoint: %w", err)
			}
			inner = jwksKeyFunc(jwksURL)
		}
		fn := inner
		mu.Unlock()
		return fn(token)
	}
}
