package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestDiscoverJWKSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"issuer":%q,"jwks_uri":%q}`, "https://issuer.example.com", "https://issuer.example.com/jwks")
	}))
	defer srv.Close()

	url, err := discoverJWKSURL(srv.URL)
	if err != nil {
		t.Fatalf("discoverJWKSURL: %v", err)
	}
	if url != "https://issuer.example.com/jwks" {
		t.Errorf("unexpected jwks url %q", url)
	}

	// Trailing slash on the issuer must not double up the path.
	if _, err := discoverJWKSURL(srv.URL + "/"); err != nil {
		t.Errorf("trailing slash issuer: %v", err)
	}
}

func TestDiscoverJWKSURL_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"server error", "", http.StatusInternalServerError},
		{"missing jwks_uri", `{"issuer":"x"}`, http.StatusOK},
		{"malformed document", `not json`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, err := discoverJWKSURL(srv.URL); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// Discovery must be retried until it succeeds and then memoized, so an
// identity platform that was down when the server booted only delays token
// validation instead of breaking it for good.
func TestIssuerKeyFunc_RetriesThenMemoizes(t *testing.T) {
	var discoveryHits, discoveryFails int64
	atomic.StoreInt64(&discoveryFails, 1)

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
			atomic.AddInt64(&discoveryHits, 1)
			if atomic.LoadInt64(&discoveryFails) > 0 {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprintf(w, `{"issuer":%q,"jwks_uri":%q}`, srv.URL, srv.URL+"/jwks")
		case r.URL.Path == "/jwks":
			fmt.Fprint(w, `{"keys":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	keyFunc := issuerKeyFunc(srv.URL)
	token := &jwt.Token{Header: map[string]interface{}{"alg": "RS256"}}

	// Provider down: the keyfunc surfaces a discovery error.
	if _, err := keyFunc(token); err == nil || !strings.Contains(err.Error(), "resolve jwks endpoint") {
		t.Fatalf("expected discovery error, got %v", err)
	}

	// Provider back up: the next token triggers a fresh discovery and the
	// JWKS-backed keyfunc takes over (which rejects a token without a kid).
	atomic.StoreInt64(&discoveryFails, 0)
	if _, err := keyFunc(token); err == nil || !strings.Contains(err.Error(), "kid") {
		t.Fatalf("expected kid error after discovery, got %v", err)
	}

	// Further tokens reuse the resolved endpoint.
	hits := atomic.LoadInt64(&discoveryHits)
	if _, err := keyFunc(token); err == nil || !strings.Contains(err.Error(), "kid") {
		t.Fatalf("expected kid error, got %v", err)
	}
	if got := atomic.LoadInt64(&discoveryHits); got != hits {
		t.Errorf("discovery re-ran after success: %d -> %d hits", hits, got)
	}
}
