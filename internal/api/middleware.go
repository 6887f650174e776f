/**
 * @description
 * This file contains the authentication middleware for the HTTP router. Bearer tokens
 * are RS256 JWTs verified against a JWKS endpoint; the verified claims become the
 * `domain.Principal` handlers act on behalf of.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 * - github.com/patrickmn/go-cache: Caches JWKS keys between requests.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
)

// PrincipalContextKey is a custom type for the context key to avoid collisions.
type PrincipalContextKey string

const principalKey PrincipalContextKey = "principal"

const (
	githubUsernameClaim = "github_username"
	jwksCacheTTL        = 15 * time.Minute
	jwksMinRefresh      = time.Minute
)

// KeySource resolves the public key for a token key id.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// JWKSKeySource fetches signing keys from a JWKS endpoint and caches them by key id.
type JWKSKeySource struct {
	url    string
	client *http.Client
	cache  *gocache.Cache

	mu          sync.Mutex
	lastRefresh time.Time
	minRefresh  time.Duration
	now         func() time.Time
}

func NewJWKSKeySource(jwksURL string) *JWKSKeySource {
	return &JWKSKeySource{
		url:        jwksURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		cache:      gocache.New(jwksCacheTTL, 2*jwksCacheTTL),
		minRefresh: jwksMinRefresh,
		now:        time.Now,
	}
}

// PublicKey returns the cached key for kid, refreshing the key set on a miss so rotated
// keys are picked up. The endpoint is fetched at most once per minRefresh, whatever kid
// the token claims.
func (s *JWKSKeySource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if cached, found := s.cache.Get(kid); found {
		return cached.(*rsa.PublicKey), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, found := s.cache.Get(kid); found {
		return cached.(*rsa.PublicKey), nil
	}
	if !s.lastRefresh.IsZero() && s.now().Sub(s.lastRefresh) < s.minRefresh {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}

	s.lastRefresh = s.now()
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	if cached, found := s.cache.Get(kid); found {
		return cached.(*rsa.PublicKey), nil
	}
	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func (s *JWKSKeySource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}

	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return fmt.Errorf("parse key %s: %w", key.Kid, err)
		}
		s.cache.SetDefault(key.Kid, publicKey)
	}
	return nil
}

// parseRSAPublicKey parses an RSA public key from its base64url modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}

// AuthOptions configures token validation. Empty Audience or Issuer disables that check.
type AuthOptions struct {
	Audience string
	Issuer   string
}

// JWTAuthMiddleware creates a middleware that validates bearer tokens and stores the
// resulting principal in the request context.
func JWTAuthMiddleware(keys KeySource, opts AuthOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims := jwt.MapClaims{}
			_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}
				return keys.PublicKey(r.Context(), kid)
			})
			if err != nil {
				logger.Warn("rejected bearer token", "component", "api", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			principal, ok := principalFromClaims(claims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Subject not found in token")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromClaims(claims jwt.MapClaims) (domain.Principal, bool) {
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.Principal{}, false
	}

	principal := domain.Principal{
		Subject:           subject,
		PlatformUsernames: map[domain.Platform]string{},
	}
	for _, key := range []string{"name", "preferred_username"} {
		if name, ok := claims[key].(string); ok && name != "" {
			principal.Name = name
			break
		}
	}
	if login, ok := claims[githubUsernameClaim].(string); ok && strings.TrimSpace(login) != "" {
		principal.PlatformUsernames[domain.PlatformGithub] = strings.TrimSpace(login)
	}
	return principal, true
}

// GetPrincipal retrieves the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(domain.Principal)
	return principal, ok
}
