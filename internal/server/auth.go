package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"cleanops/internal/domain"
	"cleanops/internal/engine/auth"
)

const defaultTokenTTL = 24 * time.Hour

type AuthConfig struct {
	JWTSecret string
	DevLogin  bool
	TokenTTL  time.Duration
}

type callerKey struct{}

func withCaller(ctx context.Context, c auth.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func callerFromContext(ctx context.Context) (auth.Caller, huma.StatusError) {
	if c, ok := ctx.Value(callerKey{}).(auth.Caller); ok && c.ID != "" {
		return c, nil
	}
	return auth.Caller{}, newAPIError(http.StatusUnauthorized, "", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// authenticateJWT verifies an HS256 token and resolves its caller. An
// unrecognised role claim yields a caller with no role rather than an error.
func authenticateJWT(token, secret string) (auth.Caller, error) {
	if strings.TrimSpace(secret) == "" {
		return auth.Caller{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return auth.Caller{}, err
	}
	if !parsed.Valid {
		return auth.Caller{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return auth.Caller{}, errors.New("subject claim required")
	}
	role, _ := domain.ParseRole(claims.Role)
	return auth.Caller{ID: claims.Subject, Role: role}, nil
}

// SignToken mints an HS256 bearer token for subject carrying role.
func SignToken(cfg AuthConfig, subject, role string) (string, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: strings.TrimSpace(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] || req.URL.Path == path.Join(basePath, "openapi.json") {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "invalid credentials", nil))
				return
			}
			caller, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withCaller(req.Context(), caller)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
