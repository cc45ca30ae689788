package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"augmint/crypto"
)

// CallerHeader carries the caller address when no JWT secret is configured.
const CallerHeader = "X-Augmint-Caller"

type AuthConfig struct {
	// HMACSecret enables bearer JWT authentication; the token subject is the
	// caller address. Empty falls back to CallerHeader.
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "augmint.caller"

// Authenticator resolves the caller address of each request.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger.With("component", "rpc.auth"),
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
	}
}

// Enabled reports whether JWT authentication is active.
func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// Middleware attaches the caller to the request context. Requests without
// credentials pass through anonymous; handlers that need a caller use
// CallerFromContext. Invalid credentials are rejected outright.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, present, err := a.resolve(r)
		if err != nil {
			a.logger.Warn("caller rejected", "path", r.URL.Path, "error", err)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if present {
			r = r.WithContext(context.WithValue(r.Context(), contextKeyCaller, caller))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(r *http.Request) (crypto.Address, bool, error) {
	if !a.Enabled() {
		raw := strings.TrimSpace(r.Header.Get(CallerHeader))
		if raw == "" {
			return crypto.Address{}, false, nil
		}
		addr, err := crypto.ParseAddress(raw)
		return addr, err == nil, err
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return crypto.Address{}, false, nil
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, false, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return crypto.Address{}, false, err
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return crypto.Address{}, false, errors.New("token subject missing")
	}
	addr, err := crypto.ParseAddress(subject)
	return addr, err == nil, err
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	addr, ok := ctx.Value(contextKeyCaller).(crypto.Address)
	return addr, ok
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		auds, err := claims.GetAudience()
		if err != nil {
			return err
		}
		matched := false
		for _, aud := range auds {
			if aud == audience {
				matched = true
				break
			}
		}
		if !matched {
			return errors.New("audience mismatch")
		}
	}
	return nil
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
