package chi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/logger"
	"github.com/kailas-cloud/bookmarkd/internal/transport/authsvc"
)

// Cookie names shared with the auth service.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const (
	defaultAccessTTL = time.Hour
	refreshTTL       = 30 * 24 * time.Hour
)

// SessionVerifier checks and renews cookie sessions.
type SessionVerifier interface {
	Verify(ctx context.Context, accessToken string) (authsvc.Subject, error)
	Refresh(ctx context.Context, refreshToken string) (authsvc.Tokens, error)
}

// AuthConfig configures API authentication.
// With no API keys and no Sessions, authentication is disabled.
type AuthConfig struct {
	APIKeys      []string
	Sessions     SessionVerifier
	SecureCookie bool
}

type subjectKey struct{}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (authsvc.Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(authsvc.Subject)
	return s, ok
}

// AuthMiddleware authenticates API requests by Bearer API key or by the
// access_token cookie. An expired cookie session is renewed with the
// refresh_token cookie and both cookies are re-set on the response.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	validKeys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			validKeys = append(validKeys, k)
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled
		if len(validKeys) == 0 && cfg.Sessions == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); auth != "" {
				const bearerPrefix = "Bearer "
				if !strings.HasPrefix(auth, bearerPrefix) {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authorization header must use Bearer scheme")
					return
				}
				if !keyMatches(validKeys, auth[len(bearerPrefix):]) {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid api key")
					return
				}
				ctx := context.WithValue(r.Context(), subjectKey{}, authsvc.Subject{ID: "api-key"})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if cfg.Sessions == nil {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing authorization header")
				return
			}

			sub, err := cookieSession(w, r, cfg)
			switch {
			case errors.Is(err, domain.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "unauthorized")
				return
			case err != nil:
				logger.FromContext(r.Context()).Error("verify session", zap.Error(err))
				writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, sub)
			ctx = logger.With(ctx, zap.String("user_id", sub.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// cookieSession verifies the access token, refreshing it once when rejected.
func cookieSession(w http.ResponseWriter, r *http.Request, cfg AuthConfig) (authsvc.Subject, error) {
	ctx := r.Context()
	access := cookieValue(r, AccessTokenCookie)

	if access != "" {
		sub, err := cfg.Sessions.Verify(ctx, access)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, domain.ErrUnauthorized) {
			return authsvc.Subject{}, err //nolint:wrapcheck // passed through to the middleware
		}
	}

	refresh := cookieValue(r, RefreshTokenCookie)
	if refresh == "" {
		return authsvc.Subject{}, domain.ErrUnauthorized
	}

	tokens, err := cfg.Sessions.Refresh(ctx, refresh)
	if err != nil {
		return authsvc.Subject{}, err //nolint:wrapcheck // passed through to the middleware
	}
	sub, err := cfg.Sessions.Verify(ctx, tokens.AccessToken)
	if err != nil {
		return authsvc.Subject{}, err //nolint:wrapcheck // passed through to the middleware
	}

	setAuthCookies(w, tokens, refresh, cfg.SecureCookie)
	logger.FromContext(ctx).Debug("session refreshed", zap.String("user_id", sub.ID))
	return sub, nil
}

func setAuthCookies(w http.ResponseWriter, tokens authsvc.Tokens, oldRefresh string, secure bool) {
	accessTTL := defaultAccessTTL
	if !tokens.Expiry.IsZero() {
		if ttl := time.Until(tokens.Expiry); ttl > 0 {
			accessTTL = ttl
		}
	}
	refresh := tokens.RefreshToken
	if refresh == "" {
		refresh = oldRefresh
	}

	http.SetCookie(w, authCookie(AccessTokenCookie, tokens.AccessToken, accessTTL, secure))
	http.SetCookie(w, authCookie(RefreshTokenCookie, refresh, refreshTTL, secure))
}

func authCookie(name, value string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func keyMatches(keys []string, token string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// gateExemptPrefixes never redirect to the login page.
var gateExemptPrefixes = []string{"/api/", "/auth", "/health", "/metrics", "/favicon.ico"}

var imageExtensions = map[string]struct{}{
	".svg": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {},
}

// PageGate redirects browser requests without an access_token cookie to loginPath.
// Only the cookie's presence is checked; API routes do the verification.
func PageGate(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gateExempt(r.URL.Path) || cookieValue(r, AccessTokenCookie) != "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, loginPath, http.StatusFound)
		})
	}
}

func gateExempt(p string) bool {
	for _, prefix := range gateExemptPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}
