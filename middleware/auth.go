package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gullin-backend/models"
	"gullin-backend/utils"
)

type contextKey string

const principalContextKey contextKey = "principal"

type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID uint) (models.Principal, error)
}

// Authenticator resolves the session token from the auth cookie or the
// Authorization header ("JWT <token>" or "Bearer <token>").
type Authenticator struct {
	tokens     *utils.TokenManager
	loader     PrincipalLoader
	cookieName string
	logger     *zap.Logger
}

func NewAuthenticator(tokens *utils.TokenManager, loader PrincipalLoader, cookieName string, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, loader: loader, cookieName: cookieName, logger: logger}
}

// TokenFromRequest prefers the Authorization header over the cookie.
func (a *Authenticator) TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && (parts[0] == "JWT" || parts[0] == "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.TokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided")
			return
		}
		claims, err := a.tokens.Validate(token)
		if err != nil {
			a.logger.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		principal, err := a.loader.LoadPrincipal(r.Context(), claims.UserID)
		if err != nil {
			a.logger.Debug("principal rejected", zap.Uint("user_id", claims.UserID), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireInvestor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if InvestorFromContext(r) == nil {
			writeError(w, http.StatusForbidden, "Investor account required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r)
		if p == nil || !p.Account().IsStaff {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func PrincipalFromContext(r *http.Request) models.Principal {
	if p, ok := r.Context().Value(principalContextKey).(models.Principal); ok {
		return p
	}
	return nil
}

func InvestorFromContext(r *http.Request) *models.InvestorPrincipal {
	if p, ok := PrincipalFromContext(r).(*models.InvestorPrincipal); ok {
		return p
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"error":  message,
	})
}
