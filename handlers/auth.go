package handlers

import (
	"net/http"
	"time"

	"gullin-backend/models"
)

func (h *Handlers) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  h.now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) setAuthCookie(w http.ResponseWriter, token string) {
	h.setCookie(w, h.config.Auth.CookieName, token, h.config.Auth.TokenTTL)
}

func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Accounts.SignUp(r.Context(), &req, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.setAuthCookie(w, result.Token)
	investor := result.Investor
	writeJSON(w, http.StatusCreated, newProfileResponse(&models.InvestorPrincipal{User: &investor.User, Investor: investor}))
}

// Login is the password step. It either completes the login or opens a
// pending session that waits for the verification code.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Auth.Login(r.Context(), &req, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	if result.NeedsVerification() {
		h.setCookie(w, h.config.Auth.SessionCookieName, result.SessionID, h.config.Auth.PendingLoginTTL)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"verification_required": true,
			"channel":               result.CodeChannel,
			"session_id":            result.SessionID,
		})
		return
	}

	h.setAuthCookie(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": result.Token})
}

// LoginVerify is the code step of a two-factor login.
func (h *Handlers) LoginVerify(w http.ResponseWriter, r *http.Request) {
	var req models.LoginVerifyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		if c, err := r.Cookie(h.config.Auth.SessionCookieName); err == nil {
			sessionID = c.Value
		}
	}

	result, err := h.svc.Auth.CompleteLogin(r.Context(), sessionID, req.VerificationCode, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.clearCookie(w, h.config.Auth.SessionCookieName)
	h.setAuthCookie(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": result.Token})
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(h.config.Auth.CookieName); err == nil {
		token = c.Value
	}

	refreshed, _, err := h.svc.Auth.Refresh(token)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Refresh has expired or token is invalid", nil)
		return
	}
	h.setAuthCookie(w, refreshed)
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": refreshed})
}

// Logout clears both cookies. The auth token itself stays valid until it
// expires.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if c, err := r.Cookie(h.config.Auth.SessionCookieName); err == nil {
		sessionID = c.Value
	}
	var userID uint
	if c, err := r.Cookie(h.config.Auth.CookieName); err == nil {
		userID = h.svc.Auth.TokenUser(c.Value)
	}
	h.svc.Auth.Logout(r.Context(), sessionID, userID, requestMeta(r))

	h.clearCookie(w, h.config.Auth.CookieName)
	h.clearCookie(w, h.config.Auth.SessionCookieName)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
