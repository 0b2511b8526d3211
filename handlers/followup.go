package handlers

import (
	"net/http"

	"gullin-backend/middleware"
	"gullin-backend/models"
)

func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.VerificationCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	level, err := h.svc.Followup.VerifyEmail(r.Context(), p, req.VerificationCode, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verification_level": level})
}

func (h *Handlers) SubmitPhone(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.PhoneRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.Followup.SubmitPhone(r.Context(), p, &req, requestMeta(r)); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phone_country_code": p.User.PhoneCountryCode,
		"phone":              p.User.Phone,
	})
}

func (h *Handlers) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.VerificationCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.Followup.VerifyPhone(r.Context(), p, req.VerificationCode, requestMeta(r)); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verification_level": models.LevelPhoneVerified})
}

func (h *Handlers) ResendCode(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.ResendRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.Followup.Resend(r.Context(), p, req.Channel); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

func (h *Handlers) BindWalletAddress(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.WalletAddressRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	wallet, err := h.svc.Followup.BindWallet(r.Context(), p, &req, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_address":     wallet.WalletAddress,
		"creation_block":     wallet.CreationBlock,
		"verification_level": models.LevelWalletBound,
	})
}
