package handlers

import (
	"net/http"
	"time"

	"gullin-backend/middleware"
	"gullin-backend/models"
)

type investorResponse struct {
	ID                             uint                        `json:"id"`
	FirstName                      string                      `json:"first_name"`
	LastName                       string                      `json:"last_name"`
	Birthday                       string                      `json:"birthday,omitempty"`
	Nationality                    string                      `json:"nationality"`
	Address                        *models.InvestorUserAddress `json:"address"`
	VerificationLevel              models.VerificationLevel    `json:"verification_level"`
	VerificationStatus             string                      `json:"verification_status"`
	IDVerification                 *uint                       `json:"id_verification"`
	AccreditedInvestorVerification *uint                       `json:"accredited_investor_verification"`
}

type profileResponse struct {
	ID               uint              `json:"id"`
	Email            string            `json:"email"`
	PhoneCountryCode *string           `json:"phone_country_code"`
	Phone            *string           `json:"phone"`
	LastLogin        *time.Time        `json:"last_login"`
	TOTPEnabled      bool              `json:"totp_enabled"`
	IsInvestor       bool              `json:"is_investor"`
	IsCompanyUser    bool              `json:"is_company_user"`
	IsAnalyst        bool              `json:"is_analyst"`
	IsStaff          bool              `json:"is_staff"`
	Investor         *investorResponse `json:"investor,omitempty"`
	CompanyID        *uint             `json:"company_id,omitempty"`
	AnalystType      *int              `json:"analyst_type,omitempty"`
}

func newProfileResponse(p models.Principal) *profileResponse {
	u := p.Account()
	resp := &profileResponse{
		ID:               u.ID,
		Email:            u.Email,
		PhoneCountryCode: u.PhoneCountryCode,
		Phone:            u.Phone,
		LastLogin:        u.LastLogin,
		TOTPEnabled:      u.TOTPEnabled,
		IsInvestor:       u.IsInvestor(),
		IsCompanyUser:    u.IsCompanyUser(),
		IsAnalyst:        u.IsAnalyst(),
		IsStaff:          u.IsStaff,
	}

	switch v := p.(type) {
	case *models.InvestorPrincipal:
		inv := v.Investor
		ir := &investorResponse{
			ID:                             inv.ID,
			FirstName:                      inv.FirstName,
			LastName:                       inv.LastName,
			Nationality:                    inv.Nationality,
			Address:                        inv.Address,
			VerificationLevel:              inv.VerificationLevel,
			VerificationStatus:             inv.VerificationLevel.String(),
			IDVerification:                 inv.IDVerificationID,
			AccreditedInvestorVerification: inv.AccreditedInvestorVerificationID,
		}
		if inv.Birthday != nil {
			ir.Birthday = inv.Birthday.Format("2006-01-02")
		}
		resp.Investor = ir
	case *models.CompanyPrincipal:
		resp.CompanyID = v.CompanyUser.CompanyID
	case *models.AnalystPrincipal:
		t := int(v.Analyst.AnalystType)
		resp.AnalystType = &t
	}
	return resp
}

func (h *Handlers) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r)
	if p == nil {
		sendError(w, http.StatusUnauthorized, "Invalid or missing token", nil)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(p))
}

func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.ProfileUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	investor, err := h.svc.Accounts.UpdateProfile(r.Context(), p.Investor, &req, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(&models.InvestorPrincipal{User: &investor.User, Investor: investor}))
}

func (h *Handlers) GetMyLog(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r)
	limit, _ := pagination(r)
	logs, err := h.svc.Audit.ListForUser(r.Context(), p.Account().ID, limit)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
