package handlers

import (
	"net/http"

	"gullin-backend/middleware"
	"gullin-backend/models"
)

func (h *Handlers) UploadID(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.UploadIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	v, err := h.svc.KYC.SubmitID(r.Context(), p, &req, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                 v.ID,
		"tid":                v.TID,
		"stage":              v.Stage,
		"verification_level": models.LevelIDSubmitted,
	})
}

func (h *Handlers) UploadAIV(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.UploadAIVRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	aiv, err := h.svc.KYC.SubmitAIV(r.Context(), p, &req, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                 aiv.ID,
		"decision":           aiv.Decision,
		"verification_level": models.LevelAIVProcessing,
	})
}
