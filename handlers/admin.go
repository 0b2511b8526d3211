package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gullin-backend/models"
)

type idVerificationView struct {
	ID                 uint                 `json:"id"`
	InvestorID         uint                 `json:"investor_id"`
	DocType            models.DocumentType  `json:"official_id_type"`
	Nationality        string               `json:"nationality"`
	TID                string               `json:"tid"`
	Stage              int                  `json:"stage"`
	State              models.ProviderState `json:"state"`
	Processed          bool                 `json:"processed"`
	Note               string               `json:"note"`
	ImageCacheScrubbed bool                 `json:"image_cache_scrubbed"`
	// ScrubViolation flags a processed or handed-off record that still holds images.
	ScrubViolation bool      `json:"scrub_violation"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
}

func (h *Handlers) ListIDVerifications(w http.ResponseWriter, r *http.Request) {
	var processed *bool
	if raw := r.URL.Query().Get("processed"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			sendError(w, http.StatusBadRequest, "processed must be true or false", nil)
			return
		}
		processed = &b
	}
	limit, offset := pagination(r)

	list, total, err := h.svc.KYC.ListVerifications(r.Context(), processed, limit, offset)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	views := make([]idVerificationView, 0, len(list))
	for _, v := range list {
		scrubbed := v.ImagesScrubbed()
		views = append(views, idVerificationView{
			ID:                 v.ID,
			InvestorID:         v.InvestorID,
			DocType:            v.DocType,
			Nationality:        v.DocCountry,
			TID:                v.TID,
			Stage:              v.Stage,
			State:              v.State,
			Processed:          v.Processed,
			Note:               v.Note,
			ImageCacheScrubbed: scrubbed,
			ScrubViolation:     !scrubbed && (v.Processed || v.Stage == models.StageSentToProvider),
			Created:            v.CreatedAt,
			Updated:            v.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id_verifications": views,
		"total":            total,
	})
}

func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *Handlers) ReviewIDVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		sendError(w, http.StatusBadRequest, "Invalid verification id", nil)
		return
	}
	var req models.ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.KYC.Review(r.Context(), id, req.State); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "state": req.State})
}

// DecideIDVerification approves or denies a verification sent to manual
// review.
func (h *Handlers) DecideIDVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		sendError(w, http.StatusBadRequest, "Invalid verification id", nil)
		return
	}
	var req models.IDDecisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	v, err := h.svc.KYC.Decide(r.Context(), id, req.Approved)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": v.ID, "state": v.State})
}

// RunVerificationJob runs one poller cycle now and returns its outcome log.
func (h *Handlers) RunVerificationJob(w http.ResponseWriter, r *http.Request) {
	log, err := h.svc.Poller.Run(r.Context())
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	if log == nil {
		log = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"log": log})
}

func (h *Handlers) ListToken(w http.ResponseWriter, r *http.Request) {
	var req models.ListTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	company, err := h.svc.Ledger.ListToken(r.Context(), &req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (h *Handlers) ListUserLogs(w http.ResponseWriter, r *http.Request) {
	var userID uint
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid user_id", nil)
			return
		}
		userID = uint(id)
	}
	limit, offset := pagination(r)

	logs, total, err := h.svc.Audit.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_logs": logs, "total": total})
}

func (h *Handlers) CreateStaffUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStaffUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.svc.Accounts.CreateStaffUser(r.Context(), &req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handlers) DecideAIV(w http.ResponseWriter, r *http.Request) {
	investorID, ok := pathID(r, "investor_id")
	if !ok {
		sendError(w, http.StatusBadRequest, "Invalid investor id", nil)
		return
	}
	var req models.AIVDecisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	aiv, err := h.svc.KYC.DecideAIV(r.Context(), investorID, req.Approved)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aiv)
}
