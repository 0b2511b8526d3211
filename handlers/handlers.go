package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gullin-backend/config"
	"gullin-backend/services"
	"gullin-backend/utils"
)

const maxBodyBytes = 20 << 20

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status    int         `json:"status"`
	Error     string      `json:"error"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func sendError(w http.ResponseWriter, status int, err string, details interface{}) {
	writeJSON(w, status, ErrorResponse{
		Status:    status,
		Error:     err,
		Details:   details,
		Timestamp: time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type Handlers struct {
	svc    *services.Services
	config *config.Config
	logger *zap.Logger
	now    func() time.Time
}

func NewHandlers(svc *services.Services, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, config: cfg, logger: logger, now: time.Now}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "gullin-backend",
	})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrValidation, http.StatusBadRequest},
	{services.ErrCodeExpired, http.StatusBadRequest},
	{services.ErrCodeMismatch, http.StatusBadRequest},
	{services.ErrSessionNotFound, http.StatusBadRequest},
	{services.ErrInvalidCredentials, http.StatusUnauthorized},
	{services.ErrTooManyAttempts, http.StatusTooManyRequests},
	{services.ErrState, http.StatusForbidden},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrConflict, http.StatusConflict},
	{services.ErrExternalService, http.StatusBadGateway},
}

// sendServiceError maps service sentinel errors to HTTP statuses. Anything
// unrecognized is a 500 and gets logged.
func (h *Handlers) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			var details interface{}
			if msg := err.Error(); msg != e.err.Error() {
				details = msg
			}
			sendError(w, e.status, e.err.Error(), details)
			return
		}
	}
	h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	sendError(w, http.StatusInternalServerError, "Internal server error", nil)
}

// decodeAndValidate reads a JSON body into dst and runs struct validation,
// writing the 400 response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", utils.FormatValidationError(err))
		return false
	}
	return true
}

func requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{IP: utils.ClientIP(r), Device: utils.DeviceName(r)}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
