package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"gullin-backend/middleware"
)

// Router builds the route table. Global middleware (CORS, logging, rate
// limiting) is applied by the caller.
func (h *Handlers) Router(auth *middleware.Authenticator) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", h.HealthCheck).Methods(http.MethodGet)

	r.HandleFunc("/auth/signup", h.SignUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.LoginVerify).Methods(http.MethodPatch)
	r.HandleFunc("/auth/refresh", h.Refresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(auth.Authenticate)
	authed.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
	authed.HandleFunc("/me/log", h.GetMyLog).Methods(http.MethodGet)

	investor := r.NewRoute().Subrouter()
	investor.Use(auth.Authenticate, middleware.RequireInvestor)
	investor.HandleFunc("/me", h.UpdateMe).Methods(http.MethodPatch)
	investor.HandleFunc("/followup/email", h.VerifyEmail).Methods(http.MethodPatch)
	investor.HandleFunc("/followup/phone", h.SubmitPhone).Methods(http.MethodPost)
	investor.HandleFunc("/followup/phone", h.VerifyPhone).Methods(http.MethodPatch)
	investor.HandleFunc("/followup/resend", h.ResendCode).Methods(http.MethodPost)
	investor.HandleFunc("/followup/wallet_address", h.BindWalletAddress).Methods(http.MethodPost)
	investor.HandleFunc("/verify/upload_id", h.UploadID).Methods(http.MethodPost)
	investor.HandleFunc("/verify/upload_aiv", h.UploadAIV).Methods(http.MethodPost)
	investor.HandleFunc("/wallet", h.GetWallet).Methods(http.MethodGet)
	investor.HandleFunc("/wallet/balance", h.UpdateBalance).Methods(http.MethodPost)
	investor.HandleFunc("/wallet/transaction", h.GetTransactions).Methods(http.MethodGet)
	investor.HandleFunc("/wallet/transaction", h.RecordTransactions).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.Authenticate, middleware.RequireStaff)
	admin.HandleFunc("/id_verifications", h.ListIDVerifications).Methods(http.MethodGet)
	admin.HandleFunc("/id_verifications/{id:[0-9]+}/review", h.ReviewIDVerification).Methods(http.MethodPost)
	admin.HandleFunc("/id_verifications/{id:[0-9]+}/decision", h.DecideIDVerification).Methods(http.MethodPost)
	admin.HandleFunc("/jobs/verification", h.RunVerificationJob).Methods(http.MethodPost)
	admin.HandleFunc("/tokens", h.ListToken).Methods(http.MethodPost)
	admin.HandleFunc("/user_logs", h.ListUserLogs).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.CreateStaffUser).Methods(http.MethodPost)
	admin.HandleFunc("/aiv/{investor_id:[0-9]+}/decision", h.DecideAIV).Methods(http.MethodPost)

	return r
}
