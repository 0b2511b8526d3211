package handlers

import (
	"net/http"

	"gullin-backend/middleware"
	"gullin-backend/models"
)

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	wallet, err := h.svc.Ledger.GetWallet(r.Context(), p.Investor.ID)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// UpdateBalance overwrites cached balances with client-reported values.
func (h *Handlers) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.BalanceUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	results, err := h.svc.Ledger.UpdateBalances(r.Context(), p.Investor.ID, req.NewBalance)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handlers) GetTransactions(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	txs, err := h.svc.Ledger.ListTransactions(r.Context(), p.Investor.ID)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// RecordTransactions answers 200 even when some items are rejected; the
// per-item results say which.
func (h *Handlers) RecordTransactions(w http.ResponseWriter, r *http.Request) {
	p := middleware.InvestorFromContext(r)
	var req models.TransactionBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	results, err := h.svc.Ledger.RecordTransactions(r.Context(), p.Investor.ID, req.Transactions)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}
