package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/service"
	"github.com/shopspring/decimal"
)

// BalanceResponse is the body of GET /api/balance
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// handleListTransactions handles GET /api/transactions
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledgerService.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// handleGetTransaction handles GET /api/transactions/{id}
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledgerService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleCreateTransaction handles POST /api/transactions
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var input service.CreateTransactionInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondServiceError(w, r, err)
		return
	}

	entry, err := s.ledgerService.Create(r.Context(), &input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// handleUpdateTransaction handles PUT /api/transactions/{id}. Only used and
// status may be changed.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateTransactionInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondServiceError(w, r, err)
		return
	}

	entry, err := s.ledgerService.Update(r.Context(), mux.Vars(r)["id"], &input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleGetBalance handles GET /api/balance
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledgerService.Balance(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}
