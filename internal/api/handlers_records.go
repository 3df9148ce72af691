package api

import (
	"net/http"

	"github.com/gorilla/mux"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/service"
	"github.com/payment-scanner/internal/types"
)

// respondFailure writes the {"success":false,"error":...} shape used by the
// bank and withdrawal endpoints
func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	message := catErr.Message
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
		message = "An internal error occurred"
	}
	respondJSON(w, catErr.StatusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// handleListDeposits handles GET /api/deposits
func (s *Server) handleListDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := s.recordService.ListDeposits(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if deposits == nil {
		deposits = []*models.Deposit{}
	}
	respondJSON(w, http.StatusOK, deposits)
}

// handleCreateDeposit handles POST /api/deposits
func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var input service.CreateDepositInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondServiceError(w, r, err)
		return
	}

	deposit, err := s.recordService.CreateDeposit(r.Context(), &input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, deposit)
}

// handleListWithdrawals handles GET /api/withdrawals
func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := s.recordService.ListWithdrawals(r.Context())
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	if withdrawals == nil {
		withdrawals = []*models.Withdrawal{}
	}
	respondJSON(w, http.StatusOK, withdrawals)
}

// handleCreateWithdrawal handles POST /api/withdrawals
func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var input service.CreateWithdrawalInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondFailure(w, r, err)
		return
	}

	withdrawal, err := s.recordService.CreateWithdrawal(r.Context(), &input)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"withdrawal": withdrawal,
	})
}

// handleUpdateWithdrawal handles PUT /api/withdrawals/{id}
func (s *Server) handleUpdateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Status types.WithdrawalStatus `json:"status"`
	}
	if err := parseJSONBody(w, r, &input); err != nil {
		respondFailure(w, r, err)
		return
	}

	if err := s.recordService.UpdateWithdrawalStatus(r.Context(), mux.Vars(r)["id"], input.Status); err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Status updated successfully",
	})
}

// handleListBanks handles GET /api/banks
func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := s.recordService.ListBanks(r.Context())
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	if banks == nil {
		banks = []*models.Bank{}
	}
	respondJSON(w, http.StatusOK, banks)
}

// handleCreateBank handles POST /api/banks
func (s *Server) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	var input service.CreateBankInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondFailure(w, r, err)
		return
	}

	bank, err := s.recordService.CreateBank(r.Context(), &input)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"bank":    bank,
	})
}
