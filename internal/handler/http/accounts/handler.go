package accounts_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
)

type AccountHandler struct {
	service ledger.LedgerService
	logger  *zap.Logger
}

func NewAccountHandler(s ledger.LedgerService, l *zap.Logger) *AccountHandler {
	return &AccountHandler{service: s, logger: l}
}

type AccountRequest struct {
	Person  string          `json:"person"`
	Balance decimal.Decimal `json:"balance"`
	BankID  *int64          `json:"bank_id,omitempty"`
}

type AccountResponse struct {
	ID      int64           `json:"id"`
	Person  string          `json:"person"`
	Balance decimal.Decimal `json:"balance"`
	BankID  *int64          `json:"bank_id,omitempty"`
}

type TransferRequest struct {
	BankID          int64           `json:"bank_id"`
	SourceAccountID int64           `json:"source_account_id"`
	TargetAccountID int64           `json:"target_account_id"`
	Amount          decimal.Decimal `json:"amount"`
}

type TransactionResponse struct {
	TransferID      string          `json:"transfer_id"`
	BankID          int64           `json:"bank_id"`
	SourceAccountID int64           `json:"source_account_id"`
	TargetAccountID int64           `json:"target_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	TotalTransfers  int64           `json:"total_transfers"`
}

type TransferResponse struct {
	Date        string              `json:"date"`
	Status      string              `json:"status"`
	Message     string              `json:"message"`
	Transaction TransactionResponse `json:"transaction"`
}

type BalanceResponse struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type TotalTransfersResponse struct {
	BankID         int64 `json:"bank_id"`
	TotalTransfers int64 `json:"total_transfers"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func toAccountResponse(a domain.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Person: a.Person, Balance: a.Balance, BankID: a.BankID}
}

func (h *AccountHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if person := strings.TrimSpace(r.URL.Query().Get("person")); person != "" {
		h.findByPerson(w, r, person)
		return
	}

	accounts, err := h.service.FindAll(r.Context())
	if err != nil {
		h.renderServiceError(w, err)
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	h.renderJSON(w, http.StatusOK, resp)
}

func (h *AccountHandler) findByPerson(w http.ResponseWriter, r *http.Request, person string) {
	account, err := h.service.FindByPerson(r.Context(), person)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.renderJSON(w, http.StatusOK, []AccountResponse{})
			return
		}
		h.renderServiceError(w, err)
		return
	}
	h.renderJSON(w, http.StatusOK, []AccountResponse{toAccountResponse(*account)})
}

func (h *AccountHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	account, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	h.renderJSON(w, http.StatusOK, toAccountResponse(*account))
}

func (h *AccountHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateAccount", zap.Error(err))
		renderJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account := &domain.Account{
		Person:  strings.TrimSpace(req.Person),
		Balance: req.Balance,
		BankID:  req.BankID,
	}
	saved, err := h.service.Save(r.Context(), account)
	if err != nil {
		if errors.Is(err, domain.ErrBankNotFound) {
			renderJSONError(w, "bank_id does not reference an existing bank", http.StatusUnprocessableEntity)
			return
		}
		h.renderServiceError(w, err)
		return
	}
	h.renderJSON(w, http.StatusCreated, toAccountResponse(*saved))
}

func (h *AccountHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		h.renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	h.renderJSON(w, http.StatusOK, BalanceResponse{AccountID: id, Balance: balance})
}

func (h *AccountHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for Transfer", zap.Error(err))
		renderJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Transfer(r.Context(), ledger.TransferRequest{
		BankID:          req.BankID,
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Amount:          req.Amount,
	})
	if err != nil {
		h.renderServiceError(w, err)
		return
	}

	h.renderJSON(w, http.StatusOK, TransferResponse{
		Date:    result.CompletedAt.Format(time.DateOnly),
		Status:  "OK",
		Message: "Transfer completed successfully",
		Transaction: TransactionResponse{
			TransferID:      result.TransferID,
			BankID:          result.BankID,
			SourceAccountID: result.SourceAccountID,
			TargetAccountID: result.TargetAccountID,
			Amount:          result.Amount,
			TotalTransfers:  result.TotalTransfers,
		},
	})
}

func (h *AccountHandler) GetTotalTransfersHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	total, err := h.service.GetTotalTransfers(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	h.renderJSON(w, http.StatusOK, TotalTransfersResponse{BankID: id, TotalTransfers: total})
}

func (h *AccountHandler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Warn("Invalid id format", zap.String("id", idStr))
		renderJSONError(w, "Invalid id format", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *AccountHandler) renderServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		renderJSONError(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrBankNotFound):
		renderJSONError(w, "Bank not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientBalance):
		renderJSONError(w, "Insufficient balance: funds unavailable", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInvalidAccount):
		renderJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Unexpected service error", zap.Error(err))
		renderJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *AccountHandler) renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func renderJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: statusCode})
}
