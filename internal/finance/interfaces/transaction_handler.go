package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sebuszqo/ClaritySpend/internal/finance/application"
	"github.com/sebuszqo/ClaritySpend/internal/finance/domain"
	financeErrors "github.com/sebuszqo/ClaritySpend/internal/finance/errors"
	"github.com/sebuszqo/ClaritySpend/internal/logger"
	"github.com/sebuszqo/ClaritySpend/internal/user"
	"github.com/shopspring/decimal"
)

const uploadFormField = "file"

type TransactionServiceInterface interface {
	List(ctx context.Context, caller user.Identity) ([]domain.Transaction, error)
	Create(ctx context.Context, caller user.Identity, description string, amount decimal.Decimal) (*domain.Transaction, error)
	UpdateCategory(ctx context.Context, caller user.Identity, transactionID int64, category string) (*domain.Transaction, error)
	BulkCreate(ctx context.Context, caller user.Identity, r io.Reader) (application.BulkResult, error)
}

type PersonalTransactionHandler struct {
	service        TransactionServiceInterface
	maxUploadBytes int64
	respondJSON    func(w http.ResponseWriter, status int, payload interface{})
	respondError   func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewPersonalTransactionHandler(
	service TransactionServiceInterface,
	maxUploadBytes int64,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *PersonalTransactionHandler {
	if service == nil {
		panic("Service must not be nil")
	}
	if respondJSON == nil {
		panic("RespondJSON function must not be nil")
	}
	if respondError == nil {
		panic("RespondError function must not be nil")
	}
	return &PersonalTransactionHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		respondJSON:    respondJSON,
		respondError:   respondError,
	}
}

func (h *PersonalTransactionHandler) caller(w http.ResponseWriter, r *http.Request) (user.Identity, bool) {
	caller, ok := user.IdentityFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return caller, ok
}

func (h *PersonalTransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	transactions, err := h.service.List(r.Context(), caller)
	if err != nil {
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Msg("Error during fetching transactions")
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, transactions)
}

func (h *PersonalTransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Description string           `json:"description"`
		Amount      *decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount == nil {
		h.respondError(w, http.StatusBadRequest, "Amount is required")
		return
	}

	transaction, err := h.service.Create(r.Context(), caller, req.Description, *req.Amount)
	if err != nil {
		if financeErrors.IsValidationError(err) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Msg("Error during transaction creation")
		h.respondError(w, http.StatusInternalServerError, "Failed to create transaction")
		return
	}
	h.respondJSON(w, http.StatusOK, transaction)
}

func (h *PersonalTransactionHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	transactionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || transactionID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transaction, err := h.service.UpdateCategory(r.Context(), caller, transactionID, req.Category)
	if err != nil {
		switch {
		case errors.Is(err, financeErrors.ErrTransactionNotFound):
			h.respondError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, financeErrors.ErrForbidden):
			h.respondError(w, http.StatusForbidden, "Forbidden")
		case financeErrors.IsValidationError(err):
			h.respondError(w, http.StatusBadRequest, err.Error())
		default:
			reqLog := logger.FromContext(r.Context())
			reqLog.Error().Err(err).Int64("transaction_id", transactionID).Msg("Error during category update")
			h.respondError(w, http.StatusInternalServerError, "Failed to update transaction")
		}
		return
	}
	h.respondJSON(w, http.StatusOK, transaction)
}

func (h *PersonalTransactionHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			h.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": "File is too large"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": "File is too large"})
			return
		}
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"message": "File is empty"})
		return
	}
	defer file.Close()

	if header.Size == 0 {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"message": "File is empty"})
		return
	}

	result, err := h.service.BulkCreate(r.Context(), caller, file)
	if err != nil {
		reqLog := logger.FromContext(r.Context())
		reqLog.Warn().Err(err).
			Str("file", header.Filename).
			Str("reason", uploadFailureReason(err)).
			Msg("CSV upload rejected")
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Error processing file: " + err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":              "File processed successfully",
		"transactionsUploaded": result.Created,
	})
}

func uploadFailureReason(err error) string {
	switch {
	case financeErrors.IsMalformedUpload(err):
		return "malformed"
	case financeErrors.IsValidationErrors(err):
		return "validation"
	default:
		return "internal"
	}
}
