// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/security/validation"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

type TransactionHandler struct {
	portfolioService services.PortfolioService
}

func NewTransactionHandler(portfolioService services.PortfolioService) *TransactionHandler {
	return &TransactionHandler{portfolioService: portfolioService}
}

func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	txs, err := h.portfolioService.GetTransactions(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving transactions")
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeWithETag(w, r, txs)
}

// ManualTransactionRequest is one transaction entered by hand.
type ManualTransactionRequest struct {
	Date            string  `json:"date"` // YYYY-MM-DD
	Symbol          string  `json:"symbol"`
	Kind            string  `json:"kind"`
	SecurityType    string  `json:"security_type"`
	Quantity        float64 `json:"quantity"`
	PricePerUnit    float64 `json:"price_per_unit"`
	GrossAmount     float64 `json:"gross_amount"`
	Fees            float64 `json:"fees"`
	Currency        string  `json:"currency"`
	Description     string  `json:"description"`
	OptionType      string  `json:"option_type"`
	Underlying      string  `json:"underlying"`
	Strike          float64 `json:"strike"`
	Multiplier      float64 `json:"multiplier"`
	SplitRatio      float64 `json:"split_ratio"`
	ReturnOfCapital bool    `json:"return_of_capital"`
}

func (req ManualTransactionRequest) toCanonical(row int) (models.CanonicalTransaction, error) {
	var date time.Time
	if req.Date != "" {
		var err error
		date, err = validation.ValidateDateString(req.Date, "date")
		if err != nil {
			return models.CanonicalTransaction{}, &models.ValidationError{Row: row, Symbol: req.Symbol, Field: "date", Reason: "must be YYYY-MM-DD"}
		}
	}
	return models.CanonicalTransaction{
		Source:          "manual",
		Row:             row,
		TransactionDate: date,
		Symbol:          req.Symbol,
		Action:          req.Kind,
		Kind:            req.Kind,
		SecurityType:    req.SecurityType,
		Quantity:        req.Quantity,
		Price:           req.PricePerUnit,
		Amount:          req.GrossAmount,
		Fees:            req.Fees,
		Currency:        req.Currency,
		Description:     req.Description,
		OptionType:      req.OptionType,
		Underlying:      req.Underlying,
		Strike:          req.Strike,
		Multiplier:      req.Multiplier,
		SplitRatio:      req.SplitRatio,
		ReturnOfCapital: req.ReturnOfCapital,
	}, nil
}

// HandleAddTransactions accepts a single transaction object or an array of them. The batch
// is validated as a whole before anything is stored.
func (h *TransactionHandler) HandleAddTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var reqs []ManualTransactionRequest
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &reqs)
	} else {
		var single ManualTransactionRequest
		err = json.Unmarshal(raw, &single)
		reqs = []ManualTransactionRequest{single}
	}
	if err != nil || len(reqs) == 0 {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	canonicalTxs := make([]models.CanonicalTransaction, 0, len(reqs))
	for i, req := range reqs {
		tx, err := req.toCanonical(i + 1)
		if err != nil {
			sendServiceError(w, r, err, "Invalid transaction")
			return
		}
		canonicalTxs = append(canonicalTxs, tx)
	}

	inserted, err := h.portfolioService.AddTransactions(r.Context(), portfolioID, canonicalTxs)
	if err != nil {
		sendServiceError(w, r, err, "Failed to add transactions")
		return
	}
	logger.FromContext(r.Context()).Info("Manual transactions added", "portfolioID", portfolioID, "submitted", len(canonicalTxs), "inserted", inserted)
	utils.WriteJSON(w, http.StatusCreated, map[string]int{
		"submitted":          len(canonicalTxs),
		"inserted":           inserted,
		"skipped_duplicates": len(canonicalTxs) - inserted,
	})
}
