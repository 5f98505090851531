// backend/src/handlers/portfolio_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

func (h *PortfolioHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetHoldings", "portfolioID", portfolioID)

	holdings, err := h.portfolioService.GetHoldings(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving holdings")
		return
	}
	writeWithETag(w, r, holdings)
}

func (h *PortfolioHandler) HandleGetGainLoss(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.portfolioService.GetGainLoss(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving gain/loss")
		return
	}
	writeWithETag(w, r, result)
}

func (h *PortfolioHandler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	allocation, err := h.portfolioService.GetAllocation(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving allocation")
		return
	}
	utils.WriteJSON(w, http.StatusOK, allocation)
}

// HandleGetPerformance serves ?timeframe=1M|3M|6M|1Y|YTD|ALL (default ALL).
func (h *PortfolioHandler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	timeframe := r.URL.Query().Get("timeframe")
	logger.FromContext(r.Context()).Info("Handling GetPerformance", "portfolioID", portfolioID, "timeframe", timeframe)

	result, err := h.portfolioService.GetPerformance(r.Context(), portfolioID, timeframe)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving performance")
		return
	}
	writeWithETag(w, r, result)
}

func (h *PortfolioHandler) HandleGetAnnualReturns(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	returns, err := h.portfolioService.GetAnnualReturns(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving annual returns")
		return
	}
	if returns == nil {
		returns = []models.AnnualReturn{}
	}
	utils.WriteJSON(w, http.StatusOK, returns)
}

func (h *PortfolioHandler) HandleGetRebalance(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	plan, err := h.portfolioService.GetRebalancePlan(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error computing rebalance plan")
		return
	}
	utils.WriteJSON(w, http.StatusOK, plan)
}

func (h *PortfolioHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	settings, err := h.portfolioService.GetSettings(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving settings")
		return
	}
	if settings == nil {
		settings = []models.Setting{}
	}
	utils.WriteJSON(w, http.StatusOK, settings)
}

// SettingsRequest is the body of PUT /settings.
type SettingsRequest struct {
	Settings []models.Setting `json:"settings"`
}

// HandlePutSettings writes a batch of target weights. ?normalize=true merges the batch over the
// stored weights and scales the whole set to sum 1. A total above 1 is still applied and reported in "warning".
func (h *PortfolioHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	normalize := false
	if s := r.URL.Query().Get("normalize"); s != "" {
		normalize, err = strconv.ParseBool(s)
		if err != nil {
			utils.SendJSONError(w, "normalize must be true or false", http.StatusBadRequest)
			return
		}
	}

	var req SettingsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Settings) == 0 {
		utils.SendJSONError(w, "settings must not be empty", http.StatusBadRequest)
		return
	}

	result, err := h.portfolioService.PutSettings(r.Context(), portfolioID, req.Settings, normalize)
	if err != nil {
		sendServiceError(w, r, err, "Error saving settings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}
