package handlers

import (
	"net/http"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

type DividendHandler struct {
	portfolioService services.PortfolioService
}

func NewDividendHandler(service services.PortfolioService) *DividendHandler {
	return &DividendHandler{portfolioService: service}
}

// HandleGetDividendSummary serves year -> symbol -> totals.
func (h *DividendHandler) HandleGetDividendSummary(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetDividendSummary", "portfolioID", portfolioID)

	summary, err := h.portfolioService.GetDividendSummary(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving dividend summary")
		return
	}
	if summary == nil {
		summary = make(models.DividendSummaryResult)
	}
	writeWithETag(w, r, summary)
}
