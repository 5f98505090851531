package handlers

import (
	"net/http"

	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

type FeeHandler struct {
	portfolioService services.PortfolioService
}

func NewFeeHandler(service services.PortfolioService) *FeeHandler {
	return &FeeHandler{portfolioService: service}
}

func (h *FeeHandler) HandleGetFeeDetails(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	feeDetails, err := h.portfolioService.GetFeeDetails(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Error retrieving fee details")
		return
	}
	if feeDetails == nil {
		feeDetails = []models.FeeDetail{}
	}
	utils.WriteJSON(w, http.StatusOK, feeDetails)
}
