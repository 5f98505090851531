package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

type PortfolioManagerHandler struct {
	manager services.PortfolioManager
}

func NewPortfolioManagerHandler(manager services.PortfolioManager) *PortfolioManagerHandler {
	return &PortfolioManagerHandler{manager: manager}
}

func (h *PortfolioManagerHandler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.manager.ListPortfolios(r.Context())
	if err != nil {
		sendServiceError(w, r, err, "Failed to retrieve portfolios")
		return
	}
	if portfolios == nil {
		portfolios = []models.Portfolio{}
	}
	utils.WriteJSON(w, http.StatusOK, portfolios)
}

func (h *PortfolioManagerHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.manager.GetPortfolio(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Failed to retrieve portfolio")
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func (h *PortfolioManagerHandler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid body", http.StatusBadRequest)
		return
	}

	p, err := h.manager.CreatePortfolio(r.Context(), req.Name, req.Description)
	if err != nil {
		sendServiceError(w, r, err, "Failed to create portfolio")
		return
	}
	logger.FromContext(r.Context()).Info("Portfolio created", "portfolioID", p.ID, "name", p.Name)
	utils.WriteJSON(w, http.StatusCreated, p)
}

func (h *PortfolioManagerHandler) DeletePortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.manager.DeletePortfolio(r.Context(), portfolioID); err != nil {
		sendServiceError(w, r, err, "Failed to delete portfolio")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
