package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/security/validation"
)

type portfolioManagerImpl struct {
	db          *sql.DB
	invalidator CacheInvalidator
}

func NewPortfolioManager(db *sql.DB, invalidator CacheInvalidator) PortfolioManager {
	return &portfolioManagerImpl{db: db, invalidator: invalidator}
}

func (m *portfolioManagerImpl) CreatePortfolio(ctx context.Context, name, description string) (*models.Portfolio, error) {
	if err := validation.CheckXSSPatterns(description, "description", name); err != nil {
		return nil, &models.ValidationError{Field: "description", Reason: err.Error()}
	}
	name = validation.CleanText(name)
	description = validation.CleanText(description)
	if err := validation.ValidatePortfolioName(name); err != nil {
		return nil, &models.ValidationError{Field: "name", Reason: err.Error()}
	}
	if err := validation.ValidateStringMaxLength(description, validation.MaxDescriptionLength, "description"); err != nil {
		return nil, &models.ValidationError{Field: "description", Reason: err.Error()}
	}

	p, err := model.CreatePortfolio(ctx, m.db, name, description)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			return nil, &models.ValidationError{Field: "name", Reason: fmt.Sprintf("a portfolio named %q already exists", name)}
		}
		return nil, err
	}
	logger.L.Info("Portfolio created", "portfolioID", p.ID, "name", p.Name)
	return p, nil
}

func (m *portfolioManagerImpl) GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	return model.GetPortfolio(ctx, m.db, id)
}

func (m *portfolioManagerImpl) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	return model.ListPortfolios(ctx, m.db)
}

func (m *portfolioManagerImpl) DeletePortfolio(ctx context.Context, id int64) error {
	if err := model.DeletePortfolio(ctx, m.db, id); err != nil {
		return err
	}
	if m.invalidator != nil {
		m.invalidator.InvalidatePortfolioCache(id)
	}
	logger.L.Info("Portfolio deleted", "portfolioID", id)
	return nil
}
