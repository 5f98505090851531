package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/processors"
	"github.com/username/folioledger/backend/src/security/validation"
)

// weightTolerance is how far the stored weights may sum above 1 before a warning is attached.
const weightTolerance = 1e-6

type sqlSettingsStore struct {
	db    *sql.DB
	locks sync.Map // portfolioID -> *sync.Mutex
}

func NewSettingsStore(db *sql.DB) SettingsStore {
	return &sqlSettingsStore{db: db}
}

func (s *sqlSettingsStore) lockFor(portfolioID int64) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(portfolioID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *sqlSettingsStore) GetSettings(ctx context.Context, portfolioID int64) ([]models.Setting, error) {
	if _, err := model.GetPortfolio(ctx, s.db, portfolioID); err != nil {
		return nil, err
	}
	return model.GetSettings(ctx, s.db, portfolioID)
}

// PutSettings validates the whole batch, then upserts it in one SQL transaction while holding
// the portfolio's lock. With normalize set, the batch is merged over the stored weights and
// every weight of the merged set is scaled so the portfolio total is 1.
func (s *sqlSettingsStore) PutSettings(ctx context.Context, portfolioID int64, settings []models.Setting, normalize bool) (*models.SettingsWriteResult, error) {
	cleaned, err := cleanSettings(settings)
	if err != nil {
		return nil, err
	}

	mu := s.lockFor(portfolioID)
	mu.Lock()
	defer mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := model.GetPortfolio(ctx, dbTx, portfolioID); err != nil {
		return nil, err
	}
	if normalize {
		existing, err := model.GetSettings(ctx, dbTx, portfolioID)
		if err != nil {
			return nil, err
		}
		cleaned = processors.NormalizeSettings(mergeSettings(existing, cleaned))
	}
	for _, setting := range cleaned {
		if err := model.UpsertSetting(ctx, dbTx, portfolioID, setting); err != nil {
			return nil, err
		}
	}
	total, err := model.SumTargetWeights(ctx, dbTx, portfolioID)
	if err != nil {
		return nil, err
	}
	stored, err := model.GetSettings(ctx, dbTx, portfolioID)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing settings: %w", err)
	}

	result := &models.SettingsWriteResult{
		Settings:    stored,
		Applied:     true,
		TotalWeight: total,
		Normalized:  normalize,
	}
	if total > 1+weightTolerance {
		result.Warning = &models.WeightExceedsTotalWarning{TotalWeight: total}
		logger.L.Warn("Target weights exceed 100%", "portfolioID", portfolioID, "totalWeight", total)
	}
	return result, nil
}

// mergeSettings overlays the batch on the stored weights, keyed by symbol. Stored order is kept
// and new symbols follow in batch order.
func mergeSettings(existing, batch []models.Setting) []models.Setting {
	merged := make([]models.Setting, 0, len(existing)+len(batch))
	index := make(map[string]int, len(existing)+len(batch))
	for _, setting := range existing {
		index[setting.Stock] = len(merged)
		merged = append(merged, models.Setting{Stock: setting.Stock, TargetWeight: setting.TargetWeight})
	}
	for _, setting := range batch {
		if i, ok := index[setting.Stock]; ok {
			merged[i].TargetWeight = setting.TargetWeight
			continue
		}
		index[setting.Stock] = len(merged)
		merged = append(merged, setting)
	}
	return merged
}

func cleanSettings(settings []models.Setting) ([]models.Setting, error) {
	cleaned := make([]models.Setting, 0, len(settings))
	for i, setting := range settings {
		symbol := strings.ToUpper(validation.CleanText(setting.Stock))
		if err := validation.ValidateSymbol(symbol); err != nil {
			return nil, &models.ValidationError{Row: i + 1, Symbol: setting.Stock, Field: "stock", Reason: err.Error()}
		}
		w := setting.TargetWeight
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, &models.ValidationError{Row: i + 1, Symbol: symbol, Field: "target_weight", Reason: "must be a finite number >= 0"}
		}
		cleaned = append(cleaned, models.Setting{Stock: symbol, TargetWeight: w})
	}
	return cleaned, nil
}
