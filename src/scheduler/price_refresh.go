// backend/src/scheduler/price_refresh.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/services"
)

// PriceRefreshJob stores today's quote for every held equity and drops the cached reports
// that were valued with the old prices.
type PriceRefreshJob struct {
	db          model.Querier
	prices      services.PriceService
	invalidator services.CacheInvalidator
	timeout     time.Duration
}

func NewPriceRefreshJob(db model.Querier, prices services.PriceService, invalidator services.CacheInvalidator, timeout time.Duration) *PriceRefreshJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &PriceRefreshJob{db: db, prices: prices, invalidator: invalidator, timeout: timeout}
}

func (j *PriceRefreshJob) Name() string { return "price_refresh" }

func (j *PriceRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	symbols, err := model.ListHeldSymbols(ctx, j.db)
	if err != nil {
		return fmt.Errorf("listing held symbols: %w", err)
	}
	if len(symbols) == 0 {
		logger.L.Debug("No held symbols to refresh")
		return nil
	}

	// Partial failures still leave fresher prices behind, so caches are dropped either way.
	refreshErr := j.prices.RefreshPrices(ctx, symbols)

	ids, err := model.ListPortfolioIDs(ctx, j.db)
	if err != nil {
		return fmt.Errorf("listing portfolios: %w", err)
	}
	for _, id := range ids {
		j.invalidator.InvalidatePortfolioCache(id)
	}
	logger.L.Info("Prices refreshed", "symbols", len(symbols), "portfolios", len(ids), "failed", refreshErr != nil)
	return refreshErr
}
