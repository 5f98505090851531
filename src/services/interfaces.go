// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
)

// Define common service errors
var (
	ErrParsingFailed    = errors.New("csv parsing failed")
	ErrProcessingFailed = errors.New("transaction processing failed")
)

// UploadResult summarizes a single ProcessUpload call.
type UploadResult struct {
	UploadID          string `json:"upload_id"`
	Source            string `json:"source"`
	Filename          string `json:"filename"`
	ParsedCount       int    `json:"parsed_count"`
	InsertedCount     int    `json:"inserted_count"`
	SkippedDuplicates int    `json:"skipped_duplicates"`
}

// UploadService parses a broker file and appends its transactions to a portfolio.
type UploadService interface {
	ProcessUpload(ctx context.Context, fileReader io.Reader, portfolioID int64, source string, filename string, filesize int64) (*UploadResult, error)
	GetUploadHistory(ctx context.Context, portfolioID int64) ([]model.UploadRecord, error)
}

// PriceService supplies prices in the configured base currency.
type PriceService interface {
	GetPrice(ctx context.Context, symbol string, date time.Time) (float64, error)
	// GetCurrentPrices never fails per symbol: lookups that fail come back with status UNAVAILABLE.
	GetCurrentPrices(ctx context.Context, symbols []string) (map[string]models.PriceInfo, error)
	// GetHistoricalPrices returns symbol -> (YYYY-MM-DD -> close) over [from, to].
	// Symbols without history are absent from the result.
	GetHistoricalPrices(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceMap, error)
	RefreshPrices(ctx context.Context, symbols []string) error
}

// TransactionStore is the append-only transaction log of each portfolio.
type TransactionStore interface {
	// ListTransactions is ordered by date, then insertion order.
	ListTransactions(ctx context.Context, portfolioID int64) ([]models.Transaction, error)
	AppendTransactions(ctx context.Context, portfolioID int64, uploadID string, txs []models.Transaction) (int, error)
}

// SettingsStore keeps the rebalancing target weights.
type SettingsStore interface {
	GetSettings(ctx context.Context, portfolioID int64) ([]models.Setting, error)
	PutSettings(ctx context.Context, portfolioID int64, settings []models.Setting, normalize bool) (*models.SettingsWriteResult, error)
}

type PortfolioManager interface {
	CreatePortfolio(ctx context.Context, name, description string) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]models.Portfolio, error)
	DeletePortfolio(ctx context.Context, id int64) error
}

// CacheInvalidator drops every cached report of a portfolio.
type CacheInvalidator interface {
	InvalidatePortfolioCache(portfolioID int64)
}

// PortfolioService exposes the analytics of a portfolio.
type PortfolioService interface {
	CacheInvalidator

	GetHoldings(ctx context.Context, portfolioID int64) (*models.HoldingsResult, error)
	GetGainLoss(ctx context.Context, portfolioID int64) (*models.GainLossResult, error)
	GetAllocation(ctx context.Context, portfolioID int64) (*models.Allocation, error)
	GetPerformance(ctx context.Context, portfolioID int64, timeframe string) (*models.PerformanceResult, error)
	GetAnnualReturns(ctx context.Context, portfolioID int64) ([]models.AnnualReturn, error)
	GetRebalancePlan(ctx context.Context, portfolioID int64) (*models.RebalancePlan, error)
	GetDividendSummary(ctx context.Context, portfolioID int64) (models.DividendSummaryResult, error)
	GetFeeDetails(ctx context.Context, portfolioID int64) ([]models.FeeDetail, error)

	GetTransactions(ctx context.Context, portfolioID int64) ([]models.Transaction, error)
	AddTransactions(ctx context.Context, portfolioID int64, txs []models.CanonicalTransaction) (int, error)

	GetSettings(ctx context.Context, portfolioID int64) ([]models.Setting, error)
	PutSettings(ctx context.Context, portfolioID int64, settings []models.Setting, normalize bool) (*models.SettingsWriteResult, error)
}
