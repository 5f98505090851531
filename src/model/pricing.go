package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
)

// DailyPrice represents a cached close price for a ticker on a specific day.
type DailyPrice struct {
	TickerSymbol string
	Date         string // YYYY-MM-DD
	Price        float64
	Currency     string
	UpdatedAt    time.Time
}

// GetPricesByTickerRange returns Date -> Price for one ticker within [from, to].
func GetPricesByTickerRange(ctx context.Context, db Querier, ticker, from, to string) (models.PriceMap, error) {
	prices := make(models.PriceMap)
	query := `SELECT date, price FROM daily_prices WHERE ticker_symbol = ? AND date >= ? AND date <= ? ORDER BY date ASC`
	rows, err := db.QueryContext(ctx, query, ticker, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var date string
		var price float64
		if err := rows.Scan(&date, &price); err != nil {
			logger.L.Error("Error scanning price row", "ticker", ticker, "error", err)
			continue
		}
		prices[date] = price
	}
	return prices, rows.Err()
}

// GetPricesByTickersAndDate retrieves cached prices for a list of tickers on a specific date.
func GetPricesByTickersAndDate(ctx context.Context, db Querier, tickers []string, date string) (map[string]DailyPrice, error) {
	prices := make(map[string]DailyPrice)
	if len(tickers) == 0 {
		return prices, nil
	}
	query := `SELECT ticker_symbol, date, price, currency, updated_at FROM daily_prices WHERE date = ? AND ticker_symbol IN (` + placeholders(len(tickers)) + `)`
	args := make([]any, 0, len(tickers)+1)
	args = append(args, date)
	for _, ticker := range tickers {
		args = append(args, ticker)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.TickerSymbol, &p.Date, &p.Price, &p.Currency, &p.UpdatedAt); err != nil {
			return nil, err
		}
		prices[p.TickerSymbol] = p
	}
	return prices, rows.Err()
}

// PriceDateRange returns the earliest and latest cached dates for ticker, both "" when none is cached.
func PriceDateRange(ctx context.Context, db Querier, ticker string) (string, string, error) {
	var first, last sql.NullString
	err := db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM daily_prices WHERE ticker_symbol = ?`, ticker).Scan(&first, &last)
	if err != nil {
		return "", "", err
	}
	return first.String, last.String, nil
}

// InsertOrUpdatePrice saves a price, updating it if one already exists for that day.
func InsertOrUpdatePrice(ctx context.Context, db Querier, price DailyPrice) error {
	query := `
        INSERT INTO daily_prices (ticker_symbol, date, price, currency, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(ticker_symbol, date) DO UPDATE SET
            price = excluded.price,
            currency = excluded.currency,
            updated_at = excluded.updated_at;
    `
	_, err := db.ExecContext(ctx, query, price.TickerSymbol, price.Date, price.Price, price.Currency, time.Now())
	if err != nil {
		logger.L.Error("Failed to insert or update daily price", "ticker", price.TickerSymbol, "date", price.Date, "error", err)
	}
	return err
}

// SavePriceHistory upserts a whole history for ticker in one transaction.
func SavePriceHistory(ctx context.Context, db *sql.DB, ticker, currency string, prices models.PriceMap) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_prices (ticker_symbol, date, price, currency, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ticker_symbol, date) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			updated_at = excluded.updated_at;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for date, price := range prices {
		if _, err := stmt.ExecContext(ctx, ticker, date, price, currency, now); err != nil {
			return fmt.Errorf("failed to save price for %s on %s: %w", ticker, date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price history: %w", err)
	}
	return nil
}

// GetTickerCurrency returns the currency of the most recent cached price for ticker.
func GetTickerCurrency(ctx context.Context, db Querier, ticker string) (string, error) {
	var currency sql.NullString
	err := db.QueryRowContext(ctx, `SELECT currency FROM daily_prices WHERE ticker_symbol = ? ORDER BY date DESC LIMIT 1`, ticker).Scan(&currency)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return currency.String, nil
}
