package model

import (
	"context"
	"fmt"
	"time"

	"github.com/username/folioledger/backend/src/models"
)

const transactionColumns = `id, portfolio_id, date, symbol, kind, security_type, quantity, price_per_unit, gross_amount,
	fees, return_of_capital, split_ratio, underlying, option_type, strike, currency, source, description, hash_id`

// InsertTransactions appends transactions, skipping any whose hash_id already exists in the
// portfolio. It returns the number of rows actually inserted.
func InsertTransactions(ctx context.Context, db Querier, portfolioID int64, uploadID string, txs []models.Transaction) (int, error) {
	query := `
		INSERT INTO transactions (portfolio_id, date, symbol, kind, security_type, quantity, price_per_unit, gross_amount,
			fees, return_of_capital, split_ratio, underlying, option_type, strike, currency, source, description, hash_id, upload_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, hash_id) DO NOTHING`

	inserted := 0
	for _, tx := range txs {
		res, err := db.ExecContext(ctx, query,
			portfolioID, tx.Date.Format(models.DateLayout), tx.Symbol, string(tx.Kind), string(tx.SecurityType),
			tx.Quantity, tx.PricePerUnit, tx.GrossAmount, tx.Fees, tx.ReturnOfCapital, tx.SplitRatio,
			tx.Underlying, tx.OptionType, tx.Strike, tx.Currency, tx.Source, tx.Description, tx.HashId, uploadID)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert transaction %s: %w", tx.Ref(), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// ListTransactions returns the portfolio's transactions ordered by date, then insertion order.
func ListTransactions(ctx context.Context, db Querier, portfolioID int64) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE portfolio_id = ? ORDER BY date ASC, id ASC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		var (
			tx                 models.Transaction
			date, kind, secTyp string
		)
		if err := rows.Scan(&tx.ID, &tx.PortfolioID, &date, &tx.Symbol, &kind, &secTyp, &tx.Quantity, &tx.PricePerUnit,
			&tx.GrossAmount, &tx.Fees, &tx.ReturnOfCapital, &tx.SplitRatio, &tx.Underlying, &tx.OptionType, &tx.Strike,
			&tx.Currency, &tx.Source, &tx.Description, &tx.HashId); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		parsed, err := time.Parse(models.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("transaction %d has invalid date %q: %w", tx.ID, date, err)
		}
		tx.Date = parsed
		tx.Kind = models.TransactionKind(kind)
		tx.SecurityType = models.SecurityType(secTyp)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// ListHeldSymbols returns every priced symbol (equity, not option or cash) with transactions in any portfolio.
func ListHeldSymbols(ctx context.Context, db Querier) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT symbol FROM transactions WHERE security_type = ? AND symbol != '' ORDER BY symbol`, string(models.SecurityEquity))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ListPortfolioIDs returns every portfolio id.
func ListPortfolioIDs(ctx context.Context, db Querier) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
