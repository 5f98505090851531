package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
)

type sqlTransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) TransactionStore {
	return &sqlTransactionStore{db: db}
}

// ListTransactions fails with models.ErrPortfolioNotFound for unknown portfolios.
func (s *sqlTransactionStore) ListTransactions(ctx context.Context, portfolioID int64) ([]models.Transaction, error) {
	if _, err := model.GetPortfolio(ctx, s.db, portfolioID); err != nil {
		return nil, err
	}
	return model.ListTransactions(ctx, s.db, portfolioID)
}

// AppendTransactions inserts the batch in one SQL transaction and returns how many rows were
// new. Rows whose hash_id is already stored are skipped.
func (s *sqlTransactionStore) AppendTransactions(ctx context.Context, portfolioID int64, uploadID string, txs []models.Transaction) (int, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := model.GetPortfolio(ctx, dbTx, portfolioID); err != nil {
		return 0, err
	}
	inserted, err := model.InsertTransactions(ctx, dbTx, portfolioID, uploadID, txs)
	if err != nil {
		return 0, err
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transactions: %w", err)
	}
	return inserted, nil
}
