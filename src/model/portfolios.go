package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/username/folioledger/backend/src/models"
)

func CreatePortfolio(ctx context.Context, db Querier, name, description string) (*models.Portfolio, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO portfolios (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio id: %w", err)
	}
	return GetPortfolio(ctx, db, id)
}

// GetPortfolio returns models.ErrPortfolioNotFound when no row matches.
func GetPortfolio(ctx context.Context, db Querier, id int64) (*models.Portfolio, error) {
	var p models.Portfolio
	err := db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM portfolios WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %d: %w", id, models.ErrPortfolioNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio %d: %w", id, err)
	}
	return &p, nil
}

func ListPortfolios(ctx context.Context, db Querier) ([]models.Portfolio, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, description, created_at FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := []models.Portfolio{}
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// DeletePortfolio removes the portfolio; transactions, settings and uploads cascade.
func DeletePortfolio(ctx context.Context, db Querier, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("portfolio %d: %w", id, models.ErrPortfolioNotFound)
	}
	return nil
}
