package model

import (
	"context"
	"fmt"
	"time"

	"github.com/username/folioledger/backend/src/models"
)

func GetSettings(ctx context.Context, db Querier, portfolioID int64) ([]models.Setting, error) {
	rows, err := db.QueryContext(ctx, `SELECT symbol, target_weight, updated_at FROM portfolio_settings WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := []models.Setting{}
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Stock, &s.TargetWeight, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// UpsertSetting inserts or replaces the target weight of one symbol.
func UpsertSetting(ctx context.Context, db Querier, portfolioID int64, setting models.Setting) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO portfolio_settings (portfolio_id, symbol, target_weight, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
			target_weight = excluded.target_weight,
			updated_at = excluded.updated_at`,
		portfolioID, setting.Stock, setting.TargetWeight, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert setting for %s: %w", setting.Stock, err)
	}
	return nil
}

// SumTargetWeights totals the stored weights of a portfolio.
func SumTargetWeights(ctx context.Context, db Querier, portfolioID int64) (float64, error) {
	var total float64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(target_weight), 0) FROM portfolio_settings WHERE portfolio_id = ?`, portfolioID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum target weights: %w", err)
	}
	return total, nil
}
