package model

import (
	"context"
	"time"
)

// UploadRecord is one row of uploads_history.
type UploadRecord struct {
	ID               int64     `json:"id"`
	PortfolioID      int64     `json:"portfolio_id"`
	UploadID         string    `json:"upload_id"`
	Source           string    `json:"source"`
	Filename         string    `json:"filename"`
	FileSize         int64     `json:"file_size"`
	TransactionCount int       `json:"transaction_count"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

func InsertUploadHistory(ctx context.Context, db Querier, rec UploadRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO uploads_history (portfolio_id, upload_id, source, filename, file_size, transaction_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.PortfolioID, rec.UploadID, rec.Source, rec.Filename, rec.FileSize, rec.TransactionCount, time.Now())
	return err
}

func ListUploadHistory(ctx context.Context, db Querier, portfolioID int64) ([]UploadRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, portfolio_id, upload_id, source, filename, file_size, transaction_count, uploaded_at
		FROM uploads_history WHERE portfolio_id = ? ORDER BY uploaded_at DESC, id DESC`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []UploadRecord{}
	for rows.Next() {
		var r UploadRecord
		if err := rows.Scan(&r.ID, &r.PortfolioID, &r.UploadID, &r.Source, &r.Filename, &r.FileSize, &r.TransactionCount, &r.UploadedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
