// backend/src/services/upload_service.go
package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/parsers"
	"github.com/username/folioledger/backend/src/processors"
)

type uploadServiceImpl struct {
	db                   *sql.DB
	transactionProcessor *processors.TransactionProcessor
	invalidator          CacheInvalidator
}

func NewUploadService(db *sql.DB, transactionProcessor *processors.TransactionProcessor, invalidator CacheInvalidator) UploadService {
	return &uploadServiceImpl{
		db:                   db,
		transactionProcessor: transactionProcessor,
		invalidator:          invalidator,
	}
}

// ProcessUpload parses the file with the parser registered for source, validates the whole
// batch and appends it in one database transaction. Rows already stored are skipped.
func (s *uploadServiceImpl) ProcessUpload(ctx context.Context, fileReader io.Reader, portfolioID int64, source, filename string, filesize int64) (*UploadResult, error) {
	overallStartTime := time.Now()
	log := logger.FromContext(ctx)
	log.Info("ProcessUpload START", "portfolioID", portfolioID, "source", source, "filename", filename)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	canonicalTxs, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	txs, err := s.transactionProcessor.Process(canonicalTxs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	result := &UploadResult{
		UploadID:    uuid.NewString(),
		Source:      source,
		Filename:    filename,
		ParsedCount: len(canonicalTxs),
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := model.GetPortfolio(ctx, dbTx, portfolioID); err != nil {
		return nil, err
	}
	insertedCount, err := model.InsertTransactions(ctx, dbTx, portfolioID, result.UploadID, txs)
	if err != nil {
		return nil, err
	}
	if insertedCount > 0 {
		err = model.InsertUploadHistory(ctx, dbTx, model.UploadRecord{
			PortfolioID:      portfolioID,
			UploadID:         result.UploadID,
			Source:           source,
			Filename:         filename,
			FileSize:         filesize,
			TransactionCount: insertedCount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record upload in history: %w", err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transactions: %w", err)
	}

	result.InsertedCount = insertedCount
	result.SkippedDuplicates = len(txs) - insertedCount
	if insertedCount > 0 && s.invalidator != nil {
		s.invalidator.InvalidatePortfolioCache(portfolioID)
	}

	log.Info("ProcessUpload END", "portfolioID", portfolioID, "parsed", result.ParsedCount,
		"inserted", insertedCount, "skipped", result.SkippedDuplicates, "duration", time.Since(overallStartTime))
	return result, nil
}

func (s *uploadServiceImpl) GetUploadHistory(ctx context.Context, portfolioID int64) ([]model.UploadRecord, error) {
	if _, err := model.GetPortfolio(ctx, s.db, portfolioID); err != nil {
		return nil, err
	}
	return model.ListUploadHistory(ctx, s.db, portfolioID)
}
