// backend/src/processors/fee_processor.go
package processors

import (
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/utils"
)

type feeProcessorImpl struct{}

func NewFeeProcessor() FeeProcessor {
	return &feeProcessorImpl{}
}

func (p *feeProcessorImpl) Process(transactions []models.Transaction) []models.FeeDetail {
	feeDetails := []models.FeeDetail{}

	for _, tx := range transactions {
		date := tx.Date.Format(models.DateLayout)

		// Standalone fee events (account fees, ADR fees, margin interest...)
		if tx.Kind == models.KindFee {
			feeDetails = append(feeDetails, models.FeeDetail{
				Date:        date,
				Symbol:      tx.Symbol,
				Description: tx.Description,
				Amount:      utils.RoundFloat(-tx.FeeAmount(), 2),
				Source:      tx.Source,
				Category:    models.FeeCategoryAccount,
			})
			continue
		}

		// Commissions charged on trades
		if tx.Fees > 0 {
			feeDetails = append(feeDetails, models.FeeDetail{
				Date:        date,
				Symbol:      tx.Symbol,
				Description: tx.Description,
				Amount:      utils.RoundFloat(-tx.Fees, 2),
				Source:      tx.Source,
				Category:    models.FeeCategoryTrade,
			})
		}
	}
	return feeDetails
}
