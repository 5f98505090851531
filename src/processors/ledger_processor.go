package processors

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/username/folioledger/backend/src/models"
)

// quantityEpsilon absorbs float noise when comparing unit counts.
const quantityEpsilon = 1e-9

type ledgerProcessorImpl struct{}

func NewLedgerProcessor() LedgerProcessor {
	return &ledgerProcessorImpl{}
}

// SortTransactions orders transactions by date, then input order (ID), then kind priority.
// The sort is stable so transactions without an ID keep their slice order.
func SortTransactions(transactions []models.Transaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Kind.Priority() < b.Kind.Priority()
	})
}

// GroupBySymbol splits transactions into per-symbol slices. Account-level fees (no symbol) are dropped.
func GroupBySymbol(transactions []models.Transaction) map[string][]models.Transaction {
	groups := make(map[string][]models.Transaction)
	for _, tx := range transactions {
		if tx.Symbol == "" {
			continue
		}
		groups[tx.Symbol] = append(groups[tx.Symbol], tx)
	}
	return groups
}

func (p *ledgerProcessorImpl) BuildLedgers(transactions []models.Transaction) (map[string]*models.SymbolLedger, error) {
	groups := GroupBySymbol(transactions)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ledgers = make(map[string]*models.SymbolLedger, len(groups))
		failed  = make(map[string]error)
	)
	for symbol, txs := range groups {
		wg.Add(1)
		go func(symbol string, txs []models.Transaction) {
			defer wg.Done()
			ledger, err := p.Replay(symbol, txs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[symbol] = err
				return
			}
			ledgers[symbol] = ledger
		}(symbol, txs)
	}
	wg.Wait()

	if len(failed) == 0 {
		return ledgers, nil
	}
	symbols := make([]string, 0, len(failed))
	for symbol := range failed {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	errs := make([]error, 0, len(symbols))
	for _, symbol := range symbols {
		errs = append(errs, failed[symbol])
	}
	return ledgers, errors.Join(errs...)
}

// Replay builds the ledger of one symbol. The input slice is not modified.
func (p *ledgerProcessorImpl) Replay(symbol string, transactions []models.Transaction) (*models.SymbolLedger, error) {
	sorted := make([]models.Transaction, len(transactions))
	copy(sorted, transactions)
	SortTransactions(sorted)

	ledger := &models.SymbolLedger{
		Symbol:    symbol,
		Lots:      []models.Lot{},
		Closings:  []models.ClosingEvent{},
		Dividends: []models.DividendEvent{},
		Fees:      []models.FeeEvent{},
	}

	for _, tx := range sorted {
		if ledger.SecurityType == "" && tx.SecurityType != "" {
			ledger.SecurityType = tx.SecurityType
		}
		switch tx.Kind {
		case models.KindBuy, models.KindOptionOpen:
			if err := openLot(ledger, tx); err != nil {
				return nil, err
			}
		case models.KindSell, models.KindOptionClose:
			if err := closeLots(ledger, tx); err != nil {
				return nil, err
			}
		case models.KindSplit:
			if err := applySplit(ledger, tx); err != nil {
				return nil, err
			}
		case models.KindDividend:
			applyDividend(ledger, tx)
		case models.KindFee:
			ledger.Fees = append(ledger.Fees, models.FeeEvent{Date: tx.Date, Amount: tx.FeeAmount()})
		default:
			return nil, &models.ValidationError{Ref: tx.Ref(), Symbol: symbol, Field: "kind", Reason: "not a ledger kind: " + string(tx.Kind)}
		}
	}

	if ledger.SecurityType == "" {
		ledger.SecurityType = models.SecurityEquity
	}
	return ledger, nil
}

func openLot(ledger *models.SymbolLedger, tx models.Transaction) error {
	qty := math.Abs(tx.Quantity)
	if qty <= quantityEpsilon {
		return &models.ValidationError{Ref: tx.Ref(), Symbol: tx.Symbol, Field: "quantity", Reason: "must not be zero"}
	}
	dir := tx.Direction()
	ledger.Lots = append(ledger.Lots, models.Lot{
		Symbol:            tx.Symbol,
		SecurityType:      tx.SecurityType,
		OpenDate:          tx.Date,
		OriginalQuantity:  qty,
		RemainingQuantity: qty,
		CostBasisPerUnit:  (tx.GrossAmount + dir*tx.Fees) / qty,
		Direction:         dir,
		TransactionID:     tx.ID,
	})
	ledger.TradeFees += tx.Fees
	return nil
}

// closeLots depletes lots of the same direction oldest first.
func closeLots(ledger *models.SymbolLedger, tx models.Transaction) error {
	qty := math.Abs(tx.Quantity)
	if qty <= quantityEpsilon {
		return &models.ValidationError{Ref: tx.Ref(), Symbol: tx.Symbol, Field: "quantity", Reason: "must not be zero"}
	}
	dir := tx.Direction()

	var available float64
	for _, lot := range ledger.Lots {
		if lot.Direction == dir {
			available += lot.RemainingQuantity
		}
	}
	if qty > available+quantityEpsilon {
		return &models.InsufficientLotsError{
			Symbol:        tx.Symbol,
			TransactionID: tx.ID,
			Date:          tx.Date,
			Requested:     qty,
			Available:     available,
		}
	}

	proceedsPerUnit := (tx.GrossAmount - dir*tx.Fees) / qty
	closing := models.ClosingEvent{
		Date:          tx.Date,
		TransactionID: tx.ID,
		Quantity:      qty,
		Proceeds:      proceedsPerUnit * qty,
		Direction:     dir,
		Matched:       []models.LotMatch{},
	}

	remaining := qty
	open := ledger.Lots[:0]
	for _, lot := range ledger.Lots {
		if remaining > quantityEpsilon && lot.Direction == dir {
			take := math.Min(lot.RemainingQuantity, remaining)
			cost := take * lot.CostBasisPerUnit
			// The closed share of absorbed return of capital leaves the basis and is realized.
			released := lot.ReturnOfCapital * take / lot.RemainingQuantity
			closing.Matched = append(closing.Matched, models.LotMatch{
				OpenDate:         lot.OpenDate,
				Quantity:         take,
				CostBasisPerUnit: lot.CostBasisPerUnit,
				CostBasis:        cost,
				ReturnOfCapital:  released,
			})
			closing.CostBasis += cost
			closing.RealizedGain += dir*(proceedsPerUnit-lot.CostBasisPerUnit)*take + dir*released
			lot.ReturnOfCapital -= released
			ledger.ReturnOfCapital -= released
			lot.RemainingQuantity -= take
			remaining -= take
		}
		if lot.RemainingQuantity > quantityEpsilon {
			open = append(open, lot)
		}
	}
	ledger.Lots = open
	ledger.Closings = append(ledger.Closings, closing)
	ledger.TradeFees += tx.Fees
	return nil
}

func applySplit(ledger *models.SymbolLedger, tx models.Transaction) error {
	ratio := tx.SplitRatio
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return &models.ValidationError{Ref: tx.Ref(), Symbol: tx.Symbol, Field: "split_ratio", Reason: "must be a positive number"}
	}
	for i := range ledger.Lots {
		ledger.Lots[i].RemainingQuantity *= ratio
		ledger.Lots[i].OriginalQuantity *= ratio
		ledger.Lots[i].CostBasisPerUnit /= ratio
	}
	return nil
}

// applyDividend records the distribution. A return-of-capital amount is absorbed by the
// adjusted basis of open long lots, pro rata to what each can still absorb, and only the
// excess stays income.
func applyDividend(ledger *models.SymbolLedger, tx models.Transaction) {
	event := models.DividendEvent{Date: tx.Date, Amount: tx.GrossAmount}
	if tx.ReturnOfCapital {
		var room float64
		for _, lot := range ledger.Lots {
			if lot.Direction > 0 {
				room += math.Max(0, lot.AdjustedCost())
			}
		}
		absorbed := math.Min(tx.GrossAmount, room)
		if absorbed > 0 {
			for i := range ledger.Lots {
				lot := &ledger.Lots[i]
				if lot.Direction > 0 {
					lot.ReturnOfCapital += absorbed * math.Max(0, lot.AdjustedCost()) / room
				}
			}
			event.ReturnOfCapital = absorbed
			ledger.ReturnOfCapital += absorbed
		}
	}
	ledger.Dividends = append(ledger.Dividends, event)
}
