package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/unitswap/internal/core/domain"
)

// SettlementRepositoryImpl keeps the receipts of the settled swaps in memory.
type SettlementRepositoryImpl struct {
	receipts map[string]domain.SettlementReceipt
	lock     *sync.RWMutex
}

func NewSettlementRepositoryImpl() *SettlementRepositoryImpl {
	return &SettlementRepositoryImpl{
		receipts: map[string]domain.SettlementReceipt{},
		lock:     &sync.RWMutex{},
	}
}

func (r *SettlementRepositoryImpl) AddSettlement(
	_ context.Context, receipt domain.SettlementReceipt,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.receipts[receipt.FinalTxID]; ok {
		return ErrSettlementAlreadyExists
	}
	r.receipts[receipt.FinalTxID] = receipt
	return nil
}

func (r *SettlementRepositoryImpl) GetSettlement(
	_ context.Context, txid string,
) (*domain.SettlementReceipt, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	receipt, ok := r.receipts[txid]
	if !ok {
		return nil, ErrSettlementNotFound
	}
	return &receipt, nil
}

// GetAllSettlements returns the receipts sorted by settlement time.
func (r *SettlementRepositoryImpl) GetAllSettlements(
	_ context.Context,
) ([]domain.SettlementReceipt, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	receipts := make([]domain.SettlementReceipt, 0, len(r.receipts))
	for _, receipt := range r.receipts {
		receipts = append(receipts, receipt)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].SettledAt.Before(receipts[j].SettledAt)
	})
	return receipts, nil
}
