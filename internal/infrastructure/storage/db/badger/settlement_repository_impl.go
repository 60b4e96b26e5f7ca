package dbbadger

import (
	"context"
	"errors"

	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type settlementRepositoryImpl struct {
	store *badgerhold.Store
}

func NewSettlementRepositoryImpl(
	store *badgerhold.Store,
) domain.SettlementRepository {
	return &settlementRepositoryImpl{store}
}

func (r *settlementRepositoryImpl) AddSettlement(
	_ context.Context, receipt domain.SettlementReceipt,
) error {
	if err := r.store.Insert(receipt.FinalTxID, receipt); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return ErrSettlementAlreadyExists
		}
		return err
	}
	return nil
}

func (r *settlementRepositoryImpl) GetSettlement(
	_ context.Context, txid string,
) (*domain.SettlementReceipt, error) {
	var receipt domain.SettlementReceipt
	if err := r.store.Get(txid, &receipt); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

func (r *settlementRepositoryImpl) GetAllSettlements(
	_ context.Context,
) ([]domain.SettlementReceipt, error) {
	var receipts []domain.SettlementReceipt
	query := (&badgerhold.Query{}).SortBy("SettledAt")
	if err := r.store.Find(&receipts, query); err != nil {
		return nil, err
	}
	return receipts, nil
}
