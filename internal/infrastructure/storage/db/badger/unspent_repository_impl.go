package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

var unspentSequenceKey = []byte("unspent_sequence")

type unspentRepositoryImpl struct {
	store *badgerhold.Store
	seq   *badger.Sequence
	// serializes the read-modify-write updates, badger would otherwise
	// return ErrConflict for concurrent transactions.
	lock sync.Mutex
}

func NewUnspentRepositoryImpl(
	store *badgerhold.Store,
) (domain.UnspentRepository, error) {
	seq, err := store.Badger().GetSequence(unspentSequenceKey, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to init unspent sequence: %w", err)
	}
	return &unspentRepositoryImpl{store: store, seq: seq}, nil
}

func (r *unspentRepositoryImpl) AddUnspents(
	_ context.Context, unspents []domain.Unspent,
) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	count := 0
	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var err error
		count, err = r.addUnspents(tx, unspents)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *unspentRepositoryImpl) GetAllUnspents(
	_ context.Context,
) ([]domain.Unspent, error) {
	return r.findUnspents(nil, nil)
}

func (r *unspentRepositoryImpl) GetAvailableUnspents(
	_ context.Context,
) ([]domain.Unspent, error) {
	query := badgerhold.Where("Locked").Eq(false)
	return r.findUnspents(nil, query)
}

func (r *unspentRepositoryImpl) GetUnspentsForKeys(
	_ context.Context, keys []domain.UnspentKey,
) ([]domain.Unspent, error) {
	unspents := make([]domain.Unspent, 0, len(keys))
	for _, key := range keys {
		unspent, err := r.getUnspent(nil, key)
		if err != nil {
			return nil, err
		}
		if unspent == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnspentNotFound, key)
		}
		unspents = append(unspents, *unspent)
	}
	return unspents, nil
}

func (r *unspentRepositoryImpl) LockUnspents(
	_ context.Context, keys []domain.UnspentKey, reservationID uuid.UUID,
) error {
	return r.update(func(tx *badger.Txn) error {
		for _, key := range keys {
			unspent, err := r.getUnspent(tx, key)
			if err != nil {
				return err
			}
			if unspent == nil {
				return fmt.Errorf("%w: %s", domain.ErrUnspentNotFound, key)
			}
			id := reservationID
			if err := unspent.Lock(&id); err != nil {
				return fmt.Errorf("%w: %s", err, key)
			}
			if err := r.updateUnspent(tx, *unspent); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *unspentRepositoryImpl) UnlockUnspents(
	_ context.Context, keys []domain.UnspentKey,
) error {
	return r.updateEach(keys, func(u *domain.Unspent) { u.Unlock() })
}

func (r *unspentRepositoryImpl) ConfirmUnspents(
	_ context.Context, keys []domain.UnspentKey,
) error {
	return r.updateEach(keys, func(u *domain.Unspent) { u.Confirm() })
}

func (r *unspentRepositoryImpl) UpdateUnspentAssets(
	_ context.Context, unspents []domain.Unspent,
) error {
	return r.update(func(tx *badger.Txn) error {
		for _, u := range unspents {
			unspent, err := r.getUnspent(tx, u.Key())
			if err != nil {
				return err
			}
			if unspent == nil {
				continue
			}
			unspent.Asset = u.Asset
			if err := r.updateUnspent(tx, *unspent); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplySettlement deletes and inserts within the same badger transaction.
func (r *unspentRepositoryImpl) ApplySettlement(
	_ context.Context, spent []domain.UnspentKey, added []domain.Unspent,
) error {
	return r.update(func(tx *badger.Txn) error {
		if err := r.deleteUnspents(tx, spent); err != nil {
			return err
		}
		_, err := r.addUnspents(tx, added)
		return err
	})
}

func (r *unspentRepositoryImpl) close() {
	r.seq.Release()
}

func (r *unspentRepositoryImpl) update(fn func(tx *badger.Txn) error) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.store.Badger().Update(fn)
}

func (r *unspentRepositoryImpl) updateEach(
	keys []domain.UnspentKey, fn func(u *domain.Unspent),
) error {
	return r.update(func(tx *badger.Txn) error {
		for _, key := range keys {
			unspent, err := r.getUnspent(tx, key)
			if err != nil {
				return err
			}
			if unspent == nil {
				continue
			}
			fn(unspent)
			if err := r.updateUnspent(tx, *unspent); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *unspentRepositoryImpl) addUnspents(
	tx *badger.Txn, unspents []domain.Unspent,
) (int, error) {
	count := 0
	for _, u := range unspents {
		existing, err := r.getUnspent(tx, u.Key())
		if err != nil {
			return 0, err
		}
		if existing != nil {
			continue
		}

		seq, err := r.seq.Next()
		if err != nil {
			return 0, err
		}
		u.Sequence = seq + 1
		if err := r.store.TxInsert(tx, u.Key(), u); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return 0, err
		}
		count++
	}
	return count, nil
}

func (r *unspentRepositoryImpl) deleteUnspents(
	tx *badger.Txn, keys []domain.UnspentKey,
) error {
	for _, key := range keys {
		if err := r.store.TxDelete(tx, key, domain.Unspent{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

func (r *unspentRepositoryImpl) findUnspents(
	tx *badger.Txn, query *badgerhold.Query,
) ([]domain.Unspent, error) {
	if query == nil {
		query = &badgerhold.Query{}
	}
	query = query.SortBy("Sequence")

	var unspents []domain.Unspent
	var err error
	if tx == nil {
		err = r.store.Find(&unspents, query)
	} else {
		err = r.store.TxFind(tx, &unspents, query)
	}
	return unspents, err
}

func (r *unspentRepositoryImpl) getUnspent(
	tx *badger.Txn, key domain.UnspentKey,
) (*domain.Unspent, error) {
	var unspent domain.Unspent
	var err error
	if tx == nil {
		err = r.store.Get(key, &unspent)
	} else {
		err = r.store.TxGet(tx, key, &unspent)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &unspent, nil
}

func (r *unspentRepositoryImpl) updateUnspent(
	tx *badger.Txn, unspent domain.Unspent,
) error {
	return r.store.TxUpdate(tx, unspent.Key(), unspent)
}
