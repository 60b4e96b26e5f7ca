package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tdex-network/unitswap/internal/core/domain"
)

// UnspentRepositoryImpl represents an in memory storage
type UnspentRepositoryImpl struct {
	unspents map[domain.UnspentKey]domain.Unspent
	nextSeq  uint64
	lock     *sync.RWMutex
}

// NewUnspentRepositoryImpl returns a new empty UnspentRepositoryImpl
func NewUnspentRepositoryImpl() *UnspentRepositoryImpl {
	return &UnspentRepositoryImpl{
		unspents: map[domain.UnspentKey]domain.Unspent{},
		lock:     &sync.RWMutex{},
	}
}

// AddUnspents adds the given unspents if not already stored. Each new
// unspent is given the next insertion sequence.
func (r *UnspentRepositoryImpl) AddUnspents(
	_ context.Context, unspents []domain.Unspent,
) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.addUnspents(unspents), nil
}

// GetAllUnspents returns all the unspents stored
func (r *UnspentRepositoryImpl) GetAllUnspents(
	_ context.Context,
) ([]domain.Unspent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.filter(func(domain.Unspent) bool { return true }), nil
}

// GetAvailableUnspents returns the list of unlocked unspents
func (r *UnspentRepositoryImpl) GetAvailableUnspents(
	_ context.Context,
) ([]domain.Unspent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.filter(func(u domain.Unspent) bool { return !u.IsLocked() }), nil
}

func (r *UnspentRepositoryImpl) GetUnspentsForKeys(
	_ context.Context, keys []domain.UnspentKey,
) ([]domain.Unspent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	unspents := make([]domain.Unspent, 0, len(keys))
	for _, key := range keys {
		u, ok := r.unspents[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnspentNotFound, key)
		}
		unspents = append(unspents, u)
	}
	return unspents, nil
}

// LockUnspents locks the given unspents associating them with the
// reservation where they are used as inputs. If any of them is missing or
// locked by another reservation none is locked.
func (r *UnspentRepositoryImpl) LockUnspents(
	_ context.Context, keys []domain.UnspentKey, reservationID uuid.UUID,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	locked := make(map[domain.UnspentKey]domain.Unspent, len(keys))
	for _, key := range keys {
		u, ok := r.unspents[key]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnspentNotFound, key)
		}
		id := reservationID
		if err := u.Lock(&id); err != nil {
			return fmt.Errorf("%w: %s", err, key)
		}
		locked[key] = u
	}
	for key, u := range locked {
		r.unspents[key] = u
	}
	return nil
}

// UnlockUnspents unlocks the given locked unspents
func (r *UnspentRepositoryImpl) UnlockUnspents(
	_ context.Context, keys []domain.UnspentKey,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, key := range keys {
		u, ok := r.unspents[key]
		if !ok {
			continue
		}
		u.Unlock()
		r.unspents[key] = u
	}
	return nil
}

func (r *UnspentRepositoryImpl) ConfirmUnspents(
	_ context.Context, keys []domain.UnspentKey,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, key := range keys {
		u, ok := r.unspents[key]
		if !ok {
			continue
		}
		u.Confirm()
		r.unspents[key] = u
	}
	return nil
}

func (r *UnspentRepositoryImpl) UpdateUnspentAssets(
	_ context.Context, unspents []domain.Unspent,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, u := range unspents {
		stored, ok := r.unspents[u.Key()]
		if !ok {
			continue
		}
		stored.Asset = u.Asset
		r.unspents[u.Key()] = stored
	}
	return nil
}

// ApplySettlement removes the spent unspents and adds the new ones while
// holding the write lock, so that readers never see a partial update.
func (r *UnspentRepositoryImpl) ApplySettlement(
	_ context.Context, spent []domain.UnspentKey, added []domain.Unspent,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, key := range spent {
		delete(r.unspents, key)
	}
	r.addUnspents(added)
	return nil
}

func (r *UnspentRepositoryImpl) addUnspents(unspents []domain.Unspent) int {
	count := 0
	for _, u := range unspents {
		if _, ok := r.unspents[u.Key()]; ok {
			continue
		}
		r.nextSeq++
		u.Sequence = r.nextSeq
		r.unspents[u.Key()] = u
		count++
	}
	return count
}

func (r *UnspentRepositoryImpl) filter(
	keep func(domain.Unspent) bool,
) []domain.Unspent {
	unspents := make([]domain.Unspent, 0, len(r.unspents))
	for _, u := range r.unspents {
		if keep(u) {
			unspents = append(unspents, u)
		}
	}
	domain.SortBySequence(unspents)
	return unspents
}
