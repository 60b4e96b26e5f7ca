package domain

import (
	"context"

	"github.com/google/uuid"
)

// UnspentRepository is the abstraction for any kind of database intended to
// persist the escrow's spendable set.
type UnspentRepository interface {
	// AddUnspents inserts the given unspents, assigning them an insertion
	// sequence. Already existing ones are left untouched.
	AddUnspents(ctx context.Context, unspents []Unspent) (int, error)
	// GetAllUnspents returns all the unspents stored, in insertion order.
	GetAllUnspents(ctx context.Context) ([]Unspent, error)
	// GetAvailableUnspents returns the unlocked unspents, in insertion order.
	GetAvailableUnspents(ctx context.Context) ([]Unspent, error)
	// GetUnspentsForKeys returns the unspents matching the given keys.
	GetUnspentsForKeys(ctx context.Context, keys []UnspentKey) ([]Unspent, error)
	// LockUnspents locks the given unspents for the given reservation. Either
	// all of them are locked or none.
	LockUnspents(
		ctx context.Context, keys []UnspentKey, reservationID uuid.UUID,
	) error
	// UnlockUnspents unlocks the given unspents. Missing ones are skipped.
	UnlockUnspents(ctx context.Context, keys []UnspentKey) error
	// ConfirmUnspents marks the given unspents as confirmed.
	ConfirmUnspents(ctx context.Context, keys []UnspentKey) error
	// UpdateUnspentAssets overwrites the asset tag of the stored unspents
	// matching the given ones. Lock state and sequence are preserved, missing
	// ones are skipped.
	UpdateUnspentAssets(ctx context.Context, unspents []Unspent) error
	// ApplySettlement atomically deletes the spent unspents and inserts the
	// new ones. Either the whole update is applied or nothing changes.
	ApplySettlement(
		ctx context.Context, spent []UnspentKey, added []Unspent,
	) error
}

// SettlementRepository persists the receipts of settled swaps.
type SettlementRepository interface {
	AddSettlement(ctx context.Context, receipt SettlementReceipt) error
	GetSettlement(ctx context.Context, txid string) (*SettlementReceipt, error)
	GetAllSettlements(ctx context.Context) ([]SettlementReceipt, error)
}
