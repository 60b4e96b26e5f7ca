package ports

import (
	"context"

	"github.com/tdex-network/unitswap/internal/core/domain"
)

// TxStatus is the status of a transaction as seen by the settlement network.
type TxStatus int

const (
	TxStatusPending TxStatus = iota
	TxStatusConfirmed
	TxStatusRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusConfirmed:
		return "confirmed"
	case TxStatusRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// SettlementNetwork is the boundary with the network that finally executes
// swap transactions.
type SettlementNetwork interface {
	// Broadcast submits the raw tx in hex format and returns its hash.
	// Implementations must return errors wrapping either
	// domain.ErrBroadcastRejected or domain.ErrNetworkTransient.
	Broadcast(ctx context.Context, txHex string) (string, error)
	// GetSpendableOutputs returns the unspents of the given address, tagged
	// with their asset content.
	GetSpendableOutputs(ctx context.Context, address string) ([]domain.Unspent, error)
	// GetConfirmationStatus returns the status of the given tx.
	GetConfirmationStatus(ctx context.Context, txid string) (TxStatus, error)
}
