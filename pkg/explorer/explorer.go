package explorer

import (
	"context"
	"errors"
)

var (
	// ErrTxRejected is returned when the explorer refuses a transaction
	// because of its content.
	ErrTxRejected = errors.New("transaction rejected")
	// ErrNotFound is returned when the requested resource is unknown to the
	// explorer.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the explorer can't be reached or
	// answers with an unexpected failure. These errors are worth retrying.
	ErrUnavailable = errors.New("explorer unavailable")
)

// Utxo represents an unspent transaction output of the bitcoin chain.
type Utxo struct {
	TxID        string
	VOut        uint32
	Value       uint64
	Confirmed   bool
	BlockHeight int
}

// TransactionStatus represents the status of a transaction.
type TransactionStatus struct {
	Confirmed   bool
	BlockHash   string
	BlockHeight int
	BlockTime   int
}

// Service is representation of an explorer that allows to fetch data from the
// blockchain and to broadcast transactions.
type Service interface {
	// GetUnspents fetches the utxos of the given address.
	GetUnspents(ctx context.Context, addr string) ([]Utxo, error)
	// GetTransactionHex fetches the transaction in hex format given its hash.
	GetTransactionHex(ctx context.Context, txid string) (string, error)
	// GetTransactionStatus returns the status of the tx identified by its
	// hash. ErrNotFound is returned if the tx is neither in mempool nor in
	// the blockchain.
	GetTransactionStatus(ctx context.Context, txid string) (*TransactionStatus, error)
	// BroadcastTransaction attempts to add the given tx in hex format to the
	// mempool and returns its tx hash.
	BroadcastTransaction(ctx context.Context, txhex string) (string, error)
	// GetBlockHeight returns the the number of block of the blockchain.
	GetBlockHeight(ctx context.Context) (int, error)
}
