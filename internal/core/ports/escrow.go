package ports

import "github.com/btcsuite/btcd/btcutil/psbt"

// EscrowAuthorizer is the delegation credential of the escrow account. It
// authorizes the escrow inputs of a swap transaction without any external
// signing step.
type EscrowAuthorizer interface {
	// Address returns the escrow address.
	Address() string
	// PubKey returns the serialized public key of the escrow.
	PubKey() []byte
	// Authorize adds the escrow signatures to the inputs at the given indexes.
	Authorize(packet *psbt.Packet, indexes []int) error
}
