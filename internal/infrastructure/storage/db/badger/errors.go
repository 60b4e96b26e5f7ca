package dbbadger

import "errors"

var (
	// ErrSettlementNotFound is returned when no receipt is stored for a txid.
	ErrSettlementNotFound = errors.New("settlement not found")
	// ErrSettlementAlreadyExists is returned when storing a receipt twice.
	ErrSettlementAlreadyExists = errors.New("settlement already exists")
)
