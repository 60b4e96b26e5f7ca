package domain

import "errors"

var (
	// ErrNoMatchingAsset is returned when no output carries the requested
	// asset.
	ErrNoMatchingAsset = errors.New("no output matches the requested asset")
	// ErrInsufficientFunds is returned when the selectable outputs can't cover
	// the requested fungible amount or the fee funding value.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrFeeUnderfunded is returned when the fee funding inputs don't cover the
	// network fee of the draft transaction.
	ErrFeeUnderfunded = errors.New("fee funding inputs do not cover network fees")
	// ErrUnitMisplaced is returned when the sat carrying the unique unit
	// would not end up on the output meant to receive it.
	ErrUnitMisplaced = errors.New("unit would not land on its destination output")
	// ErrReservationExpired is returned when a reservation lease has expired.
	ErrReservationExpired = errors.New("reservation expired")
	// ErrReservationNotFound is returned when no reservation matches.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrSettlementInProgress is returned when a reservation is already being
	// settled by another request.
	ErrSettlementInProgress = errors.New("settlement already in progress")
	// ErrSignatureMissing is returned when an input required to be signed by
	// the user carries no signature.
	ErrSignatureMissing = errors.New("missing signature")
	// ErrSignatureInvalidScope is returned when a signature is invalid or has
	// an unexpected sighash type.
	ErrSignatureInvalidScope = errors.New("invalid signature or signature scope")
	// ErrFinalizationFailed is returned when the signed draft can't be turned
	// into a broadcastable transaction.
	ErrFinalizationFailed = errors.New("failed to finalize transaction")
	// ErrBroadcastRejected is returned when the network refuses the
	// transaction because of its content.
	ErrBroadcastRejected = errors.New("transaction rejected by the network")
	// ErrNetworkTransient is returned for network failures worth retrying.
	ErrNetworkTransient = errors.New("transient network failure")
	// ErrUnspentAlreadyLocked is returned when trying to lock an unspent
	// already locked by another reservation.
	ErrUnspentAlreadyLocked = errors.New("unspent is already locked")
	// ErrUnspentNotFound is returned when an unspent is not in the index.
	ErrUnspentNotFound = errors.New("unspent not found")
	// ErrInvalidIntent is returned for malformed swap intents.
	ErrInvalidIntent = errors.New("invalid swap intent")
	// ErrInvalidSettlementTransition is returned when a settlement is moved to
	// a status not reachable from the current one.
	ErrInvalidSettlementTransition = errors.New("invalid settlement status transition")
)
