package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Direction is the direction of a swap from the user's point of view.
type Direction int

const (
	DirectionUnknown Direction = iota
	// UnitToBalance: the user gives a unique unit and receives a fungible
	// amount from the escrow.
	UnitToBalance
	// BalanceToUnit: the user gives a fungible amount and receives a unique
	// unit from the escrow.
	BalanceToUnit
)

func (d Direction) String() string {
	switch d {
	case UnitToBalance:
		return "unit_to_balance"
	case BalanceToUnit:
		return "balance_to_unit"
	default:
		return "unknown"
	}
}

// ParseDirection parses the string representation of a direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unit_to_balance", "unittobalance", "sell":
		return UnitToBalance, nil
	case "balance_to_unit", "balancetounit", "buy":
		return BalanceToUnit, nil
	default:
		return DirectionUnknown, fmt.Errorf("%w: unknown direction %q", ErrInvalidIntent, s)
	}
}

// SwapIntent is the immutable description of a swap request.
type SwapIntent struct {
	ID                     uuid.UUID
	Direction              Direction
	RequestedUnitID        string
	RequestedBalanceAmount uint64
	UserValueAddress       string
	UserValuePubkey        []byte
	UserUnitAddress        string
	UserUnitPubkey         []byte
}

// NewSwapIntent validates the given arguments and returns a new intent with a
// fresh id. Pubkeys are hex encoded, either 33-byte compressed or 32-byte
// x-only keys.
func NewSwapIntent(
	direction Direction, requestedUnitID string, requestedAmount uint64,
	valueAddr, valuePubkey, unitAddr, unitPubkey string,
) (*SwapIntent, error) {
	if direction != UnitToBalance && direction != BalanceToUnit {
		return nil, fmt.Errorf("%w: missing direction", ErrInvalidIntent)
	}
	if valueAddr == "" {
		return nil, fmt.Errorf("%w: missing user value address", ErrInvalidIntent)
	}
	if unitAddr == "" {
		return nil, fmt.Errorf("%w: missing user unit address", ErrInvalidIntent)
	}
	vpk, err := parsePubkey(valuePubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: user value pubkey: %s", ErrInvalidIntent, err)
	}
	upk, err := parsePubkey(unitPubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: user unit pubkey: %s", ErrInvalidIntent, err)
	}

	return &SwapIntent{
		ID:                     uuid.New(),
		Direction:              direction,
		RequestedUnitID:        strings.TrimSpace(requestedUnitID),
		RequestedBalanceAmount: requestedAmount,
		UserValueAddress:       valueAddr,
		UserValuePubkey:        vpk,
		UserUnitAddress:        unitAddr,
		UserUnitPubkey:         upk,
	}, nil
}

// HasRequestedUnit returns whether the intent refers to a specific unit.
func (i SwapIntent) HasRequestedUnit() bool {
	return i.RequestedUnitID != ""
}

func parsePubkey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("missing")
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %s", err)
	}
	if len(buf) != 33 && len(buf) != 32 {
		return nil, fmt.Errorf("invalid length %d", len(buf))
	}
	return buf, nil
}
