package domain

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AssetKind identifies what kind of asset, if any, an output carries on top
// of its bitcoin value.
type AssetKind int

const (
	// AssetKindNone is a plain bitcoin output, usable for fees.
	AssetKindNone AssetKind = iota
	// AssetKindFungible is an output holding an amount of the fungible token.
	AssetKindFungible
	// AssetKindUnique is an output holding exactly one unique unit.
	AssetKindUnique
	// AssetKindForeign is an output holding assets not traded by the daemon.
	// These are never selected, neither as swap inputs nor for fees.
	AssetKindForeign
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindNone:
		return "none"
	case AssetKindFungible:
		return "fungible"
	case AssetKindUnique:
		return "unique"
	case AssetKindForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

// AssetTag describes the asset content of an output. Offset is the position
// of the unit within the sats of a unique output.
type AssetTag struct {
	Kind   AssetKind
	Amount uint64
	UnitID string
	Offset uint64
}

// NoAsset returns the tag of a plain bitcoin output.
func NoAsset() AssetTag {
	return AssetTag{Kind: AssetKindNone}
}

// Fungible returns the tag of an output holding the given token amount.
func Fungible(amount uint64) AssetTag {
	return AssetTag{Kind: AssetKindFungible, Amount: amount}
}

// Unique returns the tag of an output holding the unit with the given id on
// its first sat.
func Unique(unitID string) AssetTag {
	return UniqueAt(unitID, 0)
}

// UniqueAt returns the tag of an output holding the unit with the given id on
// the sat at the given offset.
func UniqueAt(unitID string, offset uint64) AssetTag {
	return AssetTag{Kind: AssetKindUnique, UnitID: unitID, Offset: offset}
}

// Foreign returns the tag of an output holding assets not traded here.
func Foreign() AssetTag {
	return AssetTag{Kind: AssetKindForeign}
}

func (t AssetTag) IsNone() bool     { return t.Kind == AssetKindNone }
func (t AssetTag) IsFungible() bool { return t.Kind == AssetKindFungible }
func (t AssetTag) IsUnique() bool   { return t.Kind == AssetKindUnique }
func (t AssetTag) IsForeign() bool  { return t.Kind == AssetKindForeign }

func (t AssetTag) String() string {
	switch t.Kind {
	case AssetKindFungible:
		return fmt.Sprintf("fungible(%d)", t.Amount)
	case AssetKindUnique:
		return fmt.Sprintf("unique(%s)", t.UnitID)
	default:
		return t.Kind.String()
	}
}

// UnspentKey represent the ID of an Unspent, composed by its txid and vout.
type UnspentKey struct {
	TxID string
	VOut uint32
}

func (k UnspentKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// ParseUnspentKey parses an outpoint in the form <txid>:<vout>.
func ParseUnspentKey(s string) (UnspentKey, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return UnspentKey{}, fmt.Errorf("invalid outpoint %q", s)
	}
	if buf, err := hex.DecodeString(parts[0]); err != nil || len(buf) != 32 {
		return UnspentKey{}, fmt.Errorf("invalid outpoint txid %q", parts[0])
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return UnspentKey{}, fmt.Errorf("invalid outpoint index %q", parts[1])
	}
	return UnspentKey{TxID: parts[0], VOut: uint32(vout)}, nil
}

// Unspent is the data structure representing a spendable output, either
// controlled by the escrow (when stored in the index) or by a user (when
// returned by the settlement network), along with its asset content and
// whether it's confirmed or locked by some reservation.
type Unspent struct {
	TxID      string
	VOut      uint32
	Value     uint64
	Script    []byte
	Address   string
	Asset     AssetTag
	Confirmed bool
	Locked    bool
	LockedBy  *uuid.UUID
	// Sequence is the insertion order of the unspent in the index.
	Sequence uint64
}

// IsKeyEqual returns whether the provided UnspentKey matches that or the
// current unspent.
func (u *Unspent) IsKeyEqual(key UnspentKey) bool {
	return u.TxID == key.TxID && u.VOut == key.VOut
}

// IsConfirmed returns whether the unspent is already confirmed.
func (u *Unspent) IsConfirmed() bool {
	return u.Confirmed
}

// IsLocked returns whether the unspent is held by a reservation.
func (u *Unspent) IsLocked() bool {
	return u.Locked
}

// Key returns the UnspentKey of the current unspent.
func (u *Unspent) Key() UnspentKey {
	return UnspentKey{
		TxID: u.TxID,
		VOut: u.VOut,
	}
}

// Confirm marks the unspents as confirmed.
func (u *Unspent) Confirm() {
	u.Confirmed = true
}

// Lock marks the current unspent as locked, referring to some reservation by
// its UUID.
func (u *Unspent) Lock(reservationID *uuid.UUID) error {
	if u.IsLocked() {
		if reservationID.String() != u.LockedBy.String() {
			return ErrUnspentAlreadyLocked
		}
		return nil
	}

	u.Locked = true
	u.LockedBy = reservationID
	return nil
}

// Unlock marks the current locked unspent as unlocked.
func (u *Unspent) Unlock() {
	u.Locked = false
	u.LockedBy = nil
}

// IsSelectable returns whether the unspent can be picked for a new
// reservation.
func (u *Unspent) IsSelectable(allowUnconfirmed bool) bool {
	if u.IsLocked() || u.Asset.IsForeign() {
		return false
	}
	return u.IsConfirmed() || allowUnconfirmed
}

// SortBySequence sorts the given list in insertion order.
func SortBySequence(unspents []Unspent) {
	sort.SliceStable(unspents, func(i, j int) bool {
		return unspents[i].Sequence < unspents[j].Sequence
	})
}

// TotalValue returns the sum of the values of the given unspents.
func TotalValue(unspents []Unspent) uint64 {
	var tot uint64
	for _, u := range unspents {
		tot += u.Value
	}
	return tot
}

// TotalFungible returns the sum of the fungible amounts of the given unspents.
func TotalFungible(unspents []Unspent) uint64 {
	var tot uint64
	for _, u := range unspents {
		if u.Asset.IsFungible() {
			tot += u.Asset.Amount
		}
	}
	return tot
}

// Keys returns the keys of the given unspents.
func Keys(unspents []Unspent) []UnspentKey {
	keys := make([]UnspentKey, 0, len(unspents))
	for _, u := range unspents {
		keys = append(keys, u.Key())
	}
	return keys
}
