package swap

import (
	"github.com/tdex-network/unitswap/internal/core/domain"
)

// BuildSwapRequest is the phase 1 request of a swap.
type BuildSwapRequest struct {
	Direction        string `json:"direction"`
	UserValueAddress string `json:"userValueAddress"`
	UserValuePubkey  string `json:"userValuePubkey"`
	UserUnitAddress  string `json:"userUnitAddress"`
	UserUnitPubkey   string `json:"userUnitPubkey"`
	RequestedUnitID  string `json:"requestedUnitId,omitempty"`
	// RequestedBalanceAmount, if set, must match the configured unit price.
	RequestedBalanceAmount uint64 `json:"requestedBalanceAmount,omitempty"`
}

// BuildSwapResponse is the draft handed out to the user for signing.
type BuildSwapResponse struct {
	ReservationID             string   `json:"reservationId"`
	UnsignedTransactionHex    string   `json:"unsignedTransactionHex"`
	UnsignedTransactionBase64 string   `json:"unsignedTransactionBase64"`
	ValueSignerInputIndexes   []int    `json:"valueSignerInputIndexes"`
	UnitSignerInputIndexes    []int    `json:"unitSignerInputIndexes"`
	SighashType               uint32   `json:"sighashType"`
	ReservedOutputs           []string `json:"reservedOutputs"`
	ExpiresAt                 int64    `json:"expiresAt"`
	Fee                       uint64   `json:"fee"`
	Error                     string   `json:"error,omitempty"`
}

// SettleSwapRequest is the phase 2 request of a swap. The reservation is
// identified by id or, if missing, by the reserved outputs.
type SettleSwapRequest struct {
	ReservationID     string   `json:"reservationId,omitempty"`
	SignedTransaction string   `json:"signedTransaction"`
	ReservedOutputs   []string `json:"reservedOutputs,omitempty"`
}

type SettleSwapResponse struct {
	FinalTxID string `json:"finalTxId"`
	Error     string `json:"error,omitempty"`
}

// OutputInfo is the public view of an escrow unspent.
type OutputInfo struct {
	Outpoint  string `json:"outpoint"`
	Value     uint64 `json:"value"`
	Address   string `json:"address"`
	Asset     string `json:"asset"`
	Confirmed bool   `json:"confirmed"`
	Locked    bool   `json:"locked"`
	LockedBy  string `json:"lockedBy,omitempty"`
}

// ReservationInfo is the public view of an active reservation.
type ReservationInfo struct {
	ID        string   `json:"id"`
	Direction string   `json:"direction"`
	Outputs   []string `json:"outputs"`
	TxID      string   `json:"txid,omitempty"`
	Settling  bool     `json:"settling"`
	CreatedAt int64    `json:"createdAt"`
	ExpiresAt int64    `json:"expiresAt"`
}

// SettlementInfo is the public view of a settlement receipt.
type SettlementInfo struct {
	ReservationID string   `json:"reservationId"`
	Direction     string   `json:"direction"`
	TxID          string   `json:"txid"`
	Fee           uint64   `json:"fee"`
	Consumed      []string `json:"consumed"`
	Produced      []string `json:"produced"`
	SettledAt     int64    `json:"settledAt"`
}

func outputInfo(u domain.Unspent) OutputInfo {
	info := OutputInfo{
		Outpoint:  u.Key().String(),
		Value:     u.Value,
		Address:   u.Address,
		Asset:     u.Asset.String(),
		Confirmed: u.IsConfirmed(),
		Locked:    u.Locked,
	}
	if u.LockedBy != nil {
		info.LockedBy = u.LockedBy.String()
	}
	return info
}

func reservationInfo(r domain.Reservation) ReservationInfo {
	info := ReservationInfo{
		ID:        r.ID.String(),
		Direction: r.Intent.Direction.String(),
		Outputs:   outpoints(r.Unspents),
		Settling:  r.Settling,
		CreatedAt: r.CreatedAt.Unix(),
		ExpiresAt: r.ExpiresAt.Unix(),
	}
	if r.Draft != nil {
		info.TxID = r.Draft.TxID
	}
	return info
}

func settlementInfo(r domain.SettlementReceipt) SettlementInfo {
	return SettlementInfo{
		ReservationID: r.ReservationID.String(),
		Direction:     r.Direction.String(),
		TxID:          r.FinalTxID,
		Fee:           r.Fee,
		Consumed:      outpoints(r.ConsumedOutputs),
		Produced:      outpoints(r.ProducedOutputs()),
		SettledAt:     r.SettledAt.Unix(),
	}
}

func outpoints(unspents []domain.Unspent) []string {
	list := make([]string, 0, len(unspents))
	for _, u := range unspents {
		list = append(list, u.Key().String())
	}
	return list
}
