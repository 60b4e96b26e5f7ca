package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SettlementStatus is the status of a swap settlement.
type SettlementStatus int

const (
	SettlementDraft SettlementStatus = iota
	SettlementAwaitingSignatures
	SettlementSigned
	SettlementFinalized
	SettlementBroadcast
	SettlementSettled
	SettlementSignatureRejected
	SettlementFinalizationFailed
	SettlementBroadcastFailed
	SettlementAborted
)

var settlementStatusNames = map[SettlementStatus]string{
	SettlementDraft:              "draft",
	SettlementAwaitingSignatures: "awaiting_signatures",
	SettlementSigned:             "signed",
	SettlementFinalized:          "finalized",
	SettlementBroadcast:          "broadcast",
	SettlementSettled:            "settled",
	SettlementSignatureRejected:  "signature_rejected",
	SettlementFinalizationFailed: "finalization_failed",
	SettlementBroadcastFailed:    "broadcast_failed",
	SettlementAborted:            "aborted",
}

func (s SettlementStatus) String() string {
	if name, ok := settlementStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal returns whether no further transition is possible.
func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementSettled || s == SettlementAborted
}

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementDraft:              {SettlementAwaitingSignatures},
	SettlementAwaitingSignatures: {SettlementSigned, SettlementSignatureRejected},
	SettlementSigned:             {SettlementFinalized, SettlementFinalizationFailed},
	SettlementFinalized:          {SettlementBroadcast, SettlementBroadcastFailed},
	SettlementBroadcast:          {SettlementSettled, SettlementBroadcastFailed},
	SettlementSignatureRejected:  {SettlementAborted},
	SettlementFinalizationFailed: {SettlementAborted},
	SettlementBroadcastFailed:    {SettlementAborted},
}

// Settlement tracks the progress of a reservation through the settle phase.
type Settlement struct {
	ReservationID uuid.UUID
	Status        SettlementStatus
	TxID          string
	FailureReason string
	// FailedWith is the failure exit taken before aborting, if any.
	FailedWith SettlementStatus
}

// NewSettlement returns a settlement for the given reservation, already
// waiting for signatures since the draft was handed out in the build phase.
func NewSettlement(reservationID uuid.UUID) *Settlement {
	return &Settlement{
		ReservationID: reservationID,
		Status:        SettlementAwaitingSignatures,
	}
}

func (s *Settlement) moveTo(next SettlementStatus) error {
	for _, allowed := range settlementTransitions[s.Status] {
		if allowed == next {
			s.Status = next
			return nil
		}
	}
	return fmt.Errorf(
		"%w: %s -> %s", ErrInvalidSettlementTransition, s.Status, next,
	)
}

// Sign marks the signatures as verified.
func (s *Settlement) Sign() error {
	return s.moveTo(SettlementSigned)
}

// Finalize marks the transaction as finalized.
func (s *Settlement) Finalize() error {
	return s.moveTo(SettlementFinalized)
}

// Broadcast marks the transaction as accepted by the network.
func (s *Settlement) Broadcast(txid string) error {
	if err := s.moveTo(SettlementBroadcast); err != nil {
		return err
	}
	s.TxID = txid
	return nil
}

// Settle marks the settlement as completed.
func (s *Settlement) Settle() error {
	return s.moveTo(SettlementSettled)
}

// Fail brings the settlement to the failure exit related to the current
// status and then to Aborted.
func (s *Settlement) Fail(reason error) {
	if s.Status.IsTerminal() {
		return
	}
	var exit SettlementStatus
	switch s.Status {
	case SettlementAwaitingSignatures:
		exit = SettlementSignatureRejected
	case SettlementSigned:
		exit = SettlementFinalizationFailed
	default:
		exit = SettlementBroadcastFailed
	}
	if reason != nil {
		s.FailureReason = reason.Error()
	}
	s.Status = exit
	s.FailedWith = exit
	//nolint
	s.moveTo(SettlementAborted)
}

// IsSettled returns whether the swap tx was accepted by the network.
func (s *Settlement) IsSettled() bool {
	return s.Status == SettlementSettled
}

// IsAborted returns whether the settlement failed.
func (s *Settlement) IsAborted() bool {
	return s.Status == SettlementAborted
}

// SettlementReceipt is the outcome of a successful settlement. It's the only
// input of the index commit.
type SettlementReceipt struct {
	ReservationID        uuid.UUID
	Direction            Direction
	FinalTxID            string
	Fee                  uint64
	ConsumedOutputs      []Unspent
	ProducedChangeOutput *Unspent
	// ReceivedOutputs are the counterparty outputs paid to the escrow.
	ReceivedOutputs []Unspent
	SettledAt       time.Time
}

// ProducedOutputs returns all the escrow outputs created by the settlement.
func (r SettlementReceipt) ProducedOutputs() []Unspent {
	outs := make([]Unspent, 0, len(r.ReceivedOutputs)+1)
	outs = append(outs, r.ReceivedOutputs...)
	if r.ProducedChangeOutput != nil {
		outs = append(outs, *r.ProducedChangeOutput)
	}
	return outs
}
