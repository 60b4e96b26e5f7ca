package swap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tdex-network/unitswap/internal/core/domain"
)

// Partitioner derives the signing plan of a draft from the final input order
// of its transaction.
type Partitioner struct {
	sighashType txscript.SigHashType
}

func NewPartitioner() *Partitioner {
	return &Partitioner{UserSighashType}
}

// Partition assigns every user input of the packet to the key that must
// sign it and sets the expected sighash type on the packet. Inputs are
// resolved by outpoint so that the plan always reflects the actual input
// order of the transaction.
func (p *Partitioner) Partition(
	draft *domain.Draft, pkt *psbt.Packet,
) (*domain.SigningPlan, error) {
	txIns := pkt.UnsignedTx.TxIn
	if len(txIns) != len(draft.Inputs) {
		return nil, fmt.Errorf(
			"draft has %d inputs, transaction has %d", len(draft.Inputs), len(txIns),
		)
	}

	plan := domain.NewSigningPlan(len(txIns))
	for i, txIn := range txIns {
		key := domain.UnspentKey{
			TxID: txIn.PreviousOutPoint.Hash.String(),
			VOut: txIn.PreviousOutPoint.Index,
		}
		idx := draft.FindInput(key)
		if idx < 0 {
			return nil, fmt.Errorf("input %s not found in draft", key)
		}

		in := draft.Inputs[idx]
		if in.Origin() == domain.OriginEscrow {
			continue
		}

		signer := domain.SignerValueKey
		if in.Role == domain.RoleUserUnit {
			signer = domain.SignerUnitKey
		}
		if err := plan.Add(i, signer, uint32(p.sighashType)); err != nil {
			return nil, err
		}
		pkt.Inputs[i].SighashType = p.sighashType
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}
