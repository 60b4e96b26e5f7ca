package swap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/input"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/shopspring/decimal"
)

var (
	minSatsPerVByte = decimal.NewFromInt(1)
	maxSatsPerVByte = decimal.NewFromInt(10000)
)

// FeeEstimator computes the network fee of a draft as fee rate times its
// estimated virtual size.
type FeeEstimator struct {
	rate chainfee.SatPerKVByte
}

// NewFeeEstimator returns an estimator for the given rate in sats/vbyte.
func NewFeeEstimator(satsPerVByte decimal.Decimal) (*FeeEstimator, error) {
	if satsPerVByte.LessThan(minSatsPerVByte) ||
		satsPerVByte.GreaterThan(maxSatsPerVByte) {
		return nil, fmt.Errorf(
			"sats per vbyte rate must be in range [%s, %s]",
			minSatsPerVByte, maxSatsPerVByte,
		)
	}
	satsPerKVByte := satsPerVByte.Mul(decimal.NewFromInt(1000)).Ceil().IntPart()
	return &FeeEstimator{chainfee.SatPerKVByte(satsPerKVByte)}, nil
}

// SatsPerVByte returns the configured rate.
func (e *FeeEstimator) SatsPerVByte() decimal.Decimal {
	return decimal.NewFromInt(int64(e.rate)).Div(decimal.NewFromInt(1000))
}

type weightedInput struct {
	script   []byte
	hashType txscript.SigHashType
}

// estimate returns the fee and the virtual size of a tx spending the given
// inputs into outputs with the given scripts.
func (e *FeeEstimator) estimate(
	inputs []weightedInput, outputs [][]byte,
) (uint64, int, error) {
	var weightEstimator input.TxWeightEstimator
	for _, in := range inputs {
		switch scriptKind(in.script) {
		case scriptP2WPKH:
			weightEstimator.AddP2WKHInput()
		case scriptNestedP2WPKH:
			weightEstimator.AddNestedP2WKHInput()
		case scriptP2TR:
			weightEstimator.AddTaprootKeySpendInput(in.hashType)
		default:
			return 0, 0, fmt.Errorf("unsupported input script %x", in.script)
		}
	}
	for _, script := range outputs {
		weightEstimator.AddTxOutput(wire.NewTxOut(0, script))
	}

	vsize := weightEstimator.VSize()
	fee := e.rate.FeeForVSize(int64(vsize))
	return uint64(fee), vsize, nil
}

type scriptType int

const (
	scriptUnsupported scriptType = iota
	scriptP2WPKH
	scriptNestedP2WPKH
	scriptP2TR
)

func scriptKind(script []byte) scriptType {
	switch {
	case txscript.IsPayToWitnessPubKeyHash(script):
		return scriptP2WPKH
	case txscript.IsPayToScriptHash(script):
		return scriptNestedP2WPKH
	case txscript.IsPayToTaproot(script):
		return scriptP2TR
	default:
		return scriptUnsupported
	}
}

// isDust returns whether an output of the given value and script would be
// refused by the network default relay policy.
func isDust(value uint64, script []byte) bool {
	out := wire.NewTxOut(int64(value), script)
	return mempool.IsDust(out, btcutil.Amount(mempool.DefaultMinRelayTxFee))
}
