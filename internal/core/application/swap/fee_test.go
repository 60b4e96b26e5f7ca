package swap

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

func TestFeeEstimatorOutputs(t *testing.T) {
	t.Parallel()

	fees, err := NewFeeEstimator(decimal.NewFromInt(2))
	require.NoError(t, err)

	p2wpkh := append([]byte{txscript.OP_0, txscript.OP_DATA_20}, make([]byte, 20)...)
	p2tr := append([]byte{txscript.OP_1, txscript.OP_DATA_32}, make([]byte, 32)...)
	pointer := uint32(0)
	stone, err := runestone.Runestone{
		Edicts: []runestone.Edict{
			{ID: runestone.RuneID{Block: 840000, Tx: 3}, Amount: 100000, Output: 1},
		},
		Pointer: &pointer,
	}.Script()
	require.NoError(t, err)

	inputs := []weightedInput{
		{script: p2wpkh, hashType: txscript.SigHashAll},
		{script: p2tr, hashType: txscript.SigHashDefault},
	}
	fee, vsize, err := fees.estimate(inputs, [][]byte{p2wpkh, p2tr})
	require.NoError(t, err)
	require.Equal(t, uint64(2*vsize), fee)

	// Every output weighs its value, script length and script.
	withStone, vsizeWithStone, err := fees.estimate(inputs, [][]byte{p2wpkh, p2tr, stone})
	require.NoError(t, err)
	require.Equal(t, 8+1+len(stone), vsizeWithStone-vsize)
	require.Equal(t, uint64(2*(8+1+len(stone))), withStone-fee)

	_, _, err = fees.estimate([]weightedInput{{script: []byte{txscript.OP_RETURN}}}, nil)
	require.Error(t, err)
}
