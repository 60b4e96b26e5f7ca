package runestone_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

func TestParseRuneID(t *testing.T) {
	t.Parallel()

	id, err := runestone.ParseRuneID("840000:3")
	require.NoError(t, err)
	require.Equal(t, runestone.RuneID{Block: 840000, Tx: 3}, id)
	require.Equal(t, "840000:3", id.String())

	for _, s := range []string{"", "840000", "a:1", "1:b", "0:0", "1:4294967296"} {
		_, err := runestone.ParseRuneID(s)
		require.Error(t, err, s)
	}
}

func TestScript(t *testing.T) {
	t.Parallel()

	id := runestone.RuneID{Block: 840000, Tx: 3}
	pointer := uint32(1)
	script, err := runestone.Runestone{
		Edicts: []runestone.Edict{
			{ID: id, Amount: 100000, Output: 2},
			{ID: id, Amount: 900000, Output: 1},
		},
		Pointer: &pointer,
	}.Script()
	require.NoError(t, err)

	// OP_RETURN OP_13 <push>: pointer 1, body, then edicts with the id of
	// the second one delta encoded.
	expected := "6a5d" + "11" +
		"1601" + "00" +
		"c0a233" + "03" + "a08d06" + "02" +
		"00" + "00" + "a0f736" + "01"
	require.Equal(t, expected, hex.EncodeToString(script))
	require.True(t, runestone.IsRunestone(script))

	decoded, err := runestone.Decode(script)
	require.NoError(t, err)
	require.NotNil(t, decoded.Pointer)
	require.Equal(t, pointer, *decoded.Pointer)
	require.Equal(t, []runestone.Edict{
		{ID: id, Amount: 100000, Output: 2},
		{ID: id, Amount: 900000, Output: 1},
	}, decoded.Edicts)
}

func TestScriptSortsEdicts(t *testing.T) {
	t.Parallel()

	first := runestone.RuneID{Block: 840000, Tx: 3}
	second := runestone.RuneID{Block: 840001, Tx: 1}
	script, err := runestone.Runestone{
		Edicts: []runestone.Edict{
			{ID: second, Amount: 1, Output: 0},
			{ID: first, Amount: 2, Output: 1},
		},
	}.Script()
	require.NoError(t, err)

	decoded, err := runestone.Decode(script)
	require.NoError(t, err)
	require.Nil(t, decoded.Pointer)
	require.Equal(t, []runestone.Edict{
		{ID: first, Amount: 2, Output: 1},
		{ID: second, Amount: 1, Output: 0},
	}, decoded.Edicts)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		script      string
		expectedErr error
	}{
		{"not op_return", "5d0100", runestone.ErrNotRunestone},
		{"missing magic number", "6a0100", runestone.ErrNotRunestone},
		{"small int opcode", "6a5d51", runestone.ErrMalformed},
		{"truncated varint", "6a5d0180", runestone.ErrMalformed},
		{"unrecognized even tag", "6a5d020201", runestone.ErrMalformed},
		{"truncated edict", "6a5d0400010203", runestone.ErrMalformed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			script, err := hex.DecodeString(tt.script)
			require.NoError(t, err)
			_, err = runestone.Decode(script)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestScriptIsPushOnly(t *testing.T) {
	t.Parallel()

	script, err := runestone.Runestone{
		Edicts: []runestone.Edict{{ID: runestone.RuneID{Block: 1, Tx: 1}, Output: 0}},
	}.Script()
	require.NoError(t, err)
	require.True(t, txscript.IsPushOnlyScript(script[1:]))
}
