package escrow_test

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (*btcec.PrivateKey, string) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, params, true)
	require.NoError(t, err)
	return key, wif.String()
}

func schnorrKey(key *btcec.PrivateKey) []byte {
	return schnorr.SerializePubKey(txscript.ComputeTaprootKeyNoScript(key.PubKey()))
}

func addressScript(t *testing.T, address string) []byte {
	addr, err := btcutil.DecodeAddress(address, params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}

func p2wpkhScript(t *testing.T, key *btcec.PrivateKey) []byte {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(key.PubKey().SerializeCompressed())).
		Script()
	require.NoError(t, err)
	return script
}

func newPacket(t *testing.T, scripts [][]byte, values []int64) *psbt.Packet {
	tx := wire.NewMsgTx(2)
	for i := range scripts {
		hash := chainhash.Hash{byte(i + 1)}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&hash, uint32(i)), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(1000, scripts[0]))

	pkt, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	for i := range scripts {
		pkt.Inputs[i].WitnessUtxo = wire.NewTxOut(values[i], scripts[i])
	}
	return pkt
}

// verifyPacket finalizes the packet and runs the script engine over every
// input of the extracted tx.
func verifyPacket(t *testing.T, pkt *psbt.Packet) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range pkt.UnsignedTx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, pkt.Inputs[i].WitnessUtxo)
	}

	require.NoError(t, psbt.MaybeFinalizeAll(pkt))
	tx, err := psbt.Extract(pkt)
	require.NoError(t, err)

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i := range tx.TxIn {
		prevout := pkt.Inputs[i].WitnessUtxo
		vm, err := txscript.NewEngine(
			prevout.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevout.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func stringReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
