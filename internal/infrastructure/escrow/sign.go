package escrow

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// prevOutFetcher returns the fetcher of the prevouts spent by the packet.
// Every input must carry its witness utxo.
func prevOutFetcher(pkt *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range pkt.UnsignedTx.TxIn {
		prevout := pkt.Inputs[i].WitnessUtxo
		if prevout == nil {
			return nil, fmt.Errorf("input %d is missing witness utxo", i)
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevout)
	}
	return fetcher, nil
}

// signInput adds to the input at the given index a signature made with key.
// The spent script must be a P2WPKH, a nested P2WPKH or a key-path-only
// P2TR script locked to key.
func signInput(
	pkt *psbt.Packet, idx int, key *btcec.PrivateKey,
	hashType txscript.SigHashType, sigHashes *txscript.TxSigHashes,
) error {
	pIn := &pkt.Inputs[idx]
	prevout := pIn.WitnessUtxo
	script := prevout.PkScript
	pubkey := key.PubKey().SerializeCompressed()

	switch {
	case txscript.IsPayToWitnessPubKeyHash(script):
		if !bytes.Equal(script[2:], btcutil.Hash160(pubkey)) {
			return fmt.Errorf("input %d is not locked to the signing key", idx)
		}
		return signWitnessPubKeyHash(pkt, idx, script, key, hashType, sigHashes)

	case txscript.IsPayToScriptHash(script):
		redeemScript, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(pubkey)).
			Script()
		if err != nil {
			return err
		}
		if !bytes.Equal(script[2:22], btcutil.Hash160(redeemScript)) {
			return fmt.Errorf("input %d is not locked to the signing key", idx)
		}
		pIn.RedeemScript = redeemScript
		return signWitnessPubKeyHash(pkt, idx, redeemScript, key, hashType, sigHashes)

	case txscript.IsPayToTaproot(script):
		outputKey := txscript.ComputeTaprootKeyNoScript(key.PubKey())
		if !bytes.Equal(script[2:], schnorr.SerializePubKey(outputKey)) {
			return fmt.Errorf("input %d is not locked to the signing key", idx)
		}
		sig, err := txscript.RawTxInTaprootSignature(
			pkt.UnsignedTx, sigHashes, idx, prevout.Value, script,
			nil, hashType, key,
		)
		if err != nil {
			return err
		}
		// The sighash flag must follow the 64-byte signature unless it's
		// the default one.
		sig = sig[:schnorr.SignatureSize]
		if hashType != txscript.SigHashDefault {
			sig = append(sig, byte(hashType))
		}
		pIn.TaprootKeySpendSig = sig
		pIn.TaprootInternalKey = schnorr.SerializePubKey(key.PubKey())
		pIn.SighashType = hashType
		return nil

	default:
		return fmt.Errorf("input %d has unsupported script %x", idx, script)
	}
}

func signWitnessPubKeyHash(
	pkt *psbt.Packet, idx int, witnessProgram []byte, key *btcec.PrivateKey,
	hashType txscript.SigHashType, sigHashes *txscript.TxSigHashes,
) error {
	pIn := &pkt.Inputs[idx]
	sig, err := txscript.RawTxInWitnessSignature(
		pkt.UnsignedTx, sigHashes, idx, pIn.WitnessUtxo.Value,
		witnessProgram, hashType, key,
	)
	if err != nil {
		return err
	}
	pIn.PartialSigs = []*psbt.PartialSig{{
		PubKey:    key.PubKey().SerializeCompressed(),
		Signature: sig,
	}}
	pIn.SighashType = hashType
	return nil
}

func signInputs(
	pkt *psbt.Packet, indexes []int, key *btcec.PrivateKey,
	hashType txscript.SigHashType,
) error {
	if pkt == nil || pkt.UnsignedTx == nil {
		return fmt.Errorf("missing packet")
	}
	fetcher, err := prevOutFetcher(pkt)
	if err != nil {
		return err
	}
	sigHashes := txscript.NewTxSigHashes(pkt.UnsignedTx, fetcher)

	for _, i := range indexes {
		if i < 0 || i >= len(pkt.Inputs) {
			return fmt.Errorf("input index %d out of range", i)
		}
		if err := signInput(pkt, i, key, hashType, sigHashes); err != nil {
			return err
		}
	}
	return nil
}

// addressForKey returns the address of the given type locked to key.
func addressForKey(
	key *btcec.PublicKey, addressType string, params *chaincfg.Params,
) (btcutil.Address, error) {
	switch addressType {
	case AddressTypeP2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(key.SerializeCompressed()), params,
		)
	case AddressTypeP2TR:
		outputKey := txscript.ComputeTaprootKeyNoScript(key)
		return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params)
	default:
		return nil, fmt.Errorf("unsupported address type %q", addressType)
	}
}
