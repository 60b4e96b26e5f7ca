package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// WalletSigner is a minimal user wallet holding a set of private keys. It
// signs draft inputs with whichever of its keys locks them. The daemon
// never uses it; it serves the operator CLI for test swaps on regtest and
// signet.
type WalletSigner struct {
	keys []*btcec.PrivateKey
}

// NewWalletSigner returns a signer for the given WIF encoded keys.
func NewWalletSigner(wifs ...string) (*WalletSigner, error) {
	if len(wifs) <= 0 {
		return nil, fmt.Errorf("missing signing keys")
	}
	keys := make([]*btcec.PrivateKey, 0, len(wifs))
	for _, w := range wifs {
		decoded, err := btcutil.DecodeWIF(strings.TrimSpace(w))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %s", err)
		}
		keys = append(keys, decoded.PrivKey)
	}
	return &WalletSigner{keys}, nil
}

// NewWalletSignerFromKeys returns a signer for the given private keys.
func NewWalletSignerFromKeys(keys ...*btcec.PrivateKey) *WalletSigner {
	return &WalletSigner{keys}
}

// Sign signs the inputs at the given indexes of the base64 encoded PSBT and
// returns the updated PSBT.
func (w *WalletSigner) Sign(
	_ context.Context, draft string, indexes []int, sighashMode uint32,
) (string, error) {
	pkt, err := psbt.NewFromRawBytes(strings.NewReader(draft), true)
	if err != nil {
		return "", fmt.Errorf("invalid draft: %s", err)
	}
	fetcher, err := prevOutFetcher(pkt)
	if err != nil {
		return "", err
	}
	sigHashes := txscript.NewTxSigHashes(pkt.UnsignedTx, fetcher)
	hashType := txscript.SigHashType(sighashMode)

	for _, i := range indexes {
		if i < 0 || i >= len(pkt.Inputs) {
			return "", fmt.Errorf("input index %d out of range", i)
		}
		signed := false
		for _, key := range w.keys {
			if err := signInput(pkt, i, key, hashType, sigHashes); err == nil {
				signed = true
				break
			}
		}
		if !signed {
			return "", fmt.Errorf("no key can sign input %d", i)
		}
	}
	return pkt.B64Encode()
}
