package escrow

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	log "github.com/sirupsen/logrus"
)

const (
	AddressTypeP2TR   = "p2tr"
	AddressTypeP2WPKH = "p2wpkh"
)

// KeyDelegation is the escrow delegation credential: the escrow private key
// handed to the daemon at startup. It authorizes escrow inputs with
// SIGHASH_ALL for P2WPKH addresses and SIGHASH_DEFAULT for P2TR ones.
type KeyDelegation struct {
	key         *btcec.PrivateKey
	addressType string
	address     string
	script      []byte
}

// NewKeyDelegation parses the WIF encoded escrow key and derives the escrow
// address of the given type.
func NewKeyDelegation(
	wif, addressType string, params *chaincfg.Params,
) (*KeyDelegation, error) {
	if params == nil {
		return nil, fmt.Errorf("missing network params")
	}
	decoded, err := btcutil.DecodeWIF(strings.TrimSpace(wif))
	if err != nil {
		return nil, fmt.Errorf("invalid escrow key: %s", err)
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("escrow key is not for network %s", params.Name)
	}

	addressType = strings.ToLower(strings.TrimSpace(addressType))
	addr, err := addressForKey(decoded.PrivKey.PubKey(), addressType, params)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &KeyDelegation{
		key:         decoded.PrivKey,
		addressType: addressType,
		address:     addr.EncodeAddress(),
		script:      script,
	}, nil
}

func (d *KeyDelegation) Address() string {
	return d.address
}

// PubKey returns the compressed escrow public key.
func (d *KeyDelegation) PubKey() []byte {
	return d.key.PubKey().SerializeCompressed()
}

// Authorize signs the escrow inputs at the given indexes. Every one of them
// must spend an output locked to the escrow address.
func (d *KeyDelegation) Authorize(pkt *psbt.Packet, indexes []int) error {
	if pkt == nil || pkt.UnsignedTx == nil {
		return fmt.Errorf("missing packet")
	}
	for _, i := range indexes {
		if i < 0 || i >= len(pkt.Inputs) {
			return fmt.Errorf("input index %d out of range", i)
		}
		prevout := pkt.Inputs[i].WitnessUtxo
		if prevout == nil || string(prevout.PkScript) != string(d.script) {
			return fmt.Errorf("input %d does not spend an escrow output", i)
		}
	}

	hashType := txscript.SigHashAll
	if d.addressType == AddressTypeP2TR {
		hashType = txscript.SigHashDefault
	}
	if err := signInputs(pkt, indexes, d.key, hashType); err != nil {
		return err
	}

	log.Debugf("escrow: authorized inputs %v", indexes)
	return nil
}
