package esplora

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/pkg/explorer"
)

type network struct {
	explorer explorer.Service
	params   *chaincfg.Params
}

// NewNetwork returns a settlement network backed by an esplora explorer.
// It has no knowledge of the asset content of outputs, every unspent is
// returned without any asset tag.
func NewNetwork(
	svc explorer.Service, params *chaincfg.Params,
) (ports.SettlementNetwork, error) {
	if svc == nil {
		return nil, fmt.Errorf("missing explorer service")
	}
	if params == nil {
		return nil, fmt.Errorf("missing network params")
	}
	return &network{svc, params}, nil
}

func (n *network) Broadcast(ctx context.Context, txHex string) (string, error) {
	txid, err := n.explorer.BroadcastTransaction(ctx, txHex)
	if err != nil {
		return "", mapError(err)
	}
	return txid, nil
}

func (n *network) GetSpendableOutputs(
	ctx context.Context, address string,
) ([]domain.Unspent, error) {
	addr, err := btcutil.DecodeAddress(address, n.params)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	if !addr.IsForNet(n.params) {
		return nil, fmt.Errorf("address %s is not for network %s", address, n.params.Name)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}

	utxos, err := n.explorer.GetUnspents(ctx, address)
	if err != nil {
		return nil, mapError(err)
	}

	unspents := make([]domain.Unspent, 0, len(utxos))
	for _, u := range utxos {
		unspents = append(unspents, domain.Unspent{
			TxID:      u.TxID,
			VOut:      u.VOut,
			Value:     u.Value,
			Script:    script,
			Address:   address,
			Asset:     domain.NoAsset(),
			Confirmed: u.Confirmed,
		})
	}
	return unspents, nil
}

// GetConfirmationStatus reports a tx unknown to the explorer as pending.
// The explorer may index a just accepted tx with some delay and it has no
// way to tell a dropped tx from one not yet seen, so it never reports
// rejections.
func (n *network) GetConfirmationStatus(
	ctx context.Context, txid string,
) (ports.TxStatus, error) {
	status, err := n.explorer.GetTransactionStatus(ctx, txid)
	if err != nil {
		if errors.Is(err, explorer.ErrNotFound) {
			log.Debugf("network: tx %s not found yet", txid)
			return ports.TxStatusPending, nil
		}
		return ports.TxStatusPending, mapError(err)
	}
	if status.Confirmed {
		return ports.TxStatusConfirmed, nil
	}
	return ports.TxStatusPending, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, explorer.ErrTxRejected):
		return fmt.Errorf("%w: %s", domain.ErrBroadcastRejected, err)
	case errors.Is(err, explorer.ErrUnavailable):
		return fmt.Errorf("%w: %s", domain.ErrNetworkTransient, err)
	default:
		return err
	}
}
