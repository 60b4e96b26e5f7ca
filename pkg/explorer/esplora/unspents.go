package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tdex-network/unitswap/pkg/explorer"
)

// GetUnspents returns the utxos of the given address, confirmed ones first
// sorted by block height, then the unconfirmed ones.
func (e *esplora) GetUnspents(
	ctx context.Context, addr string,
) ([]explorer.Utxo, error) {
	resp, err := e.get(ctx, fmt.Sprintf("/address/%s/utxo", addr))
	if err != nil {
		return nil, fmt.Errorf("error on retrieving utxos: %w", err)
	}

	var outs []utxo
	if err := json.Unmarshal([]byte(resp), &outs); err != nil {
		return nil, fmt.Errorf(
			"%w: error on retrieving utxos: %s", explorer.ErrUnavailable, err,
		)
	}

	unspents := make([]explorer.Utxo, 0, len(outs))
	for _, u := range outs {
		unspents = append(unspents, u.toExplorer())
	}
	sort.SliceStable(unspents, func(i, j int) bool {
		a, b := unspents[i], unspents[j]
		if a.Confirmed != b.Confirmed {
			return a.Confirmed
		}
		if a.BlockHeight != b.BlockHeight {
			return a.BlockHeight < b.BlockHeight
		}
		if a.TxID != b.TxID {
			return a.TxID < b.TxID
		}
		return a.VOut < b.VOut
	})
	return unspents, nil
}
