package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tdex-network/unitswap/pkg/explorer"
)

func (e *esplora) GetTransactionHex(ctx context.Context, hash string) (string, error) {
	return e.get(ctx, fmt.Sprintf("/tx/%s/hex", hash))
}

func (e *esplora) GetTransactionStatus(
	ctx context.Context, hash string,
) (*explorer.TransactionStatus, error) {
	resp, err := e.get(ctx, fmt.Sprintf("/tx/%s/status", hash))
	if err != nil {
		return nil, err
	}

	var txStatus status
	if err := json.Unmarshal([]byte(resp), &txStatus); err != nil {
		return nil, fmt.Errorf("%w: invalid tx status: %s", explorer.ErrUnavailable, err)
	}
	return txStatus.toExplorer(), nil
}

// BroadcastTransaction posts the tx to the explorer. A 400 response means
// the node refused the tx, the body carries the reason.
func (e *esplora) BroadcastTransaction(ctx context.Context, txHex string) (string, error) {
	resp, err := e.request(ctx, http.MethodPost, "/tx", txHex)
	if err != nil {
		return "", err
	}

	switch resp.status {
	case http.StatusOK:
		return resp.body, nil
	case http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", explorer.ErrTxRejected, resp.body)
	default:
		return "", fmt.Errorf(
			"%w: status %d: %s", explorer.ErrUnavailable, resp.status, resp.body,
		)
	}
}
