package esplora

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tdex-network/unitswap/pkg/explorer"
)

func (e *esplora) GetBlockHeight(ctx context.Context) (int, error) {
	resp, err := e.get(ctx, "/blocks/tip/height")
	if err != nil {
		return -1, err
	}

	blockHeight, err := strconv.Atoi(resp)
	if err != nil {
		return -1, fmt.Errorf("%w: invalid block height %q", explorer.ErrUnavailable, resp)
	}
	return blockHeight, nil
}
