package esplora

import "github.com/tdex-network/unitswap/pkg/explorer"

type status struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int    `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int    `json:"block_time"`
}

func (s status) toExplorer() *explorer.TransactionStatus {
	st := &explorer.TransactionStatus{
		Confirmed:   s.Confirmed,
		BlockHash:   s.BlockHash,
		BlockHeight: s.BlockHeight,
		BlockTime:   s.BlockTime,
	}
	if !s.Confirmed {
		st.BlockHeight = -1
	}
	return st
}

type utxo struct {
	TxID   string `json:"txid"`
	VOut   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status status `json:"status"`
}

func (u utxo) toExplorer() explorer.Utxo {
	height := -1
	if u.Status.Confirmed {
		height = u.Status.BlockHeight
	}
	return explorer.Utxo{
		TxID:        u.TxID,
		VOut:        u.VOut,
		Value:       u.Value,
		Confirmed:   u.Status.Confirmed,
		BlockHeight: height,
	}
}
