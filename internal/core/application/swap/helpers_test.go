package swap_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/core/application/index"
	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/internal/infrastructure/escrow"
	"github.com/tdex-network/unitswap/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

const (
	unitPrice = uint64(100000)
	postage   = uint64(546)
	unitID    = "abc123i0"
)

var (
	ctx    = context.Background()
	params = &chaincfg.RegressionNetParams
	runeID = runestone.RuneID{Block: 840000, Tx: 3}
)

// **** Settlement network ****

type mockNetwork struct {
	mock.Mock
}

func (m *mockNetwork) Broadcast(ctx context.Context, txHex string) (string, error) {
	args := m.Called(ctx, txHex)
	return args.String(0), args.Error(1)
}

func (m *mockNetwork) GetSpendableOutputs(
	ctx context.Context, address string,
) ([]domain.Unspent, error) {
	args := m.Called(ctx, address)

	var res []domain.Unspent
	if a := args.Get(0); a != nil {
		res = a.([]domain.Unspent)
	}
	return res, args.Error(1)
}

func (m *mockNetwork) GetConfirmationStatus(
	ctx context.Context, txid string,
) (ports.TxStatus, error) {
	args := m.Called(ctx, txid)
	return args.Get(0).(ports.TxStatus), args.Error(1)
}

// **** Test env ****

type wallet struct {
	key     *btcec.PrivateKey
	address string
	script  []byte
}

func (w wallet) pubkey() string {
	return hex.EncodeToString(w.key.PubKey().SerializeCompressed())
}

func (w wallet) utxo(value uint64, asset domain.AssetTag) domain.Unspent {
	return domain.Unspent{
		TxID:      randomHex(32),
		VOut:      0,
		Value:     value,
		Script:    w.script,
		Address:   w.address,
		Asset:     asset,
		Confirmed: true,
	}
}

type testEnv struct {
	svc         *swap.Service
	network     *mockNetwork
	settlements domain.SettlementRepository
	signer      *escrow.WalletSigner

	escrow    wallet
	userValue wallet
	userUnit  wallet
}

func newTestEnv(t *testing.T, retry swap.RetryPolicy) *testEnv {
	escrowKey, escrowWif := newKey(t)
	delegation, err := escrow.NewKeyDelegation(escrowWif, escrow.AddressTypeP2TR, params)
	require.NoError(t, err)

	valueKey, _ := newKey(t)
	unitKey, _ := newKey(t)
	userValue := newWallet(t, valueKey, false)
	userUnit := newWallet(t, unitKey, true)

	network := &mockNetwork{}
	settlements := inmemory.NewSettlementRepositoryImpl()
	indexSvc, err := index.NewService(inmemory.NewUnspentRepositoryImpl(), nil, index.Config{
		ReservationExpiry: time.Minute,
		SweepInterval:     time.Minute,
		AllowUnconfirmed:  true,
	})
	require.NoError(t, err)

	if retry.MaxAttempts == 0 {
		retry = swap.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
	}
	svc, err := swap.NewService(indexSvc, network, delegation, settlements, nil, swap.Config{
		Params:            params,
		UnitPrice:         unitPrice,
		Postage:           postage,
		FungibleAssetID:   runeID,
		FeeRate:           decimal.NewFromInt(2),
		Retry:             retry,
		ReconcileInterval: time.Hour,
	})
	require.NoError(t, err)

	return &testEnv{
		svc:         svc,
		network:     network,
		settlements: settlements,
		signer:      escrow.NewWalletSignerFromKeys(valueKey, unitKey),
		escrow: wallet{
			key:     escrowKey,
			address: delegation.Address(),
			script:  addressScript(t, delegation.Address()),
		},
		userValue: userValue,
		userUnit:  userUnit,
	}
}

// fund makes the network return the given unspents for the escrow and the
// user addresses and loads the escrow ones into the index.
func (e *testEnv) fund(
	t *testing.T, escrowOuts, valueOuts, unitOuts []domain.Unspent,
) {
	e.network.On("GetSpendableOutputs", mock.Anything, e.escrow.address).
		Return(escrowOuts, nil)
	e.fundUser(valueOuts, unitOuts)

	require.NoError(t, e.svc.Reconcile(ctx))
}

func (e *testEnv) fundUser(valueOuts, unitOuts []domain.Unspent) {
	e.network.On("GetSpendableOutputs", mock.Anything, e.userValue.address).
		Return(valueOuts, nil)
	e.network.On("GetSpendableOutputs", mock.Anything, e.userUnit.address).
		Return(unitOuts, nil)
}

func (e *testEnv) buildRequest(direction domain.Direction) swap.BuildSwapRequest {
	return swap.BuildSwapRequest{
		Direction:        direction.String(),
		UserValueAddress: e.userValue.address,
		UserValuePubkey:  e.userValue.pubkey(),
		UserUnitAddress:  e.userUnit.address,
		UserUnitPubkey:   e.userUnit.pubkey(),
	}
}

// sign signs the user inputs of the draft as the user wallet would.
func (e *testEnv) sign(
	t *testing.T, resp *swap.BuildSwapResponse, sighash uint32,
) string {
	indexes := append(
		append([]int{}, resp.ValueSignerInputIndexes...),
		resp.UnitSignerInputIndexes...,
	)
	signed, err := e.signer.Sign(ctx, resp.UnsignedTransactionBase64, indexes, sighash)
	require.NoError(t, err)
	return signed
}

// expectBroadcast makes the network accept the tx of the given draft and
// stores the broadcasted raw tx in rawTx.
func (e *testEnv) expectBroadcast(
	t *testing.T, resp *swap.BuildSwapResponse, rawTx *string,
) string {
	txid := draftTxID(t, resp)
	e.network.On("Broadcast", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if rawTx != nil {
				*rawTx = args.String(1)
			}
		}).
		Return(txid, nil).Once()
	e.network.On("GetConfirmationStatus", mock.Anything, txid).
		Return(ports.TxStatusPending, nil)
	return txid
}

func newWallet(t *testing.T, key *btcec.PrivateKey, taproot bool) wallet {
	var (
		addr btcutil.Address
		err  error
	)
	if taproot {
		outputKey := txscript.ComputeTaprootKeyNoScript(key.PubKey())
		addr, err = btcutil.NewAddressTaproot(
			outputKey.SerializeCompressed()[1:], params,
		)
	} else {
		addr, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(key.PubKey().SerializeCompressed()), params,
		)
	}
	require.NoError(t, err)

	return wallet{
		key:     key,
		address: addr.EncodeAddress(),
		script:  addressScript(t, addr.EncodeAddress()),
	}
}

func newKey(t *testing.T) (*btcec.PrivateKey, string) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, params, true)
	require.NoError(t, err)
	return key, wif.String()
}

func addressScript(t *testing.T, address string) []byte {
	addr, err := btcutil.DecodeAddress(address, params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}

func decodePacket(t *testing.T, b64 string) *psbt.Packet {
	pkt, err := psbt.NewFromRawBytes(strings.NewReader(b64), true)
	require.NoError(t, err)
	return pkt
}

func draftTxID(t *testing.T, resp *swap.BuildSwapResponse) string {
	return decodePacket(t, resp.UnsignedTransactionBase64).UnsignedTx.TxHash().String()
}

func decodeTx(t *testing.T, txHex string) *wire.MsgTx {
	buf, err := hex.DecodeString(txHex)
	require.NoError(t, err)
	tx := wire.NewMsgTx(2)
	require.NoError(t, tx.Deserialize(bytes.NewReader(buf)))
	return tx
}

// verifyTx runs the script engine over every input of the final tx.
func verifyTx(t *testing.T, tx *wire.MsgTx, prevouts []*wire.TxOut) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, prevouts[i])
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i := range tx.TxIn {
		vm, err := txscript.NewEngine(
			prevouts[i].PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevouts[i].Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func prevouts(pkt *psbt.Packet) []*wire.TxOut {
	outs := make([]*wire.TxOut, 0, len(pkt.Inputs))
	for _, in := range pkt.Inputs {
		outs = append(outs, in.WitnessUtxo)
	}
	return outs
}

// userSignedRawTx finalizes the user inputs of the signed packet and returns
// the tx in hex format as a wallet would do, escrow inputs left unsigned.
func userSignedRawTx(t *testing.T, pkt *psbt.Packet, indexes []int) string {
	tx := pkt.UnsignedTx.Copy()
	for _, i := range indexes {
		require.NoError(t, psbt.Finalize(pkt, i))

		r := bytes.NewReader(pkt.Inputs[i].FinalScriptWitness)
		count, err := wire.ReadVarInt(r, 0)
		require.NoError(t, err)
		witness := make(wire.TxWitness, 0, count)
		for j := uint64(0); j < count; j++ {
			item, err := wire.ReadVarBytes(r, 0, txscript.MaxScriptSize, "witness")
			require.NoError(t, err)
			witness = append(witness, item)
		}
		tx.TxIn[i].Witness = witness
		tx.TxIn[i].SignatureScript = pkt.Inputs[i].FinalScriptSig
	}

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func randomHex(len int) string {
	b := make([]byte, len)
	// nolint
	rand.Read(b)
	return hex.EncodeToString(b)
}
