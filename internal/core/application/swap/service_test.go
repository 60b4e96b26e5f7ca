package swap_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

var userSighash = uint32(txscript.SigHashAll | txscript.SigHashAnyOneCanPay)

func TestUnitToBalanceSwap(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, swap.RetryPolicy{})
	escrowOut := env.escrow.utxo(10000, domain.Fungible(1000000))
	env.fund(
		t,
		[]domain.Unspent{escrowOut},
		[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
		[]domain.Unspent{env.userUnit.utxo(10000, domain.Unique(unitID))},
	)

	resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, []int{0}, resp.ValueSignerInputIndexes)
	require.Equal(t, []int{1}, resp.UnitSignerInputIndexes)
	require.Equal(t, userSighash, resp.SighashType)
	require.Equal(t, []string{escrowOut.Key().String()}, resp.ReservedOutputs)
	require.NotEmpty(t, resp.UnsignedTransactionHex)

	pkt := decodePacket(t, resp.UnsignedTransactionBase64)
	tx := pkt.UnsignedTx
	require.Len(t, tx.TxIn, 3)
	require.Len(t, tx.TxOut, 5)

	// User value change, payout to user, unit to escrow, escrow change and
	// runestone.
	require.Equal(t, env.userValue.script, tx.TxOut[0].PkScript)
	require.Equal(t, env.userUnit.script, tx.TxOut[1].PkScript)
	require.Equal(t, int64(postage), tx.TxOut[1].Value)
	require.Equal(t, env.escrow.script, tx.TxOut[2].PkScript)
	require.Equal(t, int64(10000), tx.TxOut[2].Value)
	require.Equal(t, env.escrow.script, tx.TxOut[3].PkScript)
	require.Equal(t, int64(10000), tx.TxOut[3].Value)
	require.True(t, runestone.IsRunestone(tx.TxOut[4].PkScript))
	require.Zero(t, tx.TxOut[4].Value)

	stone, err := runestone.Decode(tx.TxOut[4].PkScript)
	require.NoError(t, err)
	require.Equal(t, []runestone.Edict{
		{ID: runeID, Amount: unitPrice, Output: 1},
		{ID: runeID, Amount: 900000, Output: 3},
	}, stone.Edicts)
	require.Equal(t, uint32(3), *stone.Pointer)

	// The unit sat, first of the unit input, lands on the escrow output.
	unitStart := tx.TxOut[0].Value + tx.TxOut[1].Value
	require.Equal(t, int64(50000), unitStart+int64(resp.Fee))

	requireValueConservation(t, resp)

	var rawTx string
	txid := env.expectBroadcast(t, resp, &rawTx)

	signed := env.sign(t, resp, resp.SighashType)
	settled, err := env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
		ReservationID:     resp.ReservationID,
		SignedTransaction: signed,
	})
	require.NoError(t, err)
	require.Equal(t, txid, settled.FinalTxID)

	verifyTx(t, decodeTx(t, rawTx), prevouts(pkt))

	outputs, err := env.svc.ListSpendableOutputs(ctx)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assets := map[string]string{}
	for _, out := range outputs {
		assets[out.Outpoint] = out.Asset
		require.False(t, out.Locked)
	}
	require.Equal(t, domain.Unique(unitID).String(), assets[fmt.Sprintf("%s:2", txid)])
	require.Equal(t, domain.Fungible(900000).String(), assets[fmt.Sprintf("%s:3", txid)])

	require.Empty(t, env.svc.ListReservations(ctx))

	receipts, err := env.svc.ListSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, txid, receipts[0].TxID)
	require.Equal(t, resp.Fee, receipts[0].Fee)
}

func TestBalanceToUnitSwap(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, swap.RetryPolicy{})
	env.fund(
		t,
		[]domain.Unspent{env.escrow.utxo(10000, domain.Unique(unitID))},
		[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
		[]domain.Unspent{env.userUnit.utxo(1000, domain.Fungible(150000))},
	)

	req := env.buildRequest(domain.BalanceToUnit)
	req.RequestedUnitID = unitID
	req.RequestedBalanceAmount = unitPrice
	resp, err := env.svc.BuildSwap(ctx, req)
	require.NoError(t, err)
	require.Equal(t, []int{0}, resp.ValueSignerInputIndexes)
	require.Equal(t, []int{1}, resp.UnitSignerInputIndexes)

	pkt := decodePacket(t, resp.UnsignedTransactionBase64)
	tx := pkt.UnsignedTx
	// Payment to escrow, user fungible change, user value change, unit to
	// user and runestone.
	require.Len(t, tx.TxOut, 5)
	require.Equal(t, env.escrow.script, tx.TxOut[0].PkScript)
	require.Equal(t, int64(10000), tx.TxOut[0].Value)
	require.Equal(t, env.userUnit.script, tx.TxOut[1].PkScript)
	require.Equal(t, int64(1000), tx.TxOut[1].Value)
	require.Equal(t, env.userValue.script, tx.TxOut[2].PkScript)
	require.Equal(t, env.userUnit.script, tx.TxOut[3].PkScript)
	require.Equal(t, int64(10000), tx.TxOut[3].Value)
	require.True(t, runestone.IsRunestone(tx.TxOut[4].PkScript))

	stone, err := runestone.Decode(tx.TxOut[4].PkScript)
	require.NoError(t, err)
	require.Equal(t, []runestone.Edict{
		{ID: runeID, Amount: unitPrice, Output: 0},
		{ID: runeID, Amount: 50000, Output: 1},
	}, stone.Edicts)
	require.Equal(t, uint32(1), *stone.Pointer)

	requireValueConservation(t, resp)

	var rawTx string
	txid := env.expectBroadcast(t, resp, &rawTx)

	signed := env.sign(t, resp, resp.SighashType)
	settled, err := env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
		ReservedOutputs:   resp.ReservedOutputs,
		SignedTransaction: signed,
	})
	require.NoError(t, err)
	require.Equal(t, txid, settled.FinalTxID)

	verifyTx(t, decodeTx(t, rawTx), prevouts(pkt))

	outputs, err := env.svc.ListSpendableOutputs(ctx)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, fmt.Sprintf("%s:0", txid), outputs[0].Outpoint)
	require.Equal(t, domain.Fungible(unitPrice).String(), outputs[0].Asset)
}

func TestConcurrentBuildsForSameUnit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, swap.RetryPolicy{})
	env.fund(
		t,
		[]domain.Unspent{env.escrow.utxo(10000, domain.Unique("abc123"))},
		[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
		[]domain.Unspent{env.userUnit.utxo(1000, domain.Fungible(150000))},
	)

	req := env.buildRequest(domain.BalanceToUnit)
	req.RequestedUnitID = "abc123"

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		errs      []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.BuildSwap(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			successes++
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], domain.ErrNoMatchingAsset)
	require.Len(t, env.svc.ListReservations(ctx), 1)
}

func TestBroadcastRejectedReleasesReservation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, swap.RetryPolicy{})
	escrowOut := env.escrow.utxo(10000, domain.Fungible(1000000))
	env.fund(
		t,
		[]domain.Unspent{escrowOut},
		[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
		[]domain.Unspent{env.userUnit.utxo(10000, domain.Unique(unitID))},
	)

	resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)

	env.network.On("Broadcast", mock.Anything, mock.Anything).
		Return("", fmt.Errorf("%w: bad-txns-inputs-missingorspent", domain.ErrBroadcastRejected))

	_, err = env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
		ReservationID:     resp.ReservationID,
		SignedTransaction: env.sign(t, resp, resp.SighashType),
	})
	require.ErrorIs(t, err, domain.ErrBroadcastRejected)
	env.network.AssertNumberOfCalls(t, "Broadcast", 1)

	require.Empty(t, env.svc.ListReservations(ctx))
	outputs, err := env.svc.ListSpendableOutputs(ctx)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, escrowOut.Key().String(), outputs[0].Outpoint)
	require.False(t, outputs[0].Locked)

	// The same output can be reserved again.
	resp, err = env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)
	require.Equal(t, []string{escrowOut.Key().String()}, resp.ReservedOutputs)

	receipts, err := env.svc.ListSettlements(ctx)
	require.NoError(t, err)
	require.Empty(t, receipts)
}

func TestTransientBroadcastFailures(t *testing.T) {
	t.Parallel()

	transientErr := fmt.Errorf("%w: connection reset", domain.ErrNetworkTransient)

	t.Run("retried until accepted", func(t *testing.T) {
		t.Parallel()

		env := newFundedUnitToBalanceEnv(t)
		resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
		require.NoError(t, err)

		txid := draftTxID(t, resp)
		env.network.On("Broadcast", mock.Anything, mock.Anything).
			Return("", transientErr).Twice()
		env.network.On("Broadcast", mock.Anything, mock.Anything).
			Return(txid, nil).Once()
		env.network.On("GetConfirmationStatus", mock.Anything, txid).
			Return(ports.TxStatusPending, nil)

		settled, err := env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
			ReservationID:     resp.ReservationID,
			SignedTransaction: env.sign(t, resp, resp.SighashType),
		})
		require.NoError(t, err)
		require.Equal(t, txid, settled.FinalTxID)
		env.network.AssertNumberOfCalls(t, "Broadcast", 3)
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		t.Parallel()

		env := newFundedUnitToBalanceEnv(t)
		resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
		require.NoError(t, err)

		env.network.On("Broadcast", mock.Anything, mock.Anything).
			Return("", transientErr)

		_, err = env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
			ReservationID:     resp.ReservationID,
			SignedTransaction: env.sign(t, resp, resp.SighashType),
		})
		require.ErrorIs(t, err, domain.ErrNetworkTransient)
		env.network.AssertNumberOfCalls(t, "Broadcast", 3)
		require.Empty(t, env.svc.ListReservations(ctx))
	})

	t.Run("status unknown after broadcast", func(t *testing.T) {
		t.Parallel()

		env := newFundedUnitToBalanceEnv(t)
		resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
		require.NoError(t, err)

		txid := draftTxID(t, resp)
		env.network.On("Broadcast", mock.Anything, mock.Anything).Return(txid, nil)
		env.network.On("GetConfirmationStatus", mock.Anything, txid).
			Return(ports.TxStatusRejected, transientErr)

		settled, err := env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
			ReservationID:     resp.ReservationID,
			SignedTransaction: env.sign(t, resp, resp.SighashType),
		})
		require.NoError(t, err)
		require.Equal(t, txid, settled.FinalTxID)
		require.Empty(t, env.svc.ListReservations(ctx))

		receipts, err := env.svc.ListSettlements(ctx)
		require.NoError(t, err)
		require.Len(t, receipts, 1)
	})

	t.Run("rejected after broadcast", func(t *testing.T) {
		t.Parallel()

		env := newFundedUnitToBalanceEnv(t)
		resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
		require.NoError(t, err)

		txid := draftTxID(t, resp)
		env.network.On("Broadcast", mock.Anything, mock.Anything).Return(txid, nil)
		env.network.On("GetConfirmationStatus", mock.Anything, txid).
			Return(ports.TxStatusRejected, nil)

		_, err = env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
			ReservationID:     resp.ReservationID,
			SignedTransaction: env.sign(t, resp, resp.SighashType),
		})
		require.ErrorIs(t, err, domain.ErrBroadcastRejected)
		require.Empty(t, env.svc.ListReservations(ctx))
	})
}

func TestSettleSwapIgnoresSubmittedPrevouts(t *testing.T) {
	t.Parallel()

	env := newFundedUnitToBalanceEnv(t)
	resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)
	pkt := decodePacket(t, resp.UnsignedTransactionBase64)

	var rawTx string
	txid := env.expectBroadcast(t, resp, &rawTx)

	// The escrow input of the submitted packet claims a different amount,
	// the escrow must sign over the reserved one.
	signed := decodePacket(t, env.sign(t, resp, resp.SighashType))
	escrowIndex := len(signed.Inputs) - 1
	signed.Inputs[escrowIndex].WitnessUtxo = wire.NewTxOut(
		1, signed.Inputs[escrowIndex].WitnessUtxo.PkScript,
	)
	tampered, err := signed.B64Encode()
	require.NoError(t, err)

	settled, err := env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
		ReservationID:     resp.ReservationID,
		SignedTransaction: tampered,
	})
	require.NoError(t, err)
	require.Equal(t, txid, settled.FinalTxID)

	verifyTx(t, decodeTx(t, rawTx), prevouts(pkt))
}

func TestSettleSwapSignatureErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		signedTx    func(t *testing.T, env *testEnv, resp, other *swap.BuildSwapResponse) string
		expectedErr error
	}{
		{
			name: "missing signatures",
			signedTx: func(_ *testing.T, _ *testEnv, resp, _ *swap.BuildSwapResponse) string {
				return resp.UnsignedTransactionBase64
			},
			expectedErr: domain.ErrSignatureMissing,
		},
		{
			name: "empty transaction",
			signedTx: func(*testing.T, *testEnv, *swap.BuildSwapResponse, *swap.BuildSwapResponse) string {
				return ""
			},
			expectedErr: domain.ErrSignatureMissing,
		},
		{
			name: "unexpected sighash type",
			signedTx: func(t *testing.T, env *testEnv, resp, _ *swap.BuildSwapResponse) string {
				return env.sign(t, resp, uint32(txscript.SigHashAll))
			},
			expectedErr: domain.ErrSignatureInvalidScope,
		},
		{
			name: "signed tx of another reservation",
			signedTx: func(t *testing.T, env *testEnv, _, other *swap.BuildSwapResponse) string {
				return env.sign(t, other, other.SighashType)
			},
			expectedErr: domain.ErrSignatureInvalidScope,
		},
		{
			name: "malformed transaction",
			signedTx: func(*testing.T, *testEnv, *swap.BuildSwapResponse, *swap.BuildSwapResponse) string {
				return "not a transaction"
			},
			expectedErr: domain.ErrSignatureInvalidScope,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, swap.RetryPolicy{})
			env.fund(
				t,
				[]domain.Unspent{
					env.escrow.utxo(10000, domain.Fungible(1000000)),
					env.escrow.utxo(10000, domain.Fungible(1000000)),
				},
				[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
				[]domain.Unspent{env.userUnit.utxo(10000, domain.Unique(unitID))},
			)

			resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
			require.NoError(t, err)
			other, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
			require.NoError(t, err)
			require.NotEqual(t, resp.ReservedOutputs, other.ReservedOutputs)

			_, err = env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
				ReservationID:     resp.ReservationID,
				SignedTransaction: tt.signedTx(t, env, resp, other),
			})
			require.ErrorIs(t, err, tt.expectedErr)

			env.network.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
			reservations := env.svc.ListReservations(ctx)
			require.Len(t, reservations, 1)
			require.Equal(t, other.ReservationID, reservations[0].ID)
		})
	}
}

func TestSettleSwapTwice(t *testing.T) {
	t.Parallel()

	env := newFundedUnitToBalanceEnv(t)
	resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)
	env.expectBroadcast(t, resp, nil)

	req := swap.SettleSwapRequest{
		ReservationID:     resp.ReservationID,
		SignedTransaction: env.sign(t, resp, resp.SighashType),
	}
	_, err = env.svc.SettleSwap(ctx, req)
	require.NoError(t, err)

	_, err = env.svc.SettleSwap(ctx, req)
	require.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestSettleSwapReservationLookup(t *testing.T) {
	t.Parallel()

	env := newFundedUnitToBalanceEnv(t)
	resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)

	tests := []swap.SettleSwapRequest{
		{SignedTransaction: "psbt"},
		{ReservationID: "not-an-id", SignedTransaction: "psbt"},
		{ReservedOutputs: []string{"invalid"}, SignedTransaction: "psbt"},
		{
			ReservationID:     resp.ReservationID,
			ReservedOutputs:   []string{fmt.Sprintf("%s:0", randomHex(32))},
			SignedTransaction: "psbt",
		},
	}
	for _, req := range tests {
		_, err := env.svc.SettleSwap(ctx, req)
		require.ErrorIs(t, err, domain.ErrReservationNotFound)
	}
	// Lookup failures don't touch the reservation.
	require.Len(t, env.svc.ListReservations(ctx), 1)
}

func TestSettleRawSignedTransaction(t *testing.T) {
	t.Parallel()

	env := newFundedUnitToBalanceEnv(t)
	resp, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)
	txid := env.expectBroadcast(t, resp, nil)

	signed := decodePacket(t, env.sign(t, resp, resp.SighashType))
	rawTx := userSignedRawTx(t, signed, append(
		resp.ValueSignerInputIndexes, resp.UnitSignerInputIndexes...,
	))

	settled, err := env.svc.SettleSwap(ctx, swap.SettleSwapRequest{
		ReservationID:     resp.ReservationID,
		SignedTransaction: rawTx,
	})
	require.NoError(t, err)
	require.Equal(t, txid, settled.FinalTxID)
}

func TestBuildSwapErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		escrowOuts  func(env *testEnv) []domain.Unspent
		valueOuts   func(env *testEnv) []domain.Unspent
		unitOuts    func(env *testEnv) []domain.Unspent
		request     func(env *testEnv) swap.BuildSwapRequest
		expectedErr error
	}{
		{
			name: "user holds no unit",
			unitOuts: func(env *testEnv) []domain.Unspent {
				return []domain.Unspent{env.userUnit.utxo(10000, domain.Fungible(10))}
			},
			expectedErr: domain.ErrNoMatchingAsset,
		},
		{
			name: "user value can't fund fees",
			valueOuts: func(env *testEnv) []domain.Unspent {
				return []domain.Unspent{env.userValue.utxo(600, domain.NoAsset())}
			},
			expectedErr: domain.ErrInsufficientFunds,
		},
		{
			name: "escrow fungible amount below price",
			escrowOuts: func(env *testEnv) []domain.Unspent {
				return []domain.Unspent{
					env.escrow.utxo(546, domain.Fungible(30000)),
					env.escrow.utxo(546, domain.Fungible(30000)),
				}
			},
			expectedErr: domain.ErrInsufficientFunds,
		},
		{
			name: "escrow holds no fungible",
			escrowOuts: func(env *testEnv) []domain.Unspent {
				return []domain.Unspent{env.escrow.utxo(546, domain.Foreign())}
			},
			expectedErr: domain.ErrNoMatchingAsset,
		},
		{
			name: "unknown direction",
			request: func(env *testEnv) swap.BuildSwapRequest {
				req := env.buildRequest(domain.UnitToBalance)
				req.Direction = "sideways"
				return req
			},
			expectedErr: domain.ErrInvalidIntent,
		},
		{
			name: "requested amount differs from price",
			request: func(env *testEnv) swap.BuildSwapRequest {
				req := env.buildRequest(domain.UnitToBalance)
				req.RequestedBalanceAmount = unitPrice + 1
				return req
			},
			expectedErr: domain.ErrInvalidIntent,
		},
		{
			name: "invalid pubkey",
			request: func(env *testEnv) swap.BuildSwapRequest {
				req := env.buildRequest(domain.UnitToBalance)
				req.UserUnitPubkey = "00"
				return req
			},
			expectedErr: domain.ErrInvalidIntent,
		},
		{
			name: "pubkey not matching unit address",
			request: func(env *testEnv) swap.BuildSwapRequest {
				req := env.buildRequest(domain.UnitToBalance)
				req.UserUnitPubkey = env.userValue.pubkey()
				return req
			},
			expectedErr: domain.ErrInvalidIntent,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, swap.RetryPolicy{})
			escrowOuts := []domain.Unspent{env.escrow.utxo(10000, domain.Fungible(1000000))}
			valueOuts := []domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())}
			unitOuts := []domain.Unspent{env.userUnit.utxo(10000, domain.Unique(unitID))}
			if tt.escrowOuts != nil {
				escrowOuts = tt.escrowOuts(env)
			}
			if tt.valueOuts != nil {
				valueOuts = tt.valueOuts(env)
			}
			if tt.unitOuts != nil {
				unitOuts = tt.unitOuts(env)
			}
			env.fund(t, escrowOuts, valueOuts, unitOuts)

			req := env.buildRequest(domain.UnitToBalance)
			if tt.request != nil {
				req = tt.request(env)
			}

			resp, err := env.svc.BuildSwap(ctx, req)
			require.ErrorIs(t, err, tt.expectedErr)
			require.Nil(t, resp)
			require.Empty(t, env.svc.ListReservations(ctx))
		})
	}
}

func TestReconcileDropsReservationOfSpentOutputs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, swap.RetryPolicy{})
	escrowOut := env.escrow.utxo(10000, domain.Fungible(1000000))
	deposit := env.escrow.utxo(546, domain.Unique("def456i0"))

	env.network.On("GetSpendableOutputs", mock.Anything, env.escrow.address).
		Return([]domain.Unspent{escrowOut}, nil).Once()
	env.fundUser(
		[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
		[]domain.Unspent{env.userUnit.utxo(10000, domain.Unique(unitID))},
	)
	require.NoError(t, env.svc.Reconcile(ctx))

	_, err := env.svc.BuildSwap(ctx, env.buildRequest(domain.UnitToBalance))
	require.NoError(t, err)
	require.Len(t, env.svc.ListReservations(ctx), 1)

	// The escrow output is spent elsewhere and a new unit is deposited.
	env.network.On("GetSpendableOutputs", mock.Anything, env.escrow.address).
		Return([]domain.Unspent{deposit}, nil)
	require.NoError(t, env.svc.Reconcile(ctx))

	require.Empty(t, env.svc.ListReservations(ctx))
	outputs, err := env.svc.ListSpendableOutputs(ctx)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, deposit.Key().String(), outputs[0].Outpoint)
}

func newFundedUnitToBalanceEnv(t *testing.T) *testEnv {
	env := newTestEnv(t, swap.RetryPolicy{})
	env.fund(
		t,
		[]domain.Unspent{env.escrow.utxo(10000, domain.Fungible(1000000))},
		[]domain.Unspent{env.userValue.utxo(50000, domain.NoAsset())},
		[]domain.Unspent{env.userUnit.utxo(10000, domain.Unique(unitID))},
	)
	return env
}

func requireValueConservation(t *testing.T, resp *swap.BuildSwapResponse) {
	pkt := decodePacket(t, resp.UnsignedTransactionBase64)

	var in, out int64
	for _, pIn := range pkt.Inputs {
		require.NotNil(t, pIn.WitnessUtxo)
		in += pIn.WitnessUtxo.Value
	}
	for _, txOut := range pkt.UnsignedTx.TxOut {
		out += txOut.Value
	}
	require.Equal(t, in, out+int64(resp.Fee))
	require.Greater(t, resp.Fee, uint64(0))
}
