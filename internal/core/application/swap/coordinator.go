package swap

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/application/index"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/pkg/stats"
)

// RetryPolicy bounds the broadcast attempts made on transient failures. The
// delay between attempts doubles every time starting from Backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("broadcast max attempts must be positive")
	}
	if p.Backoff < 0 {
		return fmt.Errorf("broadcast retry backoff must not be negative")
	}
	return nil
}

// Coordinator settles signed drafts: it verifies the user signatures,
// authorizes the escrow inputs with the stored delegation, finalizes and
// broadcasts the transaction and eventually commits the spendable-set index.
type Coordinator struct {
	escrow      ports.EscrowAuthorizer
	network     ports.SettlementNetwork
	index       *index.Service
	settlements domain.SettlementRepository
	publisher   ports.EventPublisher
	retry       RetryPolicy
}

func NewCoordinator(
	escrow ports.EscrowAuthorizer,
	network ports.SettlementNetwork,
	indexSvc *index.Service,
	settlements domain.SettlementRepository,
	publisher ports.EventPublisher,
	retry RetryPolicy,
) (*Coordinator, error) {
	if escrow == nil {
		return nil, fmt.Errorf("missing escrow authorizer")
	}
	if network == nil {
		return nil, fmt.Errorf("missing settlement network")
	}
	if indexSvc == nil {
		return nil, fmt.Errorf("missing index service")
	}
	if settlements == nil {
		return nil, fmt.Errorf("missing settlement repository")
	}
	if err := retry.validate(); err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}

	return &Coordinator{
		escrow, network, indexSvc, settlements, publisher, retry,
	}, nil
}

// Settle brings the reservation with the given id through the settlement
// state machine. The signed transaction is either a PSBT, base64 or hex
// encoded, or the raw signed transaction in hex format. Any failure before
// the transaction is accepted by the network aborts the settlement and
// releases the reservation.
func (c *Coordinator) Settle(
	ctx context.Context, reservationID uuid.UUID, signedTx string,
) (*domain.SettlementReceipt, error) {
	reservation, err := c.index.BeginSettlement(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	settlement := domain.NewSettlement(reservationID)
	direction := reservation.Intent.Direction.String()

	abort := func(err error) (*domain.SettlementReceipt, error) {
		settlement.Fail(err)
		if err := c.index.AbortSettlement(ctx, reservationID); err != nil {
			log.WithError(err).Warnf(
				"coordinator: failed to release reservation %s", reservationID,
			)
		}
		stats.Settlements.WithLabelValues(direction, settlement.FailedWith.String()).Inc()
		c.publisher.Publish(ports.TopicSwapAborted, map[string]string{
			"reservationId": reservationID.String(),
			"status":        settlement.FailedWith.String(),
			"reason":        settlement.FailureReason,
		})
		log.WithError(err).Infof(
			"coordinator: settlement of %s aborted with status %s",
			reservationID, settlement.FailedWith,
		)
		return nil, err
	}

	signed, err := decodeSignedTransaction(signedTx, reservation.Draft)
	if err != nil {
		return abort(err)
	}
	if err := verifySignatures(reservation, signed); err != nil {
		return abort(err)
	}
	if err := settlement.Sign(); err != nil {
		return abort(err)
	}

	tx, err := c.finalize(reservation, signed)
	if err != nil {
		return abort(err)
	}
	if err := settlement.Finalize(); err != nil {
		return abort(err)
	}

	rawTx, err := txHex(tx)
	if err != nil {
		return abort(fmt.Errorf("%w: %s", domain.ErrFinalizationFailed, err))
	}

	txid, err := c.broadcast(ctx, rawTx)
	if err != nil {
		return abort(err)
	}

	// The tx was accepted by the broadcast call already, only an explicit
	// rejection reverts the settlement.
	status, err := c.network.GetConfirmationStatus(ctx, txid)
	if err != nil {
		log.WithError(err).Warnf(
			"coordinator: failed to get status of tx %s, assuming pending", txid,
		)
		status = ports.TxStatusPending
	}
	if status == ports.TxStatusRejected {
		return abort(fmt.Errorf(
			"%w: tx %s dropped by the network", domain.ErrBroadcastRejected, txid,
		))
	}
	if err := settlement.Broadcast(txid); err != nil {
		return abort(err)
	}

	receipt := makeReceipt(reservation, tx, txid)
	if err := c.index.Commit(ctx, receipt); err != nil {
		// The swap is on its way to be mined, the index will be fixed by the
		// next reconciliation.
		log.WithError(err).Warnf(
			"coordinator: failed to commit settlement %s to index", txid,
		)
	}
	//nolint
	settlement.Settle()

	if err := c.settlements.AddSettlement(ctx, receipt); err != nil {
		log.WithError(err).Warnf("coordinator: failed to store receipt of %s", txid)
	}

	stats.Settlements.WithLabelValues(direction, settlement.Status.String()).Inc()
	c.publisher.Publish(ports.TopicSwapSettled, map[string]interface{}{
		"reservationId": reservationID.String(),
		"txid":          txid,
		"direction":     direction,
		"fee":           receipt.Fee,
	})
	log.Infof("coordinator: swap %s settled with tx %s", reservationID, txid)

	return &receipt, nil
}

// finalize applies the escrow authorization, finalizes every input and
// extracts the network transaction.
func (c *Coordinator) finalize(
	reservation *domain.Reservation, pkt *psbt.Packet,
) (*wire.MsgTx, error) {
	draft := reservation.Draft
	escrowIndexes := make([]int, 0)
	for i, in := range draft.Inputs {
		// The escrow signs over the prevouts recorded at build time, never
		// over the ones carried by the submitted packet.
		pkt.Inputs[i].WitnessUtxo = wire.NewTxOut(int64(in.Value), in.Script)
		if in.Origin() == domain.OriginEscrow {
			escrowIndexes = append(escrowIndexes, i)
		}
	}

	if err := c.escrow.Authorize(pkt, escrowIndexes); err != nil {
		return nil, fmt.Errorf(
			"%w: escrow authorization: %s", domain.ErrFinalizationFailed, err,
		)
	}

	if err := psbt.MaybeFinalizeAll(pkt); err != nil {
		log.Debugf("coordinator: failed to finalize packet %s", spew.Sdump(pkt))
		return nil, fmt.Errorf("%w: %s", domain.ErrFinalizationFailed, err)
	}
	tx, err := psbt.Extract(pkt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrFinalizationFailed, err)
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("coordinator: finalized tx %s", spew.Sdump(tx))
	}
	return tx, nil
}

// broadcast submits the tx retrying on transient failures only.
func (c *Coordinator) broadcast(ctx context.Context, rawTx string) (string, error) {
	backoff := c.retry.Backoff

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		txid, err := c.network.Broadcast(ctx, rawTx)
		if err == nil {
			stats.BroadcastAttempts.WithLabelValues("accepted").Inc()
			return txid, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrNetworkTransient) {
			stats.BroadcastAttempts.WithLabelValues("rejected").Inc()
			if !errors.Is(err, domain.ErrBroadcastRejected) {
				return "", fmt.Errorf("%w: %s", domain.ErrBroadcastRejected, err)
			}
			return "", err
		}
		stats.BroadcastAttempts.WithLabelValues("transient").Inc()

		if attempt == c.retry.MaxAttempts {
			break
		}
		log.WithError(err).Debugf(
			"coordinator: broadcast attempt %d failed, retrying in %s",
			attempt, backoff,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s", domain.ErrNetworkTransient, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}

// verifySignatures checks that the signed packet spends the reserved draft
// and that every input of the signing plan carries a valid signature with
// the expected sighash type.
func verifySignatures(reservation *domain.Reservation, pkt *psbt.Packet) error {
	draft, plan := reservation.Draft, reservation.Plan
	if pkt == nil || pkt.UnsignedTx == nil {
		return fmt.Errorf("%w: missing signed transaction", domain.ErrSignatureMissing)
	}
	if txid := pkt.UnsignedTx.TxHash().String(); txid != draft.TxID {
		return fmt.Errorf(
			"%w: signed tx %s does not match draft %s",
			domain.ErrSignatureInvalidScope, txid, draft.TxID,
		)
	}
	if len(pkt.Inputs) != len(draft.Inputs) {
		return fmt.Errorf("%w: unexpected number of inputs", domain.ErrSignatureInvalidScope)
	}

	tx := pkt.UnsignedTx
	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range tx.TxIn {
		in := draft.Inputs[i]
		prevOuts.AddPrevOut(txIn.PreviousOutPoint, wire.NewTxOut(int64(in.Value), in.Script))
	}
	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)

	for _, i := range plan.Indexes() {
		entry := plan.Entries[i]
		in := draft.Inputs[i]
		err := verifyInput(
			pkt, i, in, txscript.SigHashType(entry.SighashMode), sigHashes, prevOuts,
		)
		if err != nil {
			return fmt.Errorf("input %d (%s): %w", i, entry.Signer, err)
		}
	}
	return nil
}

func verifyInput(
	pkt *psbt.Packet, idx int, in domain.DraftInput,
	expectedHashType txscript.SigHashType,
	sigHashes *txscript.TxSigHashes, prevOuts txscript.PrevOutputFetcher,
) error {
	pIn := pkt.Inputs[idx]
	tx := pkt.UnsignedTx

	witness, err := parseWitness(pIn.FinalScriptWitness)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
	}

	switch scriptKind(in.Script) {
	case scriptP2TR:
		sig := pIn.TaprootKeySpendSig
		if len(sig) <= 0 && len(witness) > 0 {
			sig = witness[0]
		}
		if len(sig) <= 0 {
			return domain.ErrSignatureMissing
		}
		if len(sig) != schnorr.SignatureSize+1 ||
			txscript.SigHashType(sig[len(sig)-1]) != expectedHashType {
			return fmt.Errorf("%w: unexpected sighash type", domain.ErrSignatureInvalidScope)
		}
		signature, err := schnorr.ParseSignature(sig[:schnorr.SignatureSize])
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
		}
		outputKey, err := schnorr.ParsePubKey(in.Script[2:])
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
		}
		hash, err := txscript.CalcTaprootSignatureHash(
			sigHashes, expectedHashType, tx, idx, prevOuts,
		)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
		}
		if !signature.Verify(hash, outputKey) {
			return fmt.Errorf("%w: invalid signature", domain.ErrSignatureInvalidScope)
		}
		return nil

	case scriptP2WPKH, scriptNestedP2WPKH:
		var sig, pubkey []byte
		if len(pIn.PartialSigs) > 0 {
			sig, pubkey = pIn.PartialSigs[0].Signature, pIn.PartialSigs[0].PubKey
		} else if len(witness) == 2 {
			sig, pubkey = witness[0], witness[1]
		}
		if len(sig) <= 0 {
			return domain.ErrSignatureMissing
		}
		if txscript.SigHashType(sig[len(sig)-1]) != expectedHashType {
			return fmt.Errorf("%w: unexpected sighash type", domain.ErrSignatureInvalidScope)
		}

		witnessProgram := in.Script
		if scriptKind(in.Script) == scriptNestedP2WPKH {
			witnessProgram = pIn.RedeemScript
		}
		expected, err := p2wpkhScript(pubkey)
		if err != nil || !bytes.Equal(expected, witnessProgram) {
			return fmt.Errorf(
				"%w: pubkey does not match spent script", domain.ErrSignatureInvalidScope,
			)
		}

		key, err := btcec.ParsePubKey(pubkey)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
		}
		signature, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
		}
		hash, err := txscript.CalcWitnessSigHash(
			witnessProgram, sigHashes, expectedHashType, tx, idx, int64(in.Value),
		)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrSignatureInvalidScope, err)
		}
		if !signature.Verify(hash, key) {
			return fmt.Errorf("%w: invalid signature", domain.ErrSignatureInvalidScope)
		}
		return nil

	default:
		return fmt.Errorf("%w: unsupported script", domain.ErrSignatureInvalidScope)
	}
}

func makeReceipt(
	reservation *domain.Reservation, tx *wire.MsgTx, txid string,
) domain.SettlementReceipt {
	draft := reservation.Draft
	receipt := domain.SettlementReceipt{
		ReservationID:   reservation.ID,
		Direction:       reservation.Intent.Direction,
		FinalTxID:       txid,
		Fee:             draft.Fee,
		ConsumedOutputs: reservation.Unspents,
		ReceivedOutputs: make([]domain.Unspent, 0),
		SettledAt:       time.Now(),
	}
	for vout, out := range draft.Outputs {
		switch out.Destination {
		case domain.DestinationUser, domain.DestinationData:
			continue
		}
		u := domain.Unspent{
			TxID:    txid,
			VOut:    uint32(vout),
			Value:   uint64(tx.TxOut[vout].Value),
			Script:  out.Script,
			Address: out.Address,
			Asset:   out.Asset,
		}
		if out.Destination == domain.DestinationEscrowChange {
			change := u
			receipt.ProducedChangeOutput = &change
			continue
		}
		receipt.ReceivedOutputs = append(receipt.ReceivedOutputs, u)
	}
	return receipt
}

const maxWitnessItems = 500

var psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

func decodeSignedTransaction(
	signedTx string, draft *domain.Draft,
) (*psbt.Packet, error) {
	signedTx = strings.TrimSpace(signedTx)
	if signedTx == "" {
		return nil, fmt.Errorf("%w: missing signed transaction", domain.ErrSignatureMissing)
	}

	buf, err := hex.DecodeString(signedTx)
	if err != nil {
		pkt, err := psbt.NewFromRawBytes(strings.NewReader(signedTx), true)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid signed transaction: %s", domain.ErrSignatureInvalidScope, err,
			)
		}
		return pkt, nil
	}

	if bytes.HasPrefix(buf, psbtMagic) {
		pkt, err := psbt.NewFromRawBytes(bytes.NewReader(buf), false)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid signed transaction: %s", domain.ErrSignatureInvalidScope, err,
			)
		}
		return pkt, nil
	}

	// Raw signed tx: signatures are moved into the draft packet as final
	// scripts.
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf(
			"%w: invalid signed transaction: %s", domain.ErrSignatureInvalidScope, err,
		)
	}
	pkt, err := psbt.NewFromRawBytes(strings.NewReader(draft.Packet), true)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid draft: %s", domain.ErrFinalizationFailed, err)
	}
	unsigned := tx.Copy()
	for _, in := range unsigned.TxIn {
		in.SignatureScript = nil
		in.Witness = nil
	}
	if unsigned.TxHash() != pkt.UnsignedTx.TxHash() {
		return nil, fmt.Errorf(
			"%w: signed tx %s does not match draft %s",
			domain.ErrSignatureInvalidScope, unsigned.TxHash(), draft.TxID,
		)
	}
	for i, txIn := range tx.TxIn {
		if len(txIn.Witness) > 0 {
			witness, err := serializeWitness(txIn.Witness)
			if err != nil {
				return nil, err
			}
			pkt.Inputs[i].FinalScriptWitness = witness
		}
		if len(txIn.SignatureScript) > 0 {
			pkt.Inputs[i].FinalScriptSig = txIn.SignatureScript
		}
	}
	return pkt, nil
}

// parseWitness deserializes a BIP-174 final script witness.
func parseWitness(serialized []byte) (wire.TxWitness, error) {
	if len(serialized) <= 0 {
		return nil, nil
	}
	r := bytes.NewReader(serialized)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count > maxWitnessItems {
		return nil, fmt.Errorf("invalid witness items count %d", count)
	}
	witness := make(wire.TxWitness, 0, count)
	for i := uint64(0); i < count; i++ {
		item, err := wire.ReadVarBytes(r, 0, txscript.MaxScriptSize, "witness item")
		if err != nil {
			return nil, err
		}
		witness = append(witness, item)
	}
	return witness, nil
}

// serializeWitness is the inverse of parseWitness.
func serializeWitness(witness wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(witness))); err != nil {
		return nil, err
	}
	for _, item := range witness {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func txHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}
