package swap

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/pkg/runestone"
	"github.com/tdex-network/unitswap/pkg/stats"
)

// UserSighashType is the signature scope required for user inputs: it
// commits to the signed input only and lets other inputs and outputs be
// added afterwards.
const UserSighashType = txscript.SigHashAll | txscript.SigHashAnyOneCanPay

// Builder assembles the draft transaction of a swap. Inputs are always
// ordered as user value inputs, user unit inputs, escrow inputs. The user
// funds the network fee and the postage of the outputs it receives, so
// that the escrow never pays for a swap.
//
// Sats flow from inputs to outputs in order, so outputs are laid out for the
// sat carrying the unit to land on the output receiving it. Fungible
// balances are instead moved by the runestone appended as last output.
type Builder struct {
	params        *chaincfg.Params
	fees          *FeeEstimator
	escrowAddress string
	escrowScript  []byte
	escrowPubKey  []byte
	postage       uint64
	runeID        runestone.RuneID
}

func NewBuilder(
	params *chaincfg.Params, fees *FeeEstimator,
	escrowAddress string, escrowPubKey []byte, postage uint64,
	runeID runestone.RuneID,
) (*Builder, error) {
	if params == nil {
		return nil, fmt.Errorf("missing network params")
	}
	if fees == nil {
		return nil, fmt.Errorf("missing fee estimator")
	}
	if runeID.IsZero() {
		return nil, fmt.Errorf("missing fungible asset rune id")
	}
	escrowScript, err := addressScript(escrowAddress, params)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow address: %s", err)
	}
	if scriptKind(escrowScript) != scriptP2WPKH &&
		scriptKind(escrowScript) != scriptP2TR {
		return nil, fmt.Errorf("escrow address must be either P2WPKH or P2TR")
	}
	if isDust(postage, escrowScript) {
		return nil, fmt.Errorf("postage %d is below dust limit", postage)
	}

	return &Builder{
		params:        params,
		fees:          fees,
		escrowAddress: escrowAddress,
		escrowScript:  escrowScript,
		escrowPubKey:  escrowPubKey,
		postage:       postage,
		runeID:        runeID,
	}, nil
}

// layout is the shape of a draft before the user value change is known.
// Outputs don't include the change, that always goes before the unit one,
// nor the runestone.
type layout struct {
	inputs  []domain.DraftInput
	outputs []domain.DraftOutput
	change  domain.DraftOutput
	// changeAt is the position of the change among outputs.
	changeAt int
	// unit is the position of the output receiving the unit.
	unit int
	// slack is the position of the output whose value can be moved to the
	// unit one without changing what its owner gets, -1 if none.
	slack int
	// remainder is the position of the output receiving the fungible
	// balance not allocated by edicts.
	remainder int
}

// assemble returns the outputs of the draft, with or without change,
// followed by the runestone.
func (l *layout) assemble(
	runeID runestone.RuneID, withChange bool,
) ([]domain.DraftOutput, error) {
	outputs := make([]domain.DraftOutput, 0, len(l.outputs)+2)
	outputs = append(outputs, l.outputs[:l.changeAt]...)
	if withChange {
		outputs = append(outputs, l.change)
	}
	outputs = append(outputs, l.outputs[l.changeAt:]...)

	shift := func(i int) int {
		if withChange && i >= l.changeAt {
			return i + 1
		}
		return i
	}

	edicts := make([]runestone.Edict, 0)
	for i, out := range l.outputs {
		if out.Asset.IsFungible() {
			edicts = append(edicts, runestone.Edict{
				ID:     runeID,
				Amount: out.Asset.Amount,
				Output: uint32(shift(i)),
			})
		}
	}
	pointer := uint32(shift(l.remainder))
	script, err := runestone.Runestone{Edicts: edicts, Pointer: &pointer}.Script()
	if err != nil {
		return nil, err
	}
	outputs = append(outputs, domain.DraftOutput{
		Script:      script,
		Destination: domain.DestinationData,
		Asset:       domain.NoAsset(),
	})
	return outputs, nil
}

// RequiredFunding returns the minimum amount the user value inputs of the
// selection must hold for the draft to be buildable.
func (b *Builder) RequiredFunding(sel *Selection) (uint64, error) {
	l, err := b.layout(sel)
	if err != nil {
		return 0, err
	}
	outputs, err := l.assemble(b.runeID, false)
	if err != nil {
		return 0, err
	}
	fee, _, err := b.fees.estimate(weightedInputs(l.inputs), outputScripts(outputs))
	if err != nil {
		return 0, err
	}

	valueIn := domain.TotalValue(sel.UserValueInputs)
	otherIn := totalInputValue(l.inputs) - valueIn
	needed := totalOutputValue(l.outputs) + fee
	if needed <= otherIn {
		return 0, nil
	}
	return needed - otherIn, nil
}

// Build returns the draft of the selection and its PSBT encoding.
func (b *Builder) Build(sel *Selection) (*domain.Draft, *psbt.Packet, error) {
	l, err := b.layout(sel)
	if err != nil {
		return nil, nil, err
	}

	totalIn := totalInputValue(l.inputs)
	fixedOut := totalOutputValue(l.outputs)
	ins := weightedInputs(l.inputs)

	outputs, err := l.assemble(b.runeID, true)
	if err != nil {
		return nil, nil, err
	}
	unit, slack := l.unit, l.slack
	feeWithChange, _, err := b.fees.estimate(ins, outputScripts(outputs))
	if err != nil {
		return nil, nil, err
	}

	var fee uint64
	if totalIn >= fixedOut+feeWithChange &&
		!isDust(totalIn-fixedOut-feeWithChange, l.change.Script) {
		outputs[l.changeAt].Value = totalIn - fixedOut - feeWithChange
		fee = feeWithChange
		if unit >= l.changeAt {
			unit++
		}
		if slack >= l.changeAt {
			slack++
		}
	} else {
		if outputs, err = l.assemble(b.runeID, false); err != nil {
			return nil, nil, err
		}
		feeNoChange, _, err := b.fees.estimate(ins, outputScripts(outputs))
		if err != nil {
			return nil, nil, err
		}
		if totalIn < fixedOut+feeNoChange {
			return nil, nil, fmt.Errorf(
				"%w: inputs %d, outputs %d, fee %d",
				domain.ErrFeeUnderfunded, totalIn, fixedOut, feeNoChange,
			)
		}
		// Value below dust goes to miners.
		fee = totalIn - fixedOut
	}

	draft := &domain.Draft{
		Inputs:  l.inputs,
		Outputs: outputs,
		Fee:     fee,
	}
	if err := b.placeUnit(draft, unit, slack); err != nil {
		return nil, nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, nil, err
	}

	pkt, err := b.packet(sel, draft)
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := pkt.UnsignedTx.Serialize(&buf); err != nil {
		return nil, nil, err
	}
	draft.TxID = pkt.UnsignedTx.TxHash().String()
	draft.TxHex = hex.EncodeToString(buf.Bytes())

	stats.DraftFees.Observe(float64(fee))
	return draft, pkt, nil
}

// placeUnit makes the unit sat land on the output at position unit, growing
// it with value taken from the slack output if needed, and tags the output
// with the offset of the unit within it.
func (b *Builder) placeUnit(draft *domain.Draft, unit, slack int) error {
	var position uint64
	for _, in := range draft.Inputs {
		if in.Asset.IsUnique() {
			position += in.Asset.Offset
			break
		}
		position += in.Value
	}
	var start uint64
	for _, out := range draft.Outputs[:unit] {
		start += out.Value
	}

	out := &draft.Outputs[unit]
	if position < start {
		return fmt.Errorf(
			"%w: unit at sat %d precedes output %d starting at sat %d",
			domain.ErrUnitMisplaced, position, unit, start,
		)
	}
	if end := start + out.Value; position >= end {
		missing := position - end + 1
		if slack < 0 || draft.Outputs[slack].Value < missing+b.postage {
			return fmt.Errorf(
				"%w: unit at sat %d is past output %d ending at sat %d",
				domain.ErrUnitMisplaced, position, unit, end,
			)
		}
		draft.Outputs[slack].Value -= missing
		out.Value += missing
	}

	out.Asset = domain.UniqueAt(out.Asset.UnitID, position-start)
	return nil
}

func (b *Builder) layout(sel *Selection) (*layout, error) {
	intent := sel.Intent
	if len(sel.UserUnitInputs) <= 0 || len(sel.EscrowInputs) <= 0 {
		return nil, fmt.Errorf("incomplete selection")
	}

	userUnitScript, err := addressScript(intent.UserUnitAddress, b.params)
	if err != nil {
		return nil, fmt.Errorf("%w: user unit address: %s", domain.ErrInvalidIntent, err)
	}
	userValueScript, err := addressScript(intent.UserValueAddress, b.params)
	if err != nil {
		return nil, fmt.Errorf("%w: user value address: %s", domain.ErrInvalidIntent, err)
	}

	l := &layout{
		inputs: make([]domain.DraftInput, 0),
		change: domain.DraftOutput{
			Address:     intent.UserValueAddress,
			Script:      userValueScript,
			Destination: domain.DestinationUser,
			Asset:       domain.NoAsset(),
		},
		slack: -1,
	}
	l.inputs = append(l.inputs, draftInputs(sel.UserValueInputs, domain.RoleUserValue, nil)...)
	l.inputs = append(l.inputs, draftInputs(sel.UserUnitInputs, domain.RoleUserUnit, nil)...)
	l.inputs = append(l.inputs, draftInputs(sel.EscrowInputs, domain.RoleEscrow, b.escrowScript)...)

	unitID := sel.UnitID()
	escrowValue := domain.TotalValue(sel.EscrowInputs)

	switch intent.Direction {
	// Change, payout to user, unit to escrow, escrow change. The escrow
	// gets back the value of its inputs plus the one of the unit.
	case domain.UnitToBalance:
		unitValue := domain.TotalValue(sel.UserUnitInputs)
		leftover := sel.EscrowLeftover()
		if leftover == 0 {
			unitValue += escrowValue
		}
		l.outputs = []domain.DraftOutput{
			{
				Address:     intent.UserUnitAddress,
				Script:      userUnitScript,
				Value:       b.postage,
				Destination: domain.DestinationUser,
				Asset:       domain.Fungible(sel.Price),
			},
			{
				Address:     b.escrowAddress,
				Script:      b.escrowScript,
				Value:       unitValue,
				Destination: domain.DestinationCounterparty,
				Asset:       domain.Unique(unitID),
			},
		}
		l.unit, l.remainder = 1, 0
		if leftover > 0 {
			l.outputs = append(l.outputs, domain.DraftOutput{
				Address:     b.escrowAddress,
				Script:      b.escrowScript,
				Value:       escrowValue,
				Destination: domain.DestinationEscrowChange,
				Asset:       domain.Fungible(leftover),
			})
			l.slack, l.remainder = 2, 2
		}

	// Payment to escrow, user fungible change, change, unit to user. The
	// unit is the last input so its output must be the last one too.
	case domain.BalanceToUnit:
		paymentValue := escrowValue
		if paymentValue < b.postage {
			paymentValue = b.postage
		}
		l.outputs = []domain.DraftOutput{
			{
				Address:     b.escrowAddress,
				Script:      b.escrowScript,
				Value:       paymentValue,
				Destination: domain.DestinationCounterparty,
				Asset:       domain.Fungible(sel.Price),
			},
		}
		if leftover := sel.UserLeftover(); leftover > 0 {
			l.outputs = append(l.outputs, domain.DraftOutput{
				Address:     intent.UserUnitAddress,
				Script:      userUnitScript,
				Value:       domain.TotalValue(sel.UserUnitInputs),
				Destination: domain.DestinationUser,
				Asset:       domain.Fungible(leftover),
			})
			l.remainder = 1
		}
		l.changeAt = len(l.outputs)
		l.outputs = append(l.outputs, domain.DraftOutput{
			Address:     intent.UserUnitAddress,
			Script:      userUnitScript,
			Value:       escrowValue,
			Destination: domain.DestinationUser,
			Asset:       domain.Unique(unitID),
		})
		l.unit = len(l.outputs) - 1

	default:
		return nil, domain.ErrInvalidIntent
	}

	return l, nil
}

func (b *Builder) packet(sel *Selection, draft *domain.Draft) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(2)
	for _, in := range draft.Inputs {
		hash, err := chainhash.NewHashFromStr(in.Outpoint.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid input txid %s: %s", in.Outpoint.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.Outpoint.VOut), nil, nil))
	}
	for _, out := range draft.Outputs {
		tx.AddTxOut(wire.NewTxOut(int64(out.Value), out.Script))
	}

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	for i, in := range draft.Inputs {
		pIn := &pkt.Inputs[i]
		pIn.WitnessUtxo = wire.NewTxOut(int64(in.Value), in.Script)

		var pubkey []byte
		switch in.Role {
		case domain.RoleUserValue:
			pubkey = sel.Intent.UserValuePubkey
		case domain.RoleUserUnit:
			pubkey = sel.Intent.UserUnitPubkey
		default:
			pubkey = b.escrowPubKey
		}
		if err := decorateInput(pIn, in.Script, pubkey); err != nil {
			if in.Origin() == domain.OriginEscrow {
				return nil, fmt.Errorf("escrow input %s: %s", in.Outpoint, err)
			}
			return nil, fmt.Errorf(
				"%w: input %s: %s", domain.ErrInvalidIntent, in.Outpoint, err,
			)
		}
	}
	return pkt, nil
}

// decorateInput adds to the PSBT input the data a signer needs to spend the
// given script with the given pubkey.
func decorateInput(pIn *psbt.PInput, script, pubkey []byte) error {
	switch scriptKind(script) {
	case scriptP2WPKH:
		return nil

	case scriptNestedP2WPKH:
		if len(pubkey) != btcec.PubKeyBytesLenCompressed {
			return fmt.Errorf("nested segwit input requires a compressed pubkey")
		}
		redeemScript, err := p2wpkhScript(pubkey)
		if err != nil {
			return err
		}
		p2sh, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_HASH160).
			AddData(btcutil.Hash160(redeemScript)).
			AddOp(txscript.OP_EQUAL).
			Script()
		if err != nil {
			return err
		}
		if !bytes.Equal(p2sh, script) {
			return fmt.Errorf("pubkey does not match nested segwit script")
		}
		pIn.RedeemScript = redeemScript
		return nil

	case scriptP2TR:
		internalKey, err := xOnlyPubKey(pubkey)
		if err != nil {
			return err
		}
		outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)
		if !bytes.Equal(schnorr.SerializePubKey(outputKey), script[2:]) {
			return fmt.Errorf("pubkey does not match taproot key path script")
		}
		pIn.TaprootInternalKey = schnorr.SerializePubKey(internalKey)
		return nil

	default:
		return fmt.Errorf("unsupported script %x", script)
	}
}

func draftInputs(
	unspents []domain.Unspent, role domain.InputRole, defaultScript []byte,
) []domain.DraftInput {
	inputs := make([]domain.DraftInput, 0, len(unspents))
	for _, u := range unspents {
		script := u.Script
		if len(script) <= 0 {
			script = defaultScript
		}
		inputs = append(inputs, domain.DraftInput{
			Outpoint: u.Key(),
			Value:    u.Value,
			Script:   script,
			Role:     role,
			Asset:    u.Asset,
		})
	}
	return inputs
}

func weightedInputs(inputs []domain.DraftInput) []weightedInput {
	weighted := make([]weightedInput, 0, len(inputs))
	for _, in := range inputs {
		hashType := UserSighashType
		if in.Origin() == domain.OriginEscrow {
			hashType = txscript.SigHashDefault
		}
		weighted = append(weighted, weightedInput{in.Script, hashType})
	}
	return weighted
}

func outputScripts(outputs []domain.DraftOutput) [][]byte {
	scripts := make([][]byte, 0, len(outputs))
	for _, out := range outputs {
		scripts = append(scripts, out.Script)
	}
	return scripts
}

func totalInputValue(inputs []domain.DraftInput) uint64 {
	var tot uint64
	for _, in := range inputs {
		tot += in.Value
	}
	return tot
}

func totalOutputValue(outputs []domain.DraftOutput) uint64 {
	var tot uint64
	for _, out := range outputs {
		tot += out.Value
	}
	return tot
}

func addressScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not for %s", address, params.Name)
	}
	return txscript.PayToAddrScript(addr)
}

func p2wpkhScript(pubkey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubkey)).
		Script()
}

func xOnlyPubKey(pubkey []byte) (*btcec.PublicKey, error) {
	switch len(pubkey) {
	case schnorr.PubKeyBytesLen:
		return schnorr.ParsePubKey(pubkey)
	case btcec.PubKeyBytesLenCompressed:
		key, err := btcec.ParsePubKey(pubkey)
		if err != nil {
			return nil, err
		}
		return schnorr.ParsePubKey(schnorr.SerializePubKey(key))
	default:
		return nil, fmt.Errorf("invalid pubkey length %d", len(pubkey))
	}
}
