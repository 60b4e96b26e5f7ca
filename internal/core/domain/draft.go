package domain

import "fmt"

// InputOrigin tells who controls a draft input.
type InputOrigin int

const (
	OriginUser InputOrigin = iota
	OriginEscrow
)

func (o InputOrigin) String() string {
	if o == OriginEscrow {
		return "escrow"
	}
	return "user"
}

// InputRole refines the origin of an input with the key expected to sign it.
type InputRole int

const (
	// RoleUserValue inputs are signed by the user's value-holding key.
	RoleUserValue InputRole = iota
	// RoleUserUnit inputs are signed by the user's unit-holding key.
	RoleUserUnit
	// RoleEscrow inputs are authorized by the escrow delegation.
	RoleEscrow
)

func (r InputRole) String() string {
	switch r {
	case RoleUserValue:
		return "user_value"
	case RoleUserUnit:
		return "user_unit"
	default:
		return "escrow"
	}
}

// Origin returns the origin implied by the role.
func (r InputRole) Origin() InputOrigin {
	if r == RoleEscrow {
		return OriginEscrow
	}
	return OriginUser
}

// OutputDestination tells who receives a draft output.
type OutputDestination int

const (
	DestinationUser OutputDestination = iota
	DestinationEscrowChange
	DestinationCounterparty
	// DestinationData is an unspendable output carrying the protocol message
	// that moves the fungible balances.
	DestinationData
)

func (d OutputDestination) String() string {
	switch d {
	case DestinationEscrowChange:
		return "escrow_change"
	case DestinationCounterparty:
		return "counterparty"
	case DestinationData:
		return "data"
	default:
		return "user"
	}
}

// DraftInput is an input of a draft transaction.
type DraftInput struct {
	Outpoint UnspentKey
	Value    uint64
	Script   []byte
	Role     InputRole
	Asset    AssetTag
}

// Origin returns whether the input is controlled by the user or the escrow.
func (in DraftInput) Origin() InputOrigin {
	return in.Role.Origin()
}

// DraftOutput is an output of a draft transaction.
type DraftOutput struct {
	Address     string
	Script      []byte
	Value       uint64
	Destination OutputDestination
	Asset       AssetTag
}

// Draft is the unsigned swap transaction along with the metadata of its
// inputs and outputs. Packet is the BIP-174 encoding (base64) of the same
// transaction, the one handed out to signers.
type Draft struct {
	TxID    string
	Inputs  []DraftInput
	Outputs []DraftOutput
	Fee     uint64
	Packet  string
	TxHex   string
}

// TotalInputValue returns the sum of the input values in sats.
func (d *Draft) TotalInputValue() uint64 {
	var tot uint64
	for _, in := range d.Inputs {
		tot += in.Value
	}
	return tot
}

// TotalOutputValue returns the sum of the output values in sats, the fee
// excluded.
func (d *Draft) TotalOutputValue() uint64 {
	var tot uint64
	for _, out := range d.Outputs {
		tot += out.Value
	}
	return tot
}

// EscrowInputs returns the inputs authorized by the escrow.
func (d *Draft) EscrowInputs() []DraftInput {
	ins := make([]DraftInput, 0)
	for _, in := range d.Inputs {
		if in.Origin() == OriginEscrow {
			ins = append(ins, in)
		}
	}
	return ins
}

// Validate checks value and fungible balance conservation, and that exactly
// one unique unit is moved and lands on the output tagged with it.
func (d *Draft) Validate() error {
	in, out := d.TotalInputValue(), d.TotalOutputValue()
	if in != out+d.Fee {
		return fmt.Errorf(
			"draft does not conserve value: inputs %d, outputs %d, fee %d",
			in, out, d.Fee,
		)
	}

	var fungibleIn, fungibleOut uint64
	uniqueIns, uniqueOuts := 0, 0
	for _, in := range d.Inputs {
		switch {
		case in.Asset.IsUnique():
			uniqueIns++
		case in.Asset.IsFungible():
			fungibleIn += in.Asset.Amount
		}
	}
	for _, out := range d.Outputs {
		switch {
		case out.Asset.IsUnique():
			uniqueOuts++
		case out.Asset.IsFungible():
			fungibleOut += out.Asset.Amount
		}
	}
	if uniqueIns != 1 || uniqueOuts != 1 {
		return fmt.Errorf(
			"draft must move exactly one unique unit, got %d inputs and %d outputs",
			uniqueIns, uniqueOuts,
		)
	}
	if fungibleIn != fungibleOut {
		return fmt.Errorf(
			"draft does not conserve fungible balance: inputs %d, outputs %d",
			fungibleIn, fungibleOut,
		)
	}

	vout, offset, err := d.UnitPlacement()
	if err != nil {
		return err
	}
	landed := d.Outputs[vout].Asset
	if !landed.IsUnique() || landed.Offset != offset {
		return fmt.Errorf(
			"%w: unit lands on output %d at offset %d, tagged %s",
			ErrUnitMisplaced, vout, offset, landed,
		)
	}
	return nil
}

// UnitPlacement returns the output, and the offset within it, where the sat
// carrying the unique unit ends up. Sats flow from inputs to outputs in
// order, the ones exceeding the output values go to fees.
func (d *Draft) UnitPlacement() (int, uint64, error) {
	var position uint64
	found := false
	for _, in := range d.Inputs {
		if in.Asset.IsUnique() {
			if in.Asset.Offset >= in.Value {
				return -1, 0, fmt.Errorf(
					"unit offset %d exceeds input value %d", in.Asset.Offset, in.Value,
				)
			}
			position += in.Asset.Offset
			found = true
			break
		}
		position += in.Value
	}
	if !found {
		return -1, 0, fmt.Errorf("draft moves no unique unit")
	}

	var start uint64
	for vout, out := range d.Outputs {
		if position < start+out.Value {
			return vout, position - start, nil
		}
		start += out.Value
	}
	return -1, 0, fmt.Errorf("%w: unit would be spent as fee", ErrUnitMisplaced)
}

// FindInput returns the index of the draft input spending the given outpoint,
// or -1.
func (d *Draft) FindInput(key UnspentKey) int {
	for i, in := range d.Inputs {
		if in.Outpoint == key {
			return i
		}
	}
	return -1
}
