package domain

import (
	"fmt"
	"sort"
)

// Signer is the external authority expected to sign an input.
type Signer int

const (
	// SignerValueKey is the user's value-holding key.
	SignerValueKey Signer = iota
	// SignerUnitKey is the user's unit-holding key.
	SignerUnitKey
)

func (s Signer) String() string {
	if s == SignerUnitKey {
		return "unit_key"
	}
	return "value_key"
}

// SigningEntry tells who must sign an input and with which sighash mode.
type SigningEntry struct {
	Signer      Signer
	SighashMode uint32
}

// SigningPlan maps input indexes to the signer in charge of them. Escrow
// inputs never appear in a plan.
type SigningPlan struct {
	NumInputs int
	Entries   map[int]SigningEntry
}

// NewSigningPlan returns an empty plan for a tx with the given number of
// inputs.
func NewSigningPlan(numInputs int) *SigningPlan {
	return &SigningPlan{
		NumInputs: numInputs,
		Entries:   make(map[int]SigningEntry),
	}
}

// Add assigns the input at the given index to the signer.
func (p *SigningPlan) Add(index int, signer Signer, sighashMode uint32) error {
	if index < 0 || index >= p.NumInputs {
		return fmt.Errorf("input index %d out of range [0, %d)", index, p.NumInputs)
	}
	if _, ok := p.Entries[index]; ok {
		return fmt.Errorf("input index %d already assigned", index)
	}
	p.Entries[index] = SigningEntry{signer, sighashMode}
	return nil
}

// ValueSignerIndexes returns the sorted indexes to be signed by the value key.
func (p *SigningPlan) ValueSignerIndexes() []int {
	return p.indexesFor(SignerValueKey)
}

// UnitSignerIndexes returns the sorted indexes to be signed by the unit key.
func (p *SigningPlan) UnitSignerIndexes() []int {
	return p.indexesFor(SignerUnitKey)
}

// Indexes returns all the sorted indexes of the plan.
func (p *SigningPlan) Indexes() []int {
	indexes := make([]int, 0, len(p.Entries))
	for i := range p.Entries {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	return indexes
}

// Validate makes sure every index references a valid input and that value
// and unit index sets are disjoint.
func (p *SigningPlan) Validate() error {
	seen := make(map[int]struct{})
	for _, i := range append(p.ValueSignerIndexes(), p.UnitSignerIndexes()...) {
		if i < 0 || i >= p.NumInputs {
			return fmt.Errorf("input index %d out of range [0, %d)", i, p.NumInputs)
		}
		if _, ok := seen[i]; ok {
			return fmt.Errorf("input index %d assigned to both signers", i)
		}
		seen[i] = struct{}{}
	}
	return nil
}

func (p *SigningPlan) indexesFor(signer Signer) []int {
	indexes := make([]int, 0)
	for i, e := range p.Entries {
		if e.Signer == signer {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)
	return indexes
}
