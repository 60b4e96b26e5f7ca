package swap

import (
	"context"
	"fmt"

	"github.com/tdex-network/unitswap/internal/core/application/index"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

// Selection is the set of unspents chosen to satisfy a swap intent.
type Selection struct {
	Intent domain.SwapIntent
	// Price is the fungible amount exchanged for one unit.
	Price           uint64
	UserValueInputs []domain.Unspent
	UserUnitInputs  []domain.Unspent
	EscrowInputs    []domain.Unspent

	// unspents at the user value address usable to fund fees.
	valueCandidates []domain.Unspent
}

// EscrowLeftover is the fungible amount returned to the escrow.
func (s *Selection) EscrowLeftover() uint64 {
	if s.Intent.Direction != domain.UnitToBalance {
		return 0
	}
	return domain.TotalFungible(s.EscrowInputs) - s.Price
}

// UserLeftover is the fungible amount returned to the user.
func (s *Selection) UserLeftover() uint64 {
	if s.Intent.Direction != domain.BalanceToUnit {
		return 0
	}
	return domain.TotalFungible(s.UserUnitInputs) - s.Price
}

// UnitID returns the id of the unit moved by the swap.
func (s *Selection) UnitID() string {
	inputs := s.UserUnitInputs
	if s.Intent.Direction == domain.BalanceToUnit {
		inputs = s.EscrowInputs
	}
	for _, u := range inputs {
		if u.Asset.IsUnique() {
			return u.Asset.UnitID
		}
	}
	return ""
}

// Selector picks the unspents of both parties needed by a swap. The escrow
// side is chosen among the index unspents by first eligible match in
// insertion order.
type Selector struct {
	network   ports.SettlementNetwork
	unitPrice uint64
}

func NewSelector(network ports.SettlementNetwork, unitPrice uint64) (*Selector, error) {
	if network == nil {
		return nil, fmt.Errorf("missing settlement network")
	}
	if unitPrice == 0 {
		return nil, fmt.Errorf("unit price must be positive")
	}
	return &Selector{network, unitPrice}, nil
}

// SelectUserInputs fetches the unspents of the user addresses and selects
// the ones carrying the asset the user gives away.
func (s *Selector) SelectUserInputs(
	ctx context.Context, intent domain.SwapIntent,
) (*Selection, error) {
	if intent.RequestedBalanceAmount > 0 &&
		intent.RequestedBalanceAmount != s.unitPrice {
		return nil, fmt.Errorf(
			"%w: requested amount %d does not match unit price %d",
			domain.ErrInvalidIntent, intent.RequestedBalanceAmount, s.unitPrice,
		)
	}

	var valueUnspents, unitUnspents []domain.Unspent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		valueUnspents, err = s.network.GetSpendableOutputs(gctx, intent.UserValueAddress)
		return err
	})
	g.Go(func() error {
		var err error
		unitUnspents, err = s.network.GetSpendableOutputs(gctx, intent.UserUnitAddress)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch user unspents: %w", err)
	}

	sel := &Selection{Intent: intent, Price: s.unitPrice}

	var err error
	switch intent.Direction {
	case domain.UnitToBalance:
		sel.UserUnitInputs, err = pickUnit(unitUnspents, intent.RequestedUnitID)
	case domain.BalanceToUnit:
		sel.UserUnitInputs, err = pickFungible(unitUnspents, s.unitPrice)
	default:
		err = domain.ErrInvalidIntent
	}
	if err != nil {
		return nil, err
	}

	used := make(map[domain.UnspentKey]struct{})
	for _, u := range sel.UserUnitInputs {
		used[u.Key()] = struct{}{}
	}
	for _, u := range valueUnspents {
		if _, ok := used[u.Key()]; ok || !u.Asset.IsNone() {
			continue
		}
		sel.valueCandidates = append(sel.valueCandidates, u)
	}
	return sel, nil
}

// EscrowPicker returns the index picker choosing the escrow side of the
// given selection.
func (s *Selector) EscrowPicker(sel *Selection) index.Picker {
	return func(available []domain.Unspent) ([]domain.Unspent, error) {
		var (
			picked []domain.Unspent
			err    error
		)
		switch sel.Intent.Direction {
		case domain.UnitToBalance:
			picked, err = pickFungible(available, sel.Price)
		case domain.BalanceToUnit:
			picked, err = pickUnit(available, sel.Intent.RequestedUnitID)
		default:
			err = domain.ErrInvalidIntent
		}
		if err != nil {
			return nil, err
		}
		sel.EscrowInputs = picked
		return picked, nil
	}
}

// FundFees adds user value unspents, in order, until they cover the amount
// returned by required for the current selection.
func (s *Selector) FundFees(
	sel *Selection, required func(*Selection) (uint64, error),
) error {
	sel.UserValueInputs = nil
	for _, u := range sel.valueCandidates {
		sel.UserValueInputs = append(sel.UserValueInputs, u)

		amount, err := required(sel)
		if err != nil {
			return err
		}
		if domain.TotalValue(sel.UserValueInputs) >= amount {
			return nil
		}
	}
	return fmt.Errorf(
		"%w: user value unspents can't fund network fees",
		domain.ErrInsufficientFunds,
	)
}

// pickUnit returns the unspent holding the unit with the given id, or the
// first unit found if id is empty.
func pickUnit(unspents []domain.Unspent, id string) ([]domain.Unspent, error) {
	for _, u := range unspents {
		if !u.Asset.IsUnique() {
			continue
		}
		if id == "" || u.Asset.UnitID == id {
			return []domain.Unspent{u}, nil
		}
	}
	return nil, domain.ErrNoMatchingAsset
}

// pickFungible returns the first unspent holding at least amount, or else
// accumulates fungible unspents until they cover it.
func pickFungible(
	unspents []domain.Unspent, amount uint64,
) ([]domain.Unspent, error) {
	fungibles := make([]domain.Unspent, 0)
	for _, u := range unspents {
		if !u.Asset.IsFungible() {
			continue
		}
		if u.Asset.Amount >= amount {
			return []domain.Unspent{u}, nil
		}
		fungibles = append(fungibles, u)
	}
	if len(fungibles) <= 0 {
		return nil, domain.ErrNoMatchingAsset
	}

	picked := make([]domain.Unspent, 0)
	var tot uint64
	for _, u := range fungibles {
		picked = append(picked, u)
		tot += u.Asset.Amount
		if tot >= amount {
			return picked, nil
		}
	}
	return nil, fmt.Errorf(
		"%w: fungible amount %d is below %d", domain.ErrInsufficientFunds, tot, amount,
	)
}
