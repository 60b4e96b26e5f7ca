package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/application/index"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

var ErrServiceUnavailable = fmt.Errorf("service is unavailable, retry later")

type Config struct {
	Params    *chaincfg.Params
	UnitPrice uint64
	Postage   uint64
	// FungibleAssetID is the id of the rune used as fungible balance.
	FungibleAssetID runestone.RuneID
	// FeeRate is expressed in sats/vbyte.
	FeeRate           decimal.Decimal
	Retry             RetryPolicy
	ReconcileInterval time.Duration
}

func (c Config) validate() error {
	if c.Params == nil {
		return fmt.Errorf("missing network params")
	}
	if c.UnitPrice == 0 {
		return fmt.Errorf("unit price must be positive")
	}
	if c.FungibleAssetID.IsZero() {
		return fmt.Errorf("missing fungible asset id")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	return c.Retry.validate()
}

// Service exposes the two-phase swap protocol: BuildSwap reserves the escrow
// unspents and returns the draft to be signed by the user, SettleSwap takes
// the signed draft back and settles it.
type Service struct {
	index       *index.Service
	network     ports.SettlementNetwork
	settlements domain.SettlementRepository

	selector    *Selector
	builder     *Builder
	partitioner *Partitioner
	coordinator *Coordinator

	escrowAddress     string
	reconcileInterval time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewService(
	indexSvc *index.Service,
	network ports.SettlementNetwork,
	escrow ports.EscrowAuthorizer,
	settlements domain.SettlementRepository,
	publisher ports.EventPublisher,
	cfg Config,
) (*Service, error) {
	if indexSvc == nil {
		return nil, fmt.Errorf("missing index service")
	}
	if network == nil {
		return nil, fmt.Errorf("missing settlement network")
	}
	if escrow == nil {
		return nil, fmt.Errorf("missing escrow authorizer")
	}
	if settlements == nil {
		return nil, fmt.Errorf("missing settlement repository")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	fees, err := NewFeeEstimator(cfg.FeeRate)
	if err != nil {
		return nil, err
	}
	selector, err := NewSelector(network, cfg.UnitPrice)
	if err != nil {
		return nil, err
	}
	builder, err := NewBuilder(
		cfg.Params, fees, escrow.Address(), escrow.PubKey(), cfg.Postage,
		cfg.FungibleAssetID,
	)
	if err != nil {
		return nil, err
	}
	coordinator, err := NewCoordinator(
		escrow, network, indexSvc, settlements, publisher, cfg.Retry,
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		index:             indexSvc,
		network:           network,
		settlements:       settlements,
		selector:          selector,
		builder:           builder,
		partitioner:       NewPartitioner(),
		coordinator:       coordinator,
		escrowAddress:     escrow.Address(),
		reconcileInterval: cfg.ReconcileInterval,
	}, nil
}

// Start aligns the index with the network view of the escrow, then keeps
// doing it periodically along with the expired reservations sweep.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed initial reconciliation: %w", err)
	}

	s.index.Start()
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.reconcileLoop()
	return nil
}

func (s *Service) Stop() {
	if s.quit != nil {
		close(s.quit)
		s.wg.Wait()
		s.quit = nil
	}
	s.index.Stop()
}

// BuildSwap is the first phase of a swap. The returned reservation holds
// the escrow unspents until it expires or the swap is settled.
func (s *Service) BuildSwap(
	ctx context.Context, req BuildSwapRequest,
) (*BuildSwapResponse, error) {
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		return nil, err
	}
	intent, err := domain.NewSwapIntent(
		direction, req.RequestedUnitID, req.RequestedBalanceAmount,
		req.UserValueAddress, req.UserValuePubkey,
		req.UserUnitAddress, req.UserUnitPubkey,
	)
	if err != nil {
		return nil, err
	}

	sel, err := s.selector.SelectUserInputs(ctx, *intent)
	if err != nil {
		return nil, err
	}

	reservation, err := s.index.Reserve(ctx, *intent, s.selector.EscrowPicker(sel))
	if err != nil {
		return nil, err
	}
	sel.EscrowInputs = reservation.Unspents

	release := func(err error) (*BuildSwapResponse, error) {
		if err := s.index.Release(ctx, reservation.ID); err != nil {
			log.WithError(err).Warnf(
				"swap: failed to release reservation %s", reservation.ID,
			)
		}
		return nil, err
	}

	if err := s.selector.FundFees(sel, s.builder.RequiredFunding); err != nil {
		return release(err)
	}
	draft, pkt, err := s.builder.Build(sel)
	if err != nil {
		return release(err)
	}
	plan, err := s.partitioner.Partition(draft, pkt)
	if err != nil {
		return release(err)
	}
	if draft.Packet, err = pkt.B64Encode(); err != nil {
		return release(err)
	}
	if err := s.index.Attach(reservation.ID, draft, plan); err != nil {
		return release(err)
	}

	log.Infof(
		"swap: built %s draft %s for reservation %s, fee %d",
		direction, draft.TxID, reservation.ID, draft.Fee,
	)

	return &BuildSwapResponse{
		ReservationID:             reservation.ID.String(),
		UnsignedTransactionHex:    draft.TxHex,
		UnsignedTransactionBase64: draft.Packet,
		ValueSignerInputIndexes:   plan.ValueSignerIndexes(),
		UnitSignerInputIndexes:    plan.UnitSignerIndexes(),
		SighashType:               uint32(UserSighashType),
		ReservedOutputs:           outpoints(reservation.Unspents),
		ExpiresAt:                 reservation.ExpiresAt.Unix(),
		Fee:                       draft.Fee,
	}, nil
}

// SettleSwap is the second phase of a swap. On failure, the reservation is
// released and the swap must be built again.
func (s *Service) SettleSwap(
	ctx context.Context, req SettleSwapRequest,
) (*SettleSwapResponse, error) {
	id, err := s.findReservation(req)
	if err != nil {
		return nil, err
	}

	receipt, err := s.coordinator.Settle(ctx, id, req.SignedTransaction)
	if err != nil {
		return nil, err
	}
	return &SettleSwapResponse{FinalTxID: receipt.FinalTxID}, nil
}

func (s *Service) ListReservations(context.Context) []ReservationInfo {
	reservations := s.index.ListReservations()
	list := make([]ReservationInfo, 0, len(reservations))
	for _, r := range reservations {
		list = append(list, reservationInfo(r))
	}
	return list
}

func (s *Service) ListSpendableOutputs(ctx context.Context) ([]OutputInfo, error) {
	unspents, err := s.index.ListOutputs(ctx)
	if err != nil {
		log.WithError(err).Warn("swap: failed to list escrow unspents")
		return nil, ErrServiceUnavailable
	}
	list := make([]OutputInfo, 0, len(unspents))
	for _, u := range unspents {
		list = append(list, outputInfo(u))
	}
	return list, nil
}

func (s *Service) ListSettlements(ctx context.Context) ([]SettlementInfo, error) {
	receipts, err := s.settlements.GetAllSettlements(ctx)
	if err != nil {
		log.WithError(err).Warn("swap: failed to list settlements")
		return nil, ErrServiceUnavailable
	}
	list := make([]SettlementInfo, 0, len(receipts))
	for _, r := range receipts {
		list = append(list, settlementInfo(r))
	}
	return list, nil
}

// Reconcile replaces the index content with the escrow unspents known by
// the settlement network.
func (s *Service) Reconcile(ctx context.Context) error {
	outputs, err := s.network.GetSpendableOutputs(ctx, s.escrowAddress)
	if err != nil {
		return fmt.Errorf("failed to fetch escrow unspents: %w", err)
	}
	return s.index.Reconcile(ctx, outputs)
}

func (s *Service) findReservation(req SettleSwapRequest) (uuid.UUID, error) {
	keys := make([]domain.UnspentKey, 0, len(req.ReservedOutputs))
	for _, out := range req.ReservedOutputs {
		key, err := domain.ParseUnspentKey(out)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrReservationNotFound, err)
		}
		keys = append(keys, key)
	}

	if req.ReservationID == "" {
		if len(keys) <= 0 {
			return uuid.Nil, fmt.Errorf(
				"%w: missing reservation id and reserved outputs",
				domain.ErrReservationNotFound,
			)
		}
		reservation, err := s.index.FindReservationByKeys(keys)
		if err != nil {
			return uuid.Nil, err
		}
		return reservation.ID, nil
	}

	id, err := uuid.Parse(req.ReservationID)
	if err != nil {
		return uuid.Nil, fmt.Errorf(
			"%w: invalid reservation id %q", domain.ErrReservationNotFound, req.ReservationID,
		)
	}
	if len(keys) > 0 {
		reservation, err := s.index.GetReservation(id)
		if err != nil {
			return uuid.Nil, err
		}
		if !reservation.HoldsExactly(keys) {
			return uuid.Nil, fmt.Errorf(
				"%w: reserved outputs do not match reservation %s",
				domain.ErrReservationNotFound, id,
			)
		}
	}
	return id, nil
}

func (s *Service) reconcileLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.reconcileInterval)
			if err := s.Reconcile(ctx); err != nil {
				if errors.Is(err, domain.ErrNetworkTransient) {
					log.WithError(err).Debug("swap: reconciliation skipped")
				} else {
					log.WithError(err).Warn("swap: failed to reconcile index")
				}
			}
			cancel()
		}
	}
}
