package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/pkg/stats"
)

const (
	releaseReasonExplicit   = "explicit"
	releaseReasonExpired    = "expired"
	releaseReasonReconciled = "reconciled"
	releaseReasonCommitted  = "committed"
)

// Picker selects, among the available escrow unspents given in insertion
// order, the ones to reserve. It runs while the index is locked and must not
// block on I/O.
type Picker func(available []domain.Unspent) ([]domain.Unspent, error)

type Config struct {
	ReservationExpiry time.Duration
	SweepInterval     time.Duration
	AllowUnconfirmed  bool
	// Now is used in tests to control time. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) validate() error {
	if c.ReservationExpiry <= 0 {
		return fmt.Errorf("reservation expiry must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}

// Service is the spendable-set index of the escrow. It owns the escrow
// unspents and the reservations made on them. Every mutation goes through
// a single mutex, so that two reservations never share an unspent.
type Service struct {
	repo      domain.UnspentRepository
	publisher ports.EventPublisher
	cfg       Config

	lock         sync.Mutex
	reservations map[uuid.UUID]*domain.Reservation

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewService(
	repo domain.UnspentRepository, publisher ports.EventPublisher, cfg Config,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing unspent repository")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}

	return &Service{
		repo:         repo,
		publisher:    publisher,
		cfg:          cfg,
		reservations: make(map[uuid.UUID]*domain.Reservation),
	}, nil
}

// Start runs the background routine that releases expired reservations.
func (s *Service) Start() {
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.sweep()
}

// Stop terminates the sweeper and waits for it to return.
func (s *Service) Stop() {
	if s.quit == nil {
		return
	}
	close(s.quit)
	s.wg.Wait()
	s.quit = nil
}

// Reserve locks the unspents chosen by pick for the given intent and
// records a reservation expiring after the configured lease.
func (s *Service) Reserve(
	ctx context.Context, intent domain.SwapIntent, pick Picker,
) (*domain.Reservation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.reservations[intent.ID]; ok {
		return nil, fmt.Errorf("reservation %s already exists", intent.ID)
	}

	if _, err := s.releaseExpired(ctx); err != nil {
		log.WithError(err).Warn("index: failed to release expired reservations")
	}

	available, err := s.selectable(ctx)
	if err != nil {
		return nil, err
	}

	picked, err := pick(available)
	if err != nil {
		return nil, err
	}
	if len(picked) <= 0 {
		return nil, domain.ErrNoMatchingAsset
	}

	keys := domain.Keys(picked)
	if err := s.repo.LockUnspents(ctx, keys, intent.ID); err != nil {
		return nil, err
	}

	// Reload to return the locked view of the unspents.
	locked, err := s.repo.GetUnspentsForKeys(ctx, keys)
	if err != nil {
		if err := s.repo.UnlockUnspents(ctx, keys); err != nil {
			log.WithError(err).Warn("index: failed to unlock unspents")
		}
		return nil, err
	}
	domain.SortBySequence(locked)

	reservation := domain.NewReservation(
		intent, locked, s.cfg.Now(), s.cfg.ReservationExpiry,
	)
	s.reservations[reservation.ID] = reservation

	stats.ReservationsActive.Set(float64(len(s.reservations)))
	s.publisher.Publish(ports.TopicReservationCreated, reservationEvent(reservation))
	log.Debugf(
		"index: reserved %d unspents for %s until %s",
		len(locked), reservation.ID, reservation.ExpiresAt.Format(time.RFC3339),
	)

	return copyReservation(reservation), nil
}

// Attach stores the draft and signing plan built for the reservation.
func (s *Service) Attach(
	id uuid.UUID, draft *domain.Draft, plan *domain.SigningPlan,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if r.IsExpired(s.cfg.Now()) {
		return domain.ErrReservationExpired
	}
	r.Draft = draft
	r.Plan = plan
	return nil
}

// Release unlocks the unspents of the reservation and forgets it.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	return s.release(ctx, r, releaseReasonExplicit)
}

// BeginSettlement marks the reservation as being settled. Only one caller
// can settle a reservation at a time. An expired reservation is released
// and ErrReservationExpired is returned.
func (s *Service) BeginSettlement(
	ctx context.Context, id uuid.UUID,
) (*domain.Reservation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	if r.Settling {
		return nil, domain.ErrSettlementInProgress
	}
	if r.IsExpired(s.cfg.Now()) {
		if err := s.release(ctx, r, releaseReasonExpired); err != nil {
			log.WithError(err).Warn("index: failed to release expired reservation")
		}
		return nil, domain.ErrReservationExpired
	}
	if r.Draft == nil || r.Plan == nil {
		return nil, fmt.Errorf("reservation %s has no draft attached", id)
	}

	r.Settling = true
	return copyReservation(r), nil
}

// AbortSettlement is called when the settlement of the reservation failed.
// The reservation is released so that its unspents are selectable again.
func (s *Service) AbortSettlement(ctx context.Context, id uuid.UUID) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	r.Settling = false
	return s.release(ctx, r, releaseReasonExplicit)
}

// Commit applies the receipt of a settled swap to the spendable set: the
// consumed unspents are removed and the produced ones inserted in a single
// atomic step. In case of failure the reservation is kept in settling state
// and the next reconciliation fixes the set.
func (s *Service) Commit(
	ctx context.Context, receipt domain.SettlementReceipt,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reservations[receipt.ReservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	consumed := domain.Keys(receipt.ConsumedOutputs)
	if !r.HoldsExactly(consumed) {
		return fmt.Errorf(
			"receipt of %s does not consume the reserved unspents", r.ID,
		)
	}

	produced := receipt.ProducedOutputs()
	if err := s.repo.ApplySettlement(ctx, consumed, produced); err != nil {
		return fmt.Errorf("failed to commit settlement %s: %w", receipt.FinalTxID, err)
	}

	delete(s.reservations, r.ID)
	stats.ReservationsActive.Set(float64(len(s.reservations)))
	stats.ReservationsReleased.WithLabelValues(releaseReasonCommitted).Inc()
	s.updateOutputsGauge(ctx)

	log.Debugf(
		"index: committed %s, removed %d unspents, added %d",
		receipt.FinalTxID, len(consumed), len(produced),
	)
	return nil
}

// ReleaseExpired releases all the expired reservations and returns how many
// of them were released.
func (s *Service) ReleaseExpired(ctx context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.releaseExpired(ctx)
}

// Reconcile aligns the spendable set with the given view of the escrow
// unspents as seen by the network. Unknown unspents are added, vanished
// ones removed and known ones whose asset content changed are retagged.
// Any reservation not being settled that holds a vanished or retagged
// unspent is dropped, and locks left by reservations that no longer exist,
// like the ones made before a restart, are released.
func (s *Service) Reconcile(
	ctx context.Context, outputs []domain.Unspent,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	current, err := s.repo.GetAllUnspents(ctx)
	if err != nil {
		return err
	}

	observed := make(map[domain.UnspentKey]domain.Unspent, len(outputs))
	for _, u := range outputs {
		observed[u.Key()] = u
	}
	known := make(map[domain.UnspentKey]struct{}, len(current))

	vanished := make([]domain.UnspentKey, 0)
	toConfirm := make([]domain.UnspentKey, 0)
	retagged := make([]domain.Unspent, 0)
	orphaned := make([]domain.UnspentKey, 0)
	for _, u := range current {
		key := u.Key()
		known[key] = struct{}{}
		o, ok := observed[key]
		if !ok {
			vanished = append(vanished, key)
			continue
		}
		if o.IsConfirmed() && !u.IsConfirmed() {
			toConfirm = append(toConfirm, key)
		}
		if o.Asset != u.Asset {
			retagged = append(retagged, o)
		}
		if u.IsLocked() && !s.isReserved(u.LockedBy) {
			orphaned = append(orphaned, key)
		}
	}

	added := make([]domain.Unspent, 0)
	for _, u := range outputs {
		if _, ok := known[u.Key()]; ok {
			continue
		}
		u.Locked = false
		u.LockedBy = nil
		added = append(added, u)
	}

	gone := make(map[domain.UnspentKey]struct{}, len(vanished))
	for _, key := range vanished {
		gone[key] = struct{}{}
	}
	changed := make(map[domain.UnspentKey]struct{}, len(retagged))
	for _, u := range retagged {
		changed[u.Key()] = struct{}{}
	}
	for _, r := range s.reservations {
		// A reservation being settled is left to the settlement outcome
		// unless all its unspents are already spent on chain.
		if r.Settling {
			if allVanished(r, gone) {
				delete(s.reservations, r.ID)
				stats.ReservationsReleased.WithLabelValues(releaseReasonReconciled).Inc()
			}
			continue
		}
		if holdsAny(r, gone) || holdsAny(r, changed) {
			if err := s.release(ctx, r, releaseReasonReconciled); err != nil {
				log.WithError(err).Warnf(
					"index: failed to release reservation %s", r.ID,
				)
			}
		}
	}

	if len(vanished) > 0 || len(added) > 0 {
		if err := s.repo.ApplySettlement(ctx, vanished, added); err != nil {
			return err
		}
	}
	if len(toConfirm) > 0 {
		if err := s.repo.ConfirmUnspents(ctx, toConfirm); err != nil {
			return err
		}
	}
	if len(retagged) > 0 {
		if err := s.repo.UpdateUnspentAssets(ctx, retagged); err != nil {
			return err
		}
	}
	if len(orphaned) > 0 {
		if err := s.repo.UnlockUnspents(ctx, orphaned); err != nil {
			return err
		}
	}

	s.updateOutputsGauge(ctx)
	stats.ReservationsActive.Set(float64(len(s.reservations)))
	if len(vanished) > 0 || len(added) > 0 || len(toConfirm) > 0 ||
		len(retagged) > 0 || len(orphaned) > 0 {
		s.publisher.Publish(ports.TopicIndexReconciled, map[string]int{
			"added":     len(added),
			"removed":   len(vanished),
			"confirmed": len(toConfirm),
			"retagged":  len(retagged),
			"unlocked":  len(orphaned),
		})
		log.Infof(
			"index: reconciled, added %d, removed %d, confirmed %d, "+
				"retagged %d, unlocked %d unspents",
			len(added), len(vanished), len(toConfirm), len(retagged), len(orphaned),
		)
	}
	return nil
}

// ListOutputs returns all the unspents of the escrow in insertion order.
func (s *Service) ListOutputs(ctx context.Context) ([]domain.Unspent, error) {
	return s.repo.GetAllUnspents(ctx)
}

// ListReservations returns the active reservations, oldest first.
func (s *Service) ListReservations() []domain.Reservation {
	s.lock.Lock()
	defer s.lock.Unlock()

	list := make([]domain.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		list = append(list, *copyReservation(r))
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (s *Service) GetReservation(id uuid.UUID) (*domain.Reservation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(r), nil
}

// FindReservationByKeys returns the reservation holding exactly the given
// unspents.
func (s *Service) FindReservationByKeys(
	keys []domain.UnspentKey,
) (*domain.Reservation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, r := range s.reservations {
		if r.HoldsExactly(keys) {
			return copyReservation(r), nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (s *Service) sweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			count, err := s.ReleaseExpired(context.Background())
			if err != nil {
				log.WithError(err).Warn("index: sweep failed")
				continue
			}
			if count > 0 {
				log.Debugf("index: released %d expired reservations", count)
			}
		}
	}
}

func (s *Service) selectable(ctx context.Context) ([]domain.Unspent, error) {
	unspents, err := s.repo.GetAvailableUnspents(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]domain.Unspent, 0, len(unspents))
	for _, u := range unspents {
		if u.IsSelectable(s.cfg.AllowUnconfirmed) {
			available = append(available, u)
		}
	}
	domain.SortBySequence(available)
	return available, nil
}

func (s *Service) releaseExpired(ctx context.Context) (int, error) {
	now := s.cfg.Now()
	count := 0
	for _, r := range s.reservations {
		if !r.IsExpired(now) {
			continue
		}
		if err := s.release(ctx, r, releaseReasonExpired); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// release must be called with the lock held.
func (s *Service) release(
	ctx context.Context, r *domain.Reservation, reason string,
) error {
	if err := s.repo.UnlockUnspents(ctx, r.Keys()); err != nil {
		return err
	}
	delete(s.reservations, r.ID)

	stats.ReservationsActive.Set(float64(len(s.reservations)))
	stats.ReservationsReleased.WithLabelValues(reason).Inc()

	topic := ports.TopicReservationReleased
	if reason == releaseReasonExpired {
		topic = ports.TopicReservationExpired
	}
	s.publisher.Publish(topic, reservationEvent(r))
	return nil
}

func (s *Service) updateOutputsGauge(ctx context.Context) {
	unspents, err := s.repo.GetAllUnspents(ctx)
	if err != nil {
		return
	}
	stats.SpendableOutputs.Set(float64(len(unspents)))
}

// isReserved must be called with the lock held.
func (s *Service) isReserved(id *uuid.UUID) bool {
	if id == nil {
		return false
	}
	_, ok := s.reservations[*id]
	return ok
}

func holdsAny(
	r *domain.Reservation, keys map[domain.UnspentKey]struct{},
) bool {
	for key := range keys {
		if r.Holds(key) {
			return true
		}
	}
	return false
}

func allVanished(
	r *domain.Reservation, gone map[domain.UnspentKey]struct{},
) bool {
	for _, key := range r.Keys() {
		if _, ok := gone[key]; !ok {
			return false
		}
	}
	return len(r.Unspents) > 0
}

func copyReservation(r *domain.Reservation) *domain.Reservation {
	cp := *r
	cp.Unspents = append([]domain.Unspent(nil), r.Unspents...)
	return &cp
}

type reservationPayload struct {
	ID        string   `json:"id"`
	Direction string   `json:"direction"`
	Outputs   []string `json:"outputs"`
	ExpiresAt int64    `json:"expiresAt"`
}

func reservationEvent(r *domain.Reservation) reservationPayload {
	outputs := make([]string, 0, len(r.Unspents))
	for _, k := range r.Keys() {
		outputs = append(outputs, k.String())
	}
	return reservationPayload{
		ID:        r.ID.String(),
		Direction: r.Intent.Direction.String(),
		Outputs:   outputs,
		ExpiresAt: r.ExpiresAt.Unix(),
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}
