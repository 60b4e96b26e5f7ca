package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsActive is the number of leases currently held on the
	// spendable set.
	ReservationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "unitswap",
		Name:      "reservations_active",
		Help:      "Number of active reservations on the spendable set.",
	})

	// ReservationsReleased counts released reservations by reason
	// (explicit, expired, failed, reconciled).
	ReservationsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unitswap",
		Name:      "reservations_released_total",
		Help:      "Number of released reservations by reason.",
	}, []string{"reason"})

	// SpendableOutputs is the size of the escrow spendable set.
	SpendableOutputs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "unitswap",
		Name:      "spendable_outputs",
		Help:      "Number of outputs tracked by the spendable-set index.",
	})

	// Settlements counts settlement attempts by terminal outcome.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unitswap",
		Name:      "settlements_total",
		Help:      "Number of settlement attempts by outcome.",
	}, []string{"direction", "outcome"})

	// BroadcastAttempts counts every broadcast call made to the network.
	BroadcastAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unitswap",
		Name:      "broadcast_attempts_total",
		Help:      "Number of broadcast attempts by result.",
	}, []string{"result"})

	// DraftFees tracks the fee in sats of built drafts.
	DraftFees = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "unitswap",
		Name:      "draft_fee_sats",
		Help:      "Fee in sats of built drafts.",
		Buckets:   prometheus.ExponentialBuckets(250, 2, 12),
	})
)
