package interfaces

import (
	"context"

	"github.com/tdex-network/unitswap/internal/core/application/swap"
)

// Service interface defines the methods that every kind of interface, whether
// gRPC, REST, or whatever must be compliant with.
type Service interface {
	Start() error
	Stop()
}

// SwapService is what transports expose of the application.
type SwapService interface {
	BuildSwap(ctx context.Context, req swap.BuildSwapRequest) (*swap.BuildSwapResponse, error)
	SettleSwap(ctx context.Context, req swap.SettleSwapRequest) (*swap.SettleSwapResponse, error)
	ListReservations(ctx context.Context) []swap.ReservationInfo
	ListSpendableOutputs(ctx context.Context) ([]swap.OutputInfo, error)
	ListSettlements(ctx context.Context) ([]swap.SettlementInfo, error)
	Reconcile(ctx context.Context) error
}
