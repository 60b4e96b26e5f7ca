package grpchandler

import (
	"context"

	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/interfaces"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type swapHandler struct {
	swapSvc interfaces.SwapService
}

func NewSwapHandler(swapSvc interfaces.SwapService) SwapServiceServer {
	return &swapHandler{swapSvc}
}

func (h *swapHandler) BuildSwap(
	ctx context.Context, req *swap.BuildSwapRequest,
) (*swap.BuildSwapResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "missing request")
	}
	resp, err := h.swapSvc.BuildSwap(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (h *swapHandler) SettleSwap(
	ctx context.Context, req *swap.SettleSwapRequest,
) (*swap.SettleSwapResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "missing request")
	}
	resp, err := h.swapSvc.SettleSwap(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (h *swapHandler) ListReservations(
	ctx context.Context, _ *ListReservationsRequest,
) (*ListReservationsResponse, error) {
	return &ListReservationsResponse{h.swapSvc.ListReservations(ctx)}, nil
}

func (h *swapHandler) ListOutputs(
	ctx context.Context, _ *ListOutputsRequest,
) (*ListOutputsResponse, error) {
	outputs, err := h.swapSvc.ListSpendableOutputs(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListOutputsResponse{outputs}, nil
}

func (h *swapHandler) ListSettlements(
	ctx context.Context, _ *ListSettlementsRequest,
) (*ListSettlementsResponse, error) {
	settlements, err := h.swapSvc.ListSettlements(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListSettlementsResponse{settlements}, nil
}

func (h *swapHandler) Reconcile(
	ctx context.Context, _ *ReconcileRequest,
) (*ReconcileResponse, error) {
	if err := h.swapSvc.Reconcile(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &ReconcileResponse{}, nil
}

func toStatus(err error) error {
	return status.Error(interfaces.GRPCCode(err), interfaces.ErrorMessage(err))
}
