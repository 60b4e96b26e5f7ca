package grpchandler

import "github.com/tdex-network/unitswap/internal/core/application/swap"

type ListReservationsRequest struct{}

type ListReservationsResponse struct {
	Reservations []swap.ReservationInfo `json:"reservations"`
}

type ListOutputsRequest struct{}

type ListOutputsResponse struct {
	Outputs []swap.OutputInfo `json:"outputs"`
}

type ListSettlementsRequest struct{}

type ListSettlementsResponse struct {
	Settlements []swap.SettlementInfo `json:"settlements"`
}

type ReconcileRequest struct{}

type ReconcileResponse struct{}
