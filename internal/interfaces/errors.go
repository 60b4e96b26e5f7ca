package interfaces

import (
	"errors"
	"net/http"

	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"google.golang.org/grpc/codes"
)

type errorKind struct {
	err    error
	name   string
	code   codes.Code
	status int
}

// errorKinds is matched in order, the first one the error wraps wins.
var errorKinds = []errorKind{
	{domain.ErrInvalidIntent, "INVALID_INTENT", codes.InvalidArgument, http.StatusBadRequest},
	{domain.ErrNoMatchingAsset, "NO_MATCHING_ASSET", codes.NotFound, http.StatusConflict},
	{domain.ErrInsufficientFunds, "INSUFFICIENT_FUNDS", codes.FailedPrecondition, http.StatusUnprocessableEntity},
	{domain.ErrFeeUnderfunded, "FEE_UNDERFUNDED", codes.FailedPrecondition, http.StatusUnprocessableEntity},
	{domain.ErrUnitMisplaced, "UNIT_MISPLACED", codes.FailedPrecondition, http.StatusUnprocessableEntity},
	{domain.ErrReservationExpired, "RESERVATION_EXPIRED", codes.DeadlineExceeded, http.StatusGone},
	{domain.ErrReservationNotFound, "RESERVATION_NOT_FOUND", codes.NotFound, http.StatusNotFound},
	{domain.ErrSettlementInProgress, "SETTLEMENT_IN_PROGRESS", codes.Aborted, http.StatusConflict},
	{domain.ErrSignatureMissing, "SIGNATURE_MISSING", codes.InvalidArgument, http.StatusBadRequest},
	{domain.ErrSignatureInvalidScope, "SIGNATURE_INVALID_SCOPE", codes.InvalidArgument, http.StatusBadRequest},
	{domain.ErrFinalizationFailed, "FINALIZATION_FAILED", codes.Internal, http.StatusInternalServerError},
	{domain.ErrBroadcastRejected, "BROADCAST_REJECTED", codes.FailedPrecondition, http.StatusUnprocessableEntity},
	{domain.ErrNetworkTransient, "NETWORK_TRANSIENT", codes.Unavailable, http.StatusServiceUnavailable},
	{domain.ErrUnspentAlreadyLocked, "UNSPENT_ALREADY_LOCKED", codes.Aborted, http.StatusConflict},
	{swap.ErrServiceUnavailable, "SERVICE_UNAVAILABLE", codes.Unavailable, http.StatusServiceUnavailable},
}

var internalError = errorKind{nil, "INTERNAL", codes.Internal, http.StatusInternalServerError}

func kindOf(err error) errorKind {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k
		}
	}
	return internalError
}

// ErrorName returns the stable name of the error class of err.
func ErrorName(err error) string {
	return kindOf(err).name
}

// GRPCCode returns the gRPC status code matching err.
func GRPCCode(err error) codes.Code {
	return kindOf(err).code
}

// HTTPStatus returns the HTTP status code matching err.
func HTTPStatus(err error) int {
	return kindOf(err).status
}

// ErrorMessage returns the message returned to clients for err, prefixed by
// its stable name. Internal errors don't leak their details.
func ErrorMessage(err error) string {
	k := kindOf(err)
	if k.err == nil {
		return k.name
	}
	return k.name + ": " + err.Error()
}
