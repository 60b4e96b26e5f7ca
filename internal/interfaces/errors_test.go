package interfaces_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/interfaces"
	"google.golang.org/grpc/codes"
)

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		name   string
		code   codes.Code
		status int
	}{
		{
			fmt.Errorf("selecting: %w", domain.ErrNoMatchingAsset),
			"NO_MATCHING_ASSET", codes.NotFound, http.StatusConflict,
		},
		{
			fmt.Errorf("%w: tx dropped", domain.ErrBroadcastRejected),
			"BROADCAST_REJECTED", codes.FailedPrecondition, http.StatusUnprocessableEntity,
		},
		{
			domain.ErrNetworkTransient,
			"NETWORK_TRANSIENT", codes.Unavailable, http.StatusServiceUnavailable,
		},
		{
			fmt.Errorf("boom"),
			"INTERNAL", codes.Internal, http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		require.Equal(t, tt.name, interfaces.ErrorName(tt.err))
		require.Equal(t, tt.code, interfaces.GRPCCode(tt.err))
		require.Equal(t, tt.status, interfaces.HTTPStatus(tt.err))
	}

	require.Equal(t, "INTERNAL", interfaces.ErrorMessage(fmt.Errorf("db path /secret")))
	require.Contains(
		t, interfaces.ErrorMessage(domain.ErrSignatureMissing), "SIGNATURE_MISSING: ",
	)
}
