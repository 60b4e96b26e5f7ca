package domain_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/core/domain"
)

func TestSettlementHappyPath(t *testing.T) {
	t.Parallel()

	s := domain.NewSettlement(uuid.New())
	require.Equal(t, domain.SettlementAwaitingSignatures, s.Status)

	require.NoError(t, s.Sign())
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Broadcast("txid"))
	require.NoError(t, s.Settle())

	require.True(t, s.IsSettled())
	require.True(t, s.Status.IsTerminal())
	require.Equal(t, "txid", s.TxID)
}

func TestSettlementFailureExits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		advance  func(s *domain.Settlement)
		expected domain.SettlementStatus
	}{
		{
			name:     "signature rejected",
			advance:  func(s *domain.Settlement) {},
			expected: domain.SettlementSignatureRejected,
		},
		{
			name: "finalization failed",
			advance: func(s *domain.Settlement) {
				require.NoError(t, s.Sign())
			},
			expected: domain.SettlementFinalizationFailed,
		},
		{
			name: "broadcast failed",
			advance: func(s *domain.Settlement) {
				require.NoError(t, s.Sign())
				require.NoError(t, s.Finalize())
			},
			expected: domain.SettlementBroadcastFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := domain.NewSettlement(uuid.New())
			tt.advance(s)
			s.Fail(errors.New("boom"))

			require.True(t, s.IsAborted())
			require.Equal(t, tt.expected, s.FailedWith)
			require.Equal(t, "boom", s.FailureReason)

			// Aborted is terminal.
			require.ErrorIs(t, s.Sign(), domain.ErrInvalidSettlementTransition)
		})
	}
}

func TestSettlementInvalidTransition(t *testing.T) {
	t.Parallel()

	s := domain.NewSettlement(uuid.New())
	require.ErrorIs(t, s.Broadcast("txid"), domain.ErrInvalidSettlementTransition)
	require.ErrorIs(t, s.Settle(), domain.ErrInvalidSettlementTransition)
}
