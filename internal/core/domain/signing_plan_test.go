package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/core/domain"
)

const sighashAllAnyoneCanPay = 0x81

func TestSigningPlan(t *testing.T) {
	t.Parallel()

	plan := domain.NewSigningPlan(4)
	require.NoError(t, plan.Add(0, domain.SignerValueKey, sighashAllAnyoneCanPay))
	require.NoError(t, plan.Add(2, domain.SignerUnitKey, sighashAllAnyoneCanPay))
	require.NoError(t, plan.Add(1, domain.SignerValueKey, sighashAllAnyoneCanPay))

	require.Equal(t, []int{0, 1}, plan.ValueSignerIndexes())
	require.Equal(t, []int{2}, plan.UnitSignerIndexes())
	require.Equal(t, []int{0, 1, 2}, plan.Indexes())
	require.NoError(t, plan.Validate())
}

func TestFailingSigningPlan(t *testing.T) {
	t.Parallel()

	plan := domain.NewSigningPlan(2)
	require.Error(t, plan.Add(2, domain.SignerValueKey, sighashAllAnyoneCanPay))
	require.Error(t, plan.Add(-1, domain.SignerValueKey, sighashAllAnyoneCanPay))

	require.NoError(t, plan.Add(0, domain.SignerValueKey, sighashAllAnyoneCanPay))
	require.Error(t, plan.Add(0, domain.SignerUnitKey, sighashAllAnyoneCanPay))

	// A plan tampered after creation is caught by Validate.
	plan.Entries[5] = domain.SigningEntry{Signer: domain.SignerUnitKey}
	require.Error(t, plan.Validate())
}
