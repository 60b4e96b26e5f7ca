package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/core/domain"
)

func TestConfirmUnspent(t *testing.T) {
	t.Parallel()

	u := domain.Unspent{}
	require.False(t, u.IsConfirmed())

	u.Confirm()
	require.True(t, u.IsConfirmed())
}

func TestLockUnlockUnspent(t *testing.T) {
	t.Parallel()

	u := domain.Unspent{}
	require.False(t, u.IsLocked())

	reservationID := uuid.New()
	err := u.Lock(&reservationID)
	require.NoError(t, err)
	require.True(t, u.IsLocked())

	u.Unlock()
	require.False(t, u.IsLocked())
	require.Nil(t, u.LockedBy)
}

func TestFailingLockUnspent(t *testing.T) {
	t.Parallel()

	u := domain.Unspent{}

	reservationID := uuid.New()
	err := u.Lock(&reservationID)
	require.NoError(t, err)

	err = u.Lock(&reservationID)
	require.NoError(t, err)

	otherReservationID := uuid.New()
	err = u.Lock(&otherReservationID)
	require.ErrorIs(t, err, domain.ErrUnspentAlreadyLocked)
}

func TestIsSelectable(t *testing.T) {
	t.Parallel()

	lockID := uuid.New()
	tests := []struct {
		name             string
		unspent          domain.Unspent
		allowUnconfirmed bool
		expected         bool
	}{
		{
			name:     "confirmed",
			unspent:  domain.Unspent{Confirmed: true, Asset: domain.Fungible(10)},
			expected: true,
		},
		{
			name:     "unconfirmed",
			unspent:  domain.Unspent{Asset: domain.Fungible(10)},
			expected: false,
		},
		{
			name:             "unconfirmed allowed",
			unspent:          domain.Unspent{Asset: domain.Unique("abc")},
			allowUnconfirmed: true,
			expected:         true,
		},
		{
			name: "locked",
			unspent: domain.Unspent{
				Confirmed: true, Locked: true, LockedBy: &lockID,
			},
			expected: false,
		},
		{
			name:     "foreign asset",
			unspent:  domain.Unspent{Confirmed: true, Asset: domain.Foreign()},
			expected: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.unspent.IsSelectable(tt.allowUnconfirmed))
		})
	}
}

func TestSortBySequence(t *testing.T) {
	t.Parallel()

	unspents := []domain.Unspent{
		{TxID: "c", Sequence: 3},
		{TxID: "a", Sequence: 1},
		{TxID: "b", Sequence: 2},
	}
	domain.SortBySequence(unspents)

	require.Equal(t, "a", unspents[0].TxID)
	require.Equal(t, "b", unspents[1].TxID)
	require.Equal(t, "c", unspents[2].TxID)
	require.Equal(t, uint64(0), domain.TotalFungible(unspents))
}

func TestParseUnspentKey(t *testing.T) {
	t.Parallel()

	txid := "0000000000000000000000000000000000000000000000000000000000000001"
	key, err := domain.ParseUnspentKey(txid + ":3")
	require.NoError(t, err)
	require.Equal(t, domain.UnspentKey{TxID: txid, VOut: 3}, key)
	require.Equal(t, txid+":3", key.String())

	for _, invalid := range []string{"", txid, "abc:1", txid + ":-1", txid + ":1:2"} {
		_, err := domain.ParseUnspentKey(invalid)
		require.Error(t, err, invalid)
	}
}
