package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/unitswap/internal/config"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

func setRequiredEnv(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, &chaincfg.RegressionNetParams, true)
	require.NoError(t, err)

	t.Setenv("UNITSWAP_DATADIR", t.TempDir())
	t.Setenv("UNITSWAP_NETWORK", "regtest")
	t.Setenv("UNITSWAP_ESPLORA_URL", "http://localhost:3000")
	t.Setenv("UNITSWAP_ORD_URL", "http://localhost:8080")
	t.Setenv("UNITSWAP_ESCROW_KEY", wif.String())
	t.Setenv("UNITSWAP_FUNGIBLE_ASSET", "UNIT•COIN")
	t.Setenv("UNITSWAP_UNIT_PRICE", "100000")
}

func TestInitConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("UNITSWAP_FEE_RATE", "2.5")
	t.Setenv("UNITSWAP_CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com")

	require.NoError(t, config.InitConfig())

	require.Equal(t, &chaincfg.RegressionNetParams, config.GetNetwork())
	require.Equal(t, "2.5", config.GetFeeRate().String())
	require.Equal(t, uint64(100000), config.GetUint64(config.UnitPriceKey))
	require.Equal(t, uint64(546), config.GetUint64(config.PostageKey))
	require.Equal(t, 10*time.Minute, config.GetSeconds(config.ReservationExpiryKey))
	require.Equal(t, 500*time.Millisecond, config.GetMilliseconds(config.BroadcastRetryBackoffKey))
	require.Equal(t, []string{"http://a.com", "http://b.com"}, config.GetCORSAllowedOrigins())
	require.True(t, config.GetBool(config.AllowUnconfirmedKey))
	require.True(t, config.GetFungibleAssetID().IsZero())

	_, err := os.Stat(filepath.Join(config.GetDatadir(), config.DbLocation))
	require.NoError(t, err)
}

func TestInitConfigFungibleAssetID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("UNITSWAP_FUNGIBLE_ASSET_ID", "840000:3")

	require.NoError(t, config.InitConfig())
	require.Equal(t, runestone.RuneID{Block: 840000, Tx: 3}, config.GetFungibleAssetID())
}

func TestInitConfigInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown network", "UNITSWAP_NETWORK", "liquid"},
		{"missing esplora", "UNITSWAP_ESPLORA_URL", ""},
		{"missing ord", "UNITSWAP_ORD_URL", ""},
		{"invalid escrow key", "UNITSWAP_ESCROW_KEY", "notawif"},
		{"invalid address type", "UNITSWAP_ESCROW_ADDRESS_TYPE", "p2pkh"},
		{"missing fungible asset", "UNITSWAP_FUNGIBLE_ASSET", ""},
		{"invalid fungible asset id", "UNITSWAP_FUNGIBLE_ASSET_ID", "840000"},
		{"zero unit price", "UNITSWAP_UNIT_PRICE", "0"},
		{"low fee rate", "UNITSWAP_FEE_RATE", "0.5"},
		{"invalid fee rate", "UNITSWAP_FEE_RATE", "fast"},
		{"unknown db", "UNITSWAP_DB_TYPE", "postgres"},
		{"zero attempts", "UNITSWAP_BROADCAST_MAX_ATTEMPTS", "0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)
			require.Error(t, config.InitConfig())
		})
	}
}
