package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

const (
	// ListeningPortKey is the port where the gRPC and HTTP interfaces listen on
	ListeningPortKey = "LISTENING_PORT"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// NetworkKey is the bitcoin network the daemon works on
	NetworkKey = "NETWORK"
	// EsploraURLKey is the endpoint of the esplora explorer
	EsploraURLKey = "ESPLORA_URL"
	// OrdURLKey is the endpoint of the ord server used to find out the asset
	// content of outputs
	OrdURLKey = "ORD_URL"
	// ExplorerRequestsPerSecondKey limits the requests made to explorer and
	// ord server
	ExplorerRequestsPerSecondKey = "EXPLORER_REQUESTS_PER_SECOND"
	// EscrowKeyKey is the WIF encoded private key of the escrow
	EscrowKeyKey = "ESCROW_KEY"
	// EscrowAddressTypeKey is the type of the escrow address, either p2tr or p2wpkh
	EscrowAddressTypeKey = "ESCROW_ADDRESS_TYPE"
	// FungibleAssetKey is the name of the rune used as fungible balance
	FungibleAssetKey = "FUNGIBLE_ASSET"
	// FungibleAssetIDKey is the <block>:<tx> id of the fungible rune. If not
	// set, it's fetched from the ord server by name at startup
	FungibleAssetIDKey = "FUNGIBLE_ASSET_ID"
	// UnitPriceKey is the amount of fungible balance a unit is exchanged for
	UnitPriceKey = "UNIT_PRICE"
	// FeeRateKey is the sats per vbyte ratio to use for paying for swaps' network fees
	FeeRateKey = "FEE_RATE"
	// PostageKey is the value in sats of outputs carrying an asset
	PostageKey = "POSTAGE"
	// ReservationExpiryKey is the duration in seconds of lock on unspents we
	// reserve for built swaps, before releasing them
	ReservationExpiryKey = "RESERVATION_EXPIRY"
	// ReservationSweepIntervalKey is the interval in seconds between two
	// releases of expired reservations
	ReservationSweepIntervalKey = "RESERVATION_SWEEP_INTERVAL"
	// ReconcileIntervalKey is the interval in seconds between two
	// reconciliations of the escrow spendable set with the network
	ReconcileIntervalKey = "RECONCILE_INTERVAL"
	// BroadcastMaxAttemptsKey is the max number of broadcast attempts on
	// transient network failures
	BroadcastMaxAttemptsKey = "BROADCAST_MAX_ATTEMPTS"
	// BroadcastRetryBackoffKey is the delay in milliseconds before the first
	// broadcast retry, doubled at every attempt
	BroadcastRetryBackoffKey = "BROADCAST_RETRY_BACKOFF"
	// AllowUnconfirmedKey allows spending of unconfirmed outputs
	AllowUnconfirmedKey = "ALLOW_UNCONFIRMED"
	// CORSAllowedOriginsKey is the list of origins allowed to call the HTTP interface
	CORSAllowedOriginsKey = "CORS_ALLOWED_ORIGINS"
	// EnableProfilerKey enables profiler that can be used to investigate performance issues
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval for printing basic statistics
	StatsIntervalKey = "STATS_INTERVAL"

	DBBadger   = "badger"
	DBInMemory = "inmemory"

	DbLocation       = "db"
	ProfilerLocation = "stats"
)

var (
	vip            *viper.Viper
	defaultDatadir = btcutil.AppDataDir("unitswap", false)

	networks = map[string]*chaincfg.Params{
		chaincfg.MainNetParams.Name:       &chaincfg.MainNetParams,
		chaincfg.TestNet3Params.Name:      &chaincfg.TestNet3Params,
		"testnet":                         &chaincfg.TestNet3Params,
		chaincfg.SigNetParams.Name:        &chaincfg.SigNetParams,
		chaincfg.RegressionNetParams.Name: &chaincfg.RegressionNetParams,
	}
)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("UNITSWAP")
	vip.AutomaticEnv()

	vip.SetDefault(ListeningPortKey, 9945)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(NetworkKey, "mainnet")
	vip.SetDefault(ExplorerRequestsPerSecondKey, 10)
	vip.SetDefault(EscrowAddressTypeKey, "p2tr")
	vip.SetDefault(FeeRateKey, 1)
	vip.SetDefault(PostageKey, 546)
	vip.SetDefault(ReservationExpiryKey, 600)
	vip.SetDefault(ReservationSweepIntervalKey, 10)
	vip.SetDefault(ReconcileIntervalKey, 60)
	vip.SetDefault(BroadcastMaxAttemptsKey, 3)
	vip.SetDefault(BroadcastRetryBackoffKey, 500)
	vip.SetDefault(AllowUnconfirmedKey, true)
	vip.SetDefault(CORSAllowedOriginsKey, "*")
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetUint64(key string) uint64 {
	return vip.GetUint64(key)
}

func GetStringSlice(key string) []string {
	return vip.GetStringSlice(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetSeconds returns the duration expressed in seconds by the given key.
func GetSeconds(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Second
}

// GetMilliseconds returns the duration expressed in milliseconds by the given
// key.
func GetMilliseconds(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Millisecond
}

// GetNetwork returns the chain params of the configured network.
func GetNetwork() *chaincfg.Params {
	return networks[strings.ToLower(GetString(NetworkKey))]
}

// GetFeeRate returns the configured fee rate in sats per vbyte.
func GetFeeRate() decimal.Decimal {
	rate, _ := decimal.NewFromString(GetString(FeeRateKey))
	return rate
}

// GetFungibleAssetID returns the configured id of the fungible rune, the
// zero id if not set.
func GetFungibleAssetID() runestone.RuneID {
	id, _ := runestone.ParseRuneID(GetString(FungibleAssetIDKey))
	return id
}

// GetCORSAllowedOrigins returns the comma separated list of allowed origins.
func GetCORSAllowedOrigins() []string {
	origins := make([]string, 0)
	for _, o := range strings.Split(GetString(CORSAllowedOriginsKey), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	dbType := GetString(DBTypeKey)
	if dbType != DBBadger && dbType != DBInMemory {
		return fmt.Errorf("%s must be either %s or %s", DBTypeKey, DBBadger, DBInMemory)
	}

	if GetNetwork() == nil {
		return fmt.Errorf("unknown network %s", GetString(NetworkKey))
	}

	if GetString(EsploraURLKey) == "" {
		return fmt.Errorf("missing esplora url")
	}
	if GetString(OrdURLKey) == "" {
		return fmt.Errorf("missing ord server url")
	}
	if GetInt(ExplorerRequestsPerSecondKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", ExplorerRequestsPerSecondKey)
	}

	if GetString(EscrowKeyKey) == "" {
		return fmt.Errorf("missing escrow key")
	}
	if _, err := btcutil.DecodeWIF(GetString(EscrowKeyKey)); err != nil {
		return fmt.Errorf("invalid escrow key: %s", err)
	}
	addrType := GetString(EscrowAddressTypeKey)
	if addrType != "p2tr" && addrType != "p2wpkh" {
		return fmt.Errorf("%s must be either p2tr or p2wpkh", EscrowAddressTypeKey)
	}

	if GetString(FungibleAssetKey) == "" {
		return fmt.Errorf("missing fungible asset name")
	}
	if id := GetString(FungibleAssetIDKey); id != "" {
		if _, err := runestone.ParseRuneID(id); err != nil {
			return fmt.Errorf("invalid %s: %s", FungibleAssetIDKey, err)
		}
	}
	if GetInt(UnitPriceKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", UnitPriceKey)
	}

	feeRate, err := decimal.NewFromString(GetString(FeeRateKey))
	if err != nil {
		return fmt.Errorf("invalid %s: %s", FeeRateKey, err)
	}
	if feeRate.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be equal or greater than 1", FeeRateKey)
	}

	if GetInt(PostageKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", PostageKey)
	}

	for _, key := range []string{
		ReservationExpiryKey, ReservationSweepIntervalKey, ReconcileIntervalKey,
		BroadcastMaxAttemptsKey, BroadcastRetryBackoffKey, StatsIntervalKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if GetString(DBTypeKey) == DBBadger {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
			return err
		}
	}

	profilerEnabled := GetBool(EnableProfilerKey)
	if profilerEnabled {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
