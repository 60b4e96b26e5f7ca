package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/config"
	"github.com/tdex-network/unitswap/internal/core/application"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/internal/infrastructure/escrow"
	"github.com/tdex-network/unitswap/internal/infrastructure/network/esplora"
	"github.com/tdex-network/unitswap/internal/infrastructure/network/ord"
	"github.com/tdex-network/unitswap/internal/infrastructure/pubsub"
	grpcinterface "github.com/tdex-network/unitswap/internal/interfaces/grpc"
	"github.com/tdex-network/unitswap/pkg/explorer"
	esploraexplorer "github.com/tdex-network/unitswap/pkg/explorer/esplora"
	"github.com/tdex-network/unitswap/pkg/runestone"
	"github.com/tdex-network/unitswap/pkg/stats"
)

const startTimeout = 2 * time.Minute

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	params := config.GetNetwork()
	requestsPerSecond := config.GetInt(config.ExplorerRequestsPerSecondKey)

	explorerSvc, err := esploraexplorer.NewService(
		config.GetString(config.EsploraURLKey), requestsPerSecond,
	)
	if err != nil {
		log.WithError(err).Fatal("error while connecting to esplora")
	}
	ordClient, err := ord.NewClient(config.GetString(config.OrdURLKey), requestsPerSecond)
	if err != nil {
		log.WithError(err).Fatal("error while connecting to ord")
	}
	network, err := newSettlementNetwork(explorerSvc, ordClient, params)
	if err != nil {
		log.WithError(err).Fatal("error while setting up settlement network")
	}
	runeID, err := fungibleAssetID(ordClient)
	if err != nil {
		log.WithError(err).Fatal("error while resolving fungible asset id")
	}

	delegation, err := escrow.NewKeyDelegation(
		config.GetString(config.EscrowKeyKey),
		config.GetString(config.EscrowAddressTypeKey),
		params,
	)
	if err != nil {
		log.WithError(err).Fatal("invalid escrow key")
	}

	origins := config.GetCORSAllowedOrigins()
	events := pubsub.NewService(checkOrigin(origins))

	appConfig := &application.Config{
		DBType:                config.GetString(config.DBTypeKey),
		DBConfig:              filepath.Join(config.GetDatadir(), config.DbLocation),
		Params:                params,
		Network:               network,
		Escrow:                delegation,
		Publisher:             events,
		UnitPrice:             config.GetUint64(config.UnitPriceKey),
		Postage:               config.GetUint64(config.PostageKey),
		FungibleAssetID:       runeID,
		FeeRate:               config.GetFeeRate(),
		ReservationExpiry:     config.GetSeconds(config.ReservationExpiryKey),
		SweepInterval:         config.GetSeconds(config.ReservationSweepIntervalKey),
		ReconcileInterval:     config.GetSeconds(config.ReconcileIntervalKey),
		AllowUnconfirmed:      config.GetBool(config.AllowUnconfirmedKey),
		BroadcastMaxAttempts:  config.GetInt(config.BroadcastMaxAttemptsKey),
		BroadcastRetryBackoff: config.GetMilliseconds(config.BroadcastRetryBackoffKey),
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid application config")
	}
	repoManager := appConfig.RepoManager()
	defer repoManager.Close()

	swapSvc := appConfig.SwapService()
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	err = swapSvc.Start(ctx)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("error while starting swap service")
	}
	defer swapSvc.Stop()

	svc, err := grpcinterface.NewService(grpcinterface.ServiceOpts{
		Address:        fmt.Sprintf(":%d", config.GetInt(config.ListeningPortKey)),
		SwapSvc:        swapSvc,
		Events:         events,
		AllowedOrigins: origins,
	})
	if err != nil {
		log.WithError(err).Fatal("error while setting up interfaces")
	}
	if err := svc.Start(); err != nil {
		log.WithError(err).Fatal("error while starting interfaces")
	}
	defer svc.Stop()
	defer events.Close()

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	if config.GetBool(config.EnableProfilerKey) {
		stats.EnableMemoryStatistics(
			statsCtx, config.GetSeconds(config.StatsIntervalKey), config.GetDatadir(),
		)
	}

	log.Infof(
		"unitswap daemon started on %s, escrow address %s", params.Name, delegation.Address(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	<-sigChan

	log.Info("shutting down daemon")
}

// newSettlementNetwork returns the esplora network decorated with the asset
// tags reported by the ord server.
func newSettlementNetwork(
	explorerSvc explorer.Service, ordClient *ord.Client, params *chaincfg.Params,
) (ports.SettlementNetwork, error) {
	chain, err := esplora.NewNetwork(explorerSvc, params)
	if err != nil {
		return nil, err
	}
	return ord.NewNetwork(chain, ordClient, config.GetString(config.FungibleAssetKey))
}

// fungibleAssetID returns the configured rune id, or looks it up by name on
// the ord server.
func fungibleAssetID(ordClient *ord.Client) (runestone.RuneID, error) {
	if id := config.GetFungibleAssetID(); !id.IsZero() {
		return id, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	name := config.GetString(config.FungibleAssetKey)
	id, err := ord.ResolveRuneID(ctx, ordClient, name)
	if err != nil {
		return runestone.RuneID{}, err
	}
	log.Infof("fungible asset %s has id %s", name, id)
	return id, nil
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
