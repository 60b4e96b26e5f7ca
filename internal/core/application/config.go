package application

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/application/index"
	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/core/ports"
	dbbadger "github.com/tdex-network/unitswap/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/unitswap/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/unitswap/pkg/runestone"
)

const (
	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

// Config holds everything needed to build the application services. Services
// are created lazily and only once.
type Config struct {
	DBType string
	// DBConfig is the datadir of the badger db, ignored for the inmemory one.
	DBConfig interface{}

	Params    *chaincfg.Params
	Network   ports.SettlementNetwork
	Escrow    ports.EscrowAuthorizer
	Publisher ports.EventPublisher

	UnitPrice             uint64
	Postage               uint64
	FungibleAssetID       runestone.RuneID
	FeeRate               decimal.Decimal
	ReservationExpiry     time.Duration
	SweepInterval         time.Duration
	ReconcileInterval     time.Duration
	AllowUnconfirmed      bool
	BroadcastMaxAttempts  int
	BroadcastRetryBackoff time.Duration

	repo  ports.RepoManager
	index *index.Service
	swap  *swap.Service
}

func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("unsupported db type %s", c.DBType)
	}
	if c.DBType == DBBadger {
		if _, ok := c.DBConfig.(string); !ok {
			return fmt.Errorf("db config must be the datadir path for badger db")
		}
	}
	if c.Network == nil {
		return fmt.Errorf("missing settlement network")
	}
	if c.Escrow == nil {
		return fmt.Errorf("missing escrow authorizer")
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.swapService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RepoManager() ports.RepoManager {
	repo, _ := c.repoManager()
	return repo
}

func (c *Config) IndexService() *index.Service {
	svc, _ := c.indexService()
	return svc
}

func (c *Config) SwapService() *swap.Service {
	svc, _ := c.swapService()
	return svc
}

func (c *Config) repoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		switch c.DBType {
		case DBBadger:
			datadir := c.DBConfig.(string)
			logger := log.New()
			logger.SetLevel(log.WarnLevel)
			repoManager, err := dbbadger.NewRepoManager(datadir, logger)
			if err != nil {
				return nil, err
			}
			c.repo = repoManager
		case DBInMemory:
			c.repo = inmemory.NewRepoManager()
		}
	}
	return c.repo, nil
}

func (c *Config) indexService() (*index.Service, error) {
	if c.index == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		svc, err := index.NewService(repo.UnspentRepository(), c.Publisher, index.Config{
			ReservationExpiry: c.ReservationExpiry,
			SweepInterval:     c.SweepInterval,
			AllowUnconfirmed:  c.AllowUnconfirmed,
		})
		if err != nil {
			return nil, err
		}
		c.index = svc
	}
	return c.index, nil
}

func (c *Config) swapService() (*swap.Service, error) {
	if c.swap == nil {
		indexSvc, err := c.indexService()
		if err != nil {
			return nil, err
		}
		repo, _ := c.repoManager()
		svc, err := swap.NewService(
			indexSvc, c.Network, c.Escrow, repo.SettlementRepository(), c.Publisher,
			swap.Config{
				Params:          c.Params,
				UnitPrice:       c.UnitPrice,
				Postage:         c.Postage,
				FeeRate:         c.FeeRate,
				FungibleAssetID: c.FungibleAssetID,
				Retry: swap.RetryPolicy{
					MaxAttempts: c.BroadcastMaxAttempts,
					Backoff:     c.BroadcastRetryBackoff,
				},
				ReconcileInterval: c.ReconcileInterval,
			},
		)
		if err != nil {
			return nil, err
		}
		c.swap = svc
	}
	return c.swap, nil
}
