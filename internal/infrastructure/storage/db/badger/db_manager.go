package dbbadger

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

type repoManager struct {
	unspentStore    *badgerhold.Store
	settlementStore *badgerhold.Store

	unspentRepository    domain.UnspentRepository
	settlementRepository domain.SettlementRepository
}

// NewRepoManager opens (or creates if not exists) the badger stores on disk.
// It expects a base data dir and an optional logger. If the base dir is
// empty the stores are kept in memory.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var unspentDir, settlementDir string
	if len(baseDbDir) > 0 {
		unspentDir = filepath.Join(baseDbDir, "unspents")
		settlementDir = filepath.Join(baseDbDir, "settlements")
	}

	unspentStore, err := createDb(unspentDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening unspents db: %w", err)
	}

	settlementStore, err := createDb(settlementDir, logger)
	if err != nil {
		unspentStore.Close()
		return nil, fmt.Errorf("opening settlements db: %w", err)
	}

	unspentRepo, err := NewUnspentRepositoryImpl(unspentStore)
	if err != nil {
		unspentStore.Close()
		settlementStore.Close()
		return nil, err
	}

	return &repoManager{
		unspentStore:         unspentStore,
		settlementStore:      settlementStore,
		unspentRepository:    unspentRepo,
		settlementRepository: NewSettlementRepositoryImpl(settlementStore),
	}, nil
}

func (d *repoManager) UnspentRepository() domain.UnspentRepository {
	return d.unspentRepository
}

func (d *repoManager) SettlementRepository() domain.SettlementRepository {
	return d.settlementRepository
}

func (d *repoManager) Close() {
	if r, ok := d.unspentRepository.(*unspentRepositoryImpl); ok {
		r.close()
	}
	d.unspentStore.Close()
	d.settlementStore.Close()
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
