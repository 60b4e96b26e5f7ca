package inmemory

import (
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
)

type RepoManager struct {
	unspentRepository    domain.UnspentRepository
	settlementRepository domain.SettlementRepository
}

func NewRepoManager() ports.RepoManager {
	return &RepoManager{
		unspentRepository:    NewUnspentRepositoryImpl(),
		settlementRepository: NewSettlementRepositoryImpl(),
	}
}

func (d *RepoManager) UnspentRepository() domain.UnspentRepository {
	return d.unspentRepository
}

func (d *RepoManager) SettlementRepository() domain.SettlementRepository {
	return d.settlementRepository
}

func (d *RepoManager) Close() {}
