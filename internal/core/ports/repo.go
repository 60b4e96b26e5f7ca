package ports

import "github.com/tdex-network/unitswap/internal/core/domain"

// RepoManager holds the repositories of the daemon.
type RepoManager interface {
	UnspentRepository() domain.UnspentRepository
	SettlementRepository() domain.SettlementRepository
	Close()
}
