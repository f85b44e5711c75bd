package ports

import "github.com/lastword-games/roundd/internal/core/domain"

type RepoManager interface {
	Rounds() domain.RoundRepository
	Close()
}
