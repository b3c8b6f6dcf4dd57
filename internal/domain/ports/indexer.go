package ports

import (
	"context"

	"torrentcache/internal/domain"
)

type Indexer interface {
	Search(ctx context.Context, query domain.IndexerQuery) ([]domain.Candidate, error)
}
