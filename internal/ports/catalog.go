package ports

import (
	"context"

	"github.com/bft-labs/serially/internal/domain"
)

// CatalogReader provides the inventory of artifacts and their classes.
type CatalogReader interface {
	// Rows returns every (artifact, class) pair, ordered by artifact
	// insertion and then class insertion. Returns domain.ErrCatalogNotFound
	// when the inventory does not exist.
	Rows(ctx context.Context) ([]domain.CatalogRow, error)
}
