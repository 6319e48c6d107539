package skald

import "context"

type (
	// TextMatch is a free-text predicate over a set of columns.
	TextMatch struct {
		Columns []string
		Term    string
	}

	// Query describes one bounded collection read. Zero-value means
	// "everything", ordered newest first.
	Query struct {
		Pagination

		// Column equality predicates, ANDed together
		Filter map[string]any

		Match *TextMatch
	}
)

// Store is the document-store collaborator: plain persistence with no
// caching and no cross-entity transactions. Implementations must be safe
// for concurrent use.
type Store interface {
	Create(ctx context.Context, value any) error
	Get(ctx context.Context, dest any, id ResourceID) (bool, error)

	// Patch applies only the given fields to the record with the given id,
	// returning false if no such record exists.
	Patch(ctx context.Context, model any, id ResourceID, fields map[string]any) (bool, error)
	Delete(ctx context.Context, model any, id ResourceID) (bool, error)

	Find(ctx context.Context, dest any, query Query) error
	Count(ctx context.Context, model any, query Query) (int64, error)

	FindOne(ctx context.Context, dest any, query Query) (bool, error)

	Ping(ctx context.Context) error
}
