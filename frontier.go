package memoracle

import "context"

// FrontierItem is one discovered-but-unfetched URL.
type FrontierItem struct {
	URL   string
	Depth int
	From  string
}

// Frontier is the per-docset queue of URLs discovered during extraction
// but not yet fetched. It enforces host and path-prefix confinement and
// the docset page cap.
type Frontier interface {
	// DiscoverLinks filters candidates against the docset's host,
	// allowed prefixes, the visited set, existing page records and the
	// page cap, creates pending page records for survivors, and
	// enqueues them at depth+1. Returns the number enqueued.
	DiscoverLinks(ctx context.Context, docset *Docset, fromURL string, candidates []string, depth int) (int, error)

	// Next pops the queued item with the smallest depth, insertion order
	// breaking ties. The bool result is false when the queue is empty.
	Next() (FrontierItem, bool)

	// LoadPending hydrates the queue from pending page records, for
	// resumption after a restart.
	LoadPending(ctx context.Context, docsetID string) (int, error)

	// Len returns the number of queued items.
	Len() int
}
