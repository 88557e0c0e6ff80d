// Package crawl provides the indexing-and-retrieval engine: the crawl
// frontier, the per-docset worker pool, the page pipeline, crash
// recovery, refresh, and hybrid search with diversity and budget
// shaping.
package crawl

import (
	"container/heap"
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/bloom"
)

// Frontier sizing for the visited-set filter.
const (
	frontierExpectedURLs      = 100000
	frontierFalsePositiveRate = 0.01
)

// DefaultMaxPages caps the number of pages created per docset.
const DefaultMaxPages = 1000

// Compile-time interface verification.
var _ memoracle.Frontier = (*Frontier)(nil)

// Frontier is the per-docset queue of discovered-but-unfetched URLs. It
// enforces host and path-prefix confinement and the docset page cap,
// creating pending page records for accepted URLs. It is safe for
// concurrent use.
type Frontier struct {
	pages    memoracle.PageService
	maxPages int

	mu      sync.Mutex
	visited *bloom.Filter
	queue   *itemHeap
	seq     int
	created int // pages created through this frontier
	known   int // page records observed at hydration
}

// NewFrontier creates a frontier for one docset. maxPages <= 0 selects
// DefaultMaxPages.
func NewFrontier(pages memoracle.PageService, maxPages int) *Frontier {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	h := &itemHeap{}
	heap.Init(h)
	return &Frontier{
		pages:    pages,
		maxPages: maxPages,
		visited:  bloom.NewFilter(frontierExpectedURLs, frontierFalsePositiveRate),
		queue:    h,
	}
}

// DiscoverLinks filters candidates and creates pending page records for
// the survivors, enqueuing them at depth+1. Returns the number enqueued.
func (f *Frontier) DiscoverLinks(ctx context.Context, docset *memoracle.Docset, fromURL string, candidates []string, depth int) (int, error) {
	host := docset.Host()
	enqueued := 0

	for _, candidate := range candidates {
		normalized := stripFragment(candidate)
		if normalized == "" {
			continue
		}

		f.mu.Lock()
		seen := f.visited.Test(normalized)
		if !seen {
			f.visited.Add(normalized)
		}
		full := f.created+f.known >= f.maxPages
		f.mu.Unlock()

		if seen {
			continue
		}
		if full {
			return enqueued, nil
		}

		u, err := url.Parse(normalized)
		if err != nil {
			continue
		}
		if u.Host != host || !docset.Allows(u.Path) {
			continue
		}

		// Skip URLs that already have a page record.
		if _, err := f.pages.FindPageByURL(ctx, docset.ID, normalized); err == nil {
			continue
		} else if memoracle.ErrorCode(err) != memoracle.ENOTFOUND {
			return enqueued, err
		}

		page := &memoracle.Page{
			DocsetID: docset.ID,
			URL:      normalized,
			Path:     u.Path,
			Depth:    depth + 1,
			Status:   memoracle.PagePending,
		}
		if err := f.pages.CreatePage(ctx, page); err != nil {
			// A concurrent worker created it first; not a failure.
			if memoracle.ErrorCode(err) == memoracle.ECONFLICT {
				continue
			}
			return enqueued, err
		}

		f.mu.Lock()
		f.created++
		heap.Push(f.queue, frontierEntry{
			item: memoracle.FrontierItem{URL: normalized, Depth: depth + 1, From: fromURL},
			seq:  f.seq,
		})
		f.seq++
		f.mu.Unlock()
		enqueued++
	}
	return enqueued, nil
}

// Next pops the queued item with the smallest depth, insertion order
// breaking ties.
func (f *Frontier) Next() (memoracle.FrontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queue.Len() == 0 {
		return memoracle.FrontierItem{}, false
	}
	entry, _ := heap.Pop(f.queue).(frontierEntry)
	return entry.item, true
}

// LoadPending hydrates the queue and the visited set from pending page
// records, for resumption after a restart.
func (f *Frontier) LoadPending(ctx context.Context, docsetID string) (int, error) {
	status := memoracle.PagePending
	pages, err := f.pages.FindPages(ctx, memoracle.PageFilter{DocsetID: &docsetID, Status: &status})
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	loaded := 0
	for _, page := range pages {
		if f.visited.Test(page.URL) {
			continue
		}
		f.visited.Add(page.URL)
		f.known++
		heap.Push(f.queue, frontierEntry{
			item: memoracle.FrontierItem{URL: page.URL, Depth: page.Depth},
			seq:  f.seq,
		})
		f.seq++
		loaded++
	}
	return loaded, nil
}

// Len returns the number of queued items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

func stripFragment(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if idx := strings.Index(rawURL, "#"); idx != -1 {
		rawURL = rawURL[:idx]
	}
	return rawURL
}

// frontierEntry orders items by depth, then insertion order.
type frontierEntry struct {
	item memoracle.FrontierItem
	seq  int
}

type itemHeap []frontierEntry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Depth != h[j].item.Depth {
		return h[i].item.Depth < h[j].item.Depth
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	entry, _ := x.(frontierEntry)
	*h = append(*h, entry)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
