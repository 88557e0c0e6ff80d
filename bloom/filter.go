// Package bloom provides the visited-set filter backing crawl frontier
// deduplication. The frontier tests every discovered link against it
// before touching the metadata store, so membership checks stay cheap
// even when a documentation site links to the same page from thousands
// of places.
package bloom

import "github.com/bits-and-blooms/bloom/v3"

// Filter is a Bloom filter keyed by page URL.
type Filter struct {
	f *bloom.BloomFilter
}

// NewFilter creates a filter sized for n expected URLs at the given
// false positive rate. Frontiers size this well above the per-docset
// page cap, because the visited set also absorbs every rejected
// candidate (wrong host, disallowed prefix), not just pages that get
// records.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// Add records a URL as visited.
func (f *Filter) Add(url string) {
	f.f.AddString(url)
}

// Test reports whether the URL may have been visited. A false positive
// makes the crawl silently skip a link, so the rate is chosen small
// relative to the page cap; false negatives cannot occur.
func (f *Filter) Test(url string) bool {
	return f.f.TestString(url)
}

// EstimatedCount returns the approximate number of URLs recorded.
func (f *Filter) EstimatedCount() uint {
	return uint(f.f.ApproximatedSize())
}
