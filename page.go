package memoracle

import (
	"context"
	"time"
)

// PageStatus is the lifecycle state of a page.
type PageStatus string

// Page lifecycle states.
const (
	PagePending  PageStatus = "pending"
	PageFetching PageStatus = "fetching"
	PageFetched  PageStatus = "fetched"
	PageIndexing PageStatus = "indexing"
	PageIndexed  PageStatus = "indexed"
	PageError    PageStatus = "error"
	PageSkipped  PageStatus = "skipped"
)

// Page represents a single fetched URL under a docset.
type Page struct {
	ID            string     `json:"id"`
	DocsetID      string     `json:"docsetId"`
	URL           string     `json:"url"`
	Path          string     `json:"path"`
	Title         string     `json:"title,omitempty"`
	ContentHash   string     `json:"contentHash,omitempty"`
	Status        PageStatus `json:"status"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	ETag          string     `json:"etag,omitempty"`
	LastModified  string     `json:"lastModified,omitempty"`
	RetryCount    int        `json:"retryCount"`
	Depth         int        `json:"depth"`
	FetchedAt     *time.Time `json:"fetchedAt,omitempty"`
	IndexedAt     *time.Time `json:"indexedAt,omitempty"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Validate returns an error if the page contains invalid fields.
func (p *Page) Validate() error {
	if p.DocsetID == "" {
		return Errorf(EINVALID, "page docset ID required")
	}
	if p.URL == "" {
		return Errorf(EINVALID, "page URL required")
	}
	return nil
}

// PageUpdate represents fields that can be updated on a page.
// Only non-nil fields are written.
type PageUpdate struct {
	Title         *string     `json:"title"`
	ContentHash   *string     `json:"contentHash"`
	Status        *PageStatus `json:"status"`
	ErrorMessage  *string     `json:"errorMessage"`
	ETag          *string     `json:"etag"`
	LastModified  *string     `json:"lastModified"`
	RetryCount    *int        `json:"retryCount"`
	FetchedAt     *time.Time  `json:"fetchedAt"`
	IndexedAt     *time.Time  `json:"indexedAt"`
	LastAttemptAt *time.Time  `json:"lastAttemptAt"`
}

// PageFilter represents a filter for FindPages.
type PageFilter struct {
	DocsetID *string     `json:"docsetId"`
	Status   *PageStatus `json:"status"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// PageService represents a service for managing pages.
type PageService interface {
	// CreatePage creates a new page record.
	// Returns ECONFLICT if the URL already exists within the docset.
	CreatePage(ctx context.Context, page *Page) error

	// FindPageByID retrieves a page by ID.
	// Returns ENOTFOUND if the page does not exist.
	FindPageByID(ctx context.Context, id string) (*Page, error)

	// FindPageByURL retrieves a page by exact URL within a docset.
	// Returns ENOTFOUND if the page does not exist.
	FindPageByURL(ctx context.Context, docsetID, url string) (*Page, error)

	// FindPages retrieves pages matching the filter, most recently
	// indexed first with never-indexed pages last.
	FindPages(ctx context.Context, filter PageFilter) ([]*Page, error)

	// UpdatePage applies a partial update. Only the provided fields are
	// written. Returns ENOTFOUND if the page does not exist.
	UpdatePage(ctx context.Context, id string, upd PageUpdate) (*Page, error)

	// ClaimNextPending atomically transitions the earliest-inserted
	// pending page of the docset to fetching, stamping LastAttemptAt,
	// and returns it. Returns ENOTFOUND when no pending page remains.
	ClaimNextPending(ctx context.Context, docsetID string) (*Page, error)

	// DeletePage permanently removes a page and its chunks.
	// Returns ENOTFOUND if the page does not exist.
	DeletePage(ctx context.Context, id string) error

	// ResetStuckPages moves pages stuck in fetching/fetched/indexing
	// whose last attempt is unset or older than the threshold back to
	// pending, incrementing their retry count. Returns the number of
	// pages reset.
	ResetStuckPages(ctx context.Context, docsetID string, olderThan time.Time) (int, error)

	// RequeueErrorPages moves error pages with retry count below the
	// limit back to pending. Returns the number of pages requeued.
	RequeueErrorPages(ctx context.Context, docsetID string, maxRetries int) (int, error)

	// FindStuckPages lists pages in fetching/fetched/indexing whose last
	// attempt is unset or older than the threshold.
	FindStuckPages(ctx context.Context, docsetID string, olderThan time.Time) ([]*Page, error)
}
