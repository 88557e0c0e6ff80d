package memoracle

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"
)

// DocsetStatus is the lifecycle state of a docset.
type DocsetStatus string

// Docset lifecycle states.
const (
	DocsetPending  DocsetStatus = "pending"
	DocsetIndexing DocsetStatus = "indexing"
	DocsetReady    DocsetStatus = "ready"
	DocsetError    DocsetStatus = "error"
)

// Docset represents a single documentation source: one site bounded by
// host and allowed path prefixes. A docset owns its pages and a dedicated
// namespace in the vector store.
type Docset struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	BaseURL      string       `json:"baseUrl"`
	SeedPath     string       `json:"seedPath"`
	AllowedPaths []string     `json:"allowedPaths"`
	Framework    Framework    `json:"framework,omitempty"`
	Status       DocsetStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Validate returns an error if the docset contains invalid fields.
func (d *Docset) Validate() error {
	if d.BaseURL == "" {
		return Errorf(EINVALID, "docset base URL required")
	}
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Errorf(EINVALID, "docset base URL must include scheme and host")
	}
	return nil
}

// ApplyDefaults fills derived fields: the name defaults to the base URL
// host, the seed path to "/", and the allowed paths to the directory of
// the seed path ("/" if removing the final segment leaves nothing).
func (d *Docset) ApplyDefaults() {
	if d.SeedPath == "" {
		d.SeedPath = "/"
	}
	if !strings.HasPrefix(d.SeedPath, "/") {
		d.SeedPath = "/" + d.SeedPath
	}
	if d.Name == "" {
		if u, err := url.Parse(d.BaseURL); err == nil {
			d.Name = u.Host
		}
	}
	if len(d.AllowedPaths) == 0 {
		dir := path.Dir(d.SeedPath)
		if dir == "" || dir == "." {
			dir = "/"
		}
		d.AllowedPaths = []string{dir}
	}
}

// Host returns the host of the docset's base URL.
func (d *Docset) Host() string {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// SeedURL returns the absolute URL of the docset's seed page.
func (d *Docset) SeedURL() string {
	return strings.TrimRight(d.BaseURL, "/") + d.SeedPath
}

// Allows reports whether p falls under at least one allowed path prefix.
func (d *Docset) Allows(p string) bool {
	for _, prefix := range d.AllowedPaths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// IndexStatus aggregates per-state page counts and the chunk count for
// one docset.
type IndexStatus struct {
	TotalPages    int `json:"totalPages"`
	PendingPages  int `json:"pendingPages"`
	FetchingPages int `json:"fetchingPages"`
	IndexedPages  int `json:"indexedPages"`
	ErrorPages    int `json:"errorPages"`
	SkippedPages  int `json:"skippedPages"`
	TotalChunks   int `json:"totalChunks"`
}

// DocsetUpdate represents fields that can be updated on a docset.
type DocsetUpdate struct {
	Name      *string       `json:"name"`
	Status    *DocsetStatus `json:"status"`
	Framework *Framework    `json:"framework"`
}

// DocsetFilter represents a filter for FindDocsets.
type DocsetFilter struct {
	ID      *string `json:"id"`
	BaseURL *string `json:"baseUrl"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// DocsetService represents a service for managing docsets.
type DocsetService interface {
	// CreateDocset creates a new docset, applying defaults first.
	CreateDocset(ctx context.Context, docset *Docset) error

	// FindDocsetByID retrieves a docset by ID.
	// Returns ENOTFOUND if the docset does not exist.
	FindDocsetByID(ctx context.Context, id string) (*Docset, error)

	// FindDocsetByURL retrieves the docset registered for a base URL.
	// Returns ENOTFOUND if no docset exists for it.
	FindDocsetByURL(ctx context.Context, baseURL string) (*Docset, error)

	// FindDocsets retrieves docsets matching the filter.
	FindDocsets(ctx context.Context, filter DocsetFilter) ([]*Docset, error)

	// UpdateDocset updates an existing docset.
	// Returns ENOTFOUND if the docset does not exist.
	UpdateDocset(ctx context.Context, id string, upd DocsetUpdate) (*Docset, error)

	// DeleteDocset permanently removes a docset. Pages, chunks and
	// keyword-index rows cascade.
	// Returns ENOTFOUND if the docset does not exist.
	DeleteDocset(ctx context.Context, id string) error

	// IndexStatus aggregates page counts per state and the chunk count.
	IndexStatus(ctx context.Context, docsetID string) (*IndexStatus, error)
}
