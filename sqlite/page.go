package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/memoracle/memoracle"
)

// Compile-time interface verification.
var _ memoracle.PageService = (*PageService)(nil)

// PageService implements memoracle.PageService using SQLite.
type PageService struct {
	db *DB
}

// NewPageService creates a new PageService.
func NewPageService(db *DB) *PageService {
	return &PageService{db: db}
}

// CreatePage creates a new page record.
func (s *PageService) CreatePage(ctx context.Context, page *memoracle.Page) error {
	if err := page.Validate(); err != nil {
		return err
	}

	page.ID = uuid.New().String()
	if page.Status == "" {
		page.Status = memoracle.PagePending
	}
	if page.Path == "" {
		if u, err := url.Parse(page.URL); err == nil {
			page.Path = u.Path
		}
	}
	page.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, docset_id, url, path, section, title, content_hash, status,
			error_message, etag, last_modified, retry_count, depth,
			fetched_at, indexed_at, last_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, page.ID, page.DocsetID, page.URL, page.Path, SectionFromPath(page.Path), page.Title,
		page.ContentHash, string(page.Status), page.ErrorMessage, page.ETag, page.LastModified,
		page.RetryCount, page.Depth, nullableTime(page.FetchedAt), nullableTime(page.IndexedAt),
		nullableTime(page.LastAttemptAt), formatTime(page.CreatedAt))

	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return memoracle.Errorf(memoracle.ECONFLICT, "page %s already exists in docset", page.URL)
	}
	return err
}

const pageColumns = `id, docset_id, url, path, title, content_hash, status, error_message,
	etag, last_modified, retry_count, depth, fetched_at, indexed_at, last_attempt_at, created_at`

func scanPage(scan func(dest ...any) error) (*memoracle.Page, error) {
	var p memoracle.Page
	var status, createdAt string
	var fetchedAt, indexedAt, lastAttemptAt sql.NullString

	if err := scan(&p.ID, &p.DocsetID, &p.URL, &p.Path, &p.Title, &p.ContentHash, &status,
		&p.ErrorMessage, &p.ETag, &p.LastModified, &p.RetryCount, &p.Depth,
		&fetchedAt, &indexedAt, &lastAttemptAt, &createdAt); err != nil {
		return nil, err
	}

	p.Status = memoracle.PageStatus(status)

	var err error
	if p.FetchedAt, err = scanNullableTime(fetchedAt, "fetched_at"); err != nil {
		return nil, err
	}
	if p.IndexedAt, err = scanNullableTime(indexedAt, "indexed_at"); err != nil {
		return nil, err
	}
	if p.LastAttemptAt, err = scanNullableTime(lastAttemptAt, "last_attempt_at"); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPageByID retrieves a page by ID.
func (s *PageService) FindPageByID(ctx context.Context, id string) (*memoracle.Page, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pageColumns+" FROM pages WHERE id = ?", id)
	page, err := scanPage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memoracle.Errorf(memoracle.ENOTFOUND, "page not found")
	}
	return page, err
}

// FindPageByURL retrieves a page by exact URL within a docset.
func (s *PageService) FindPageByURL(ctx context.Context, docsetID, pageURL string) (*memoracle.Page, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE docset_id = ? AND url = ?", docsetID, pageURL)
	page, err := scanPage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memoracle.Errorf(memoracle.ENOTFOUND, "page not found")
	}
	return page, err
}

// FindPages retrieves pages matching the filter, most recently indexed
// first with never-indexed pages last, insertion order breaking ties.
func (s *PageService) FindPages(ctx context.Context, filter memoracle.PageFilter) ([]*memoracle.Page, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + pageColumns + " FROM pages WHERE 1=1")
	if filter.DocsetID != nil {
		query.WriteString(" AND docset_id = ?")
		args = append(args, *filter.DocsetID)
	}
	if filter.Status != nil {
		query.WriteString(" AND status = ?")
		args = append(args, string(*filter.Status))
	}
	query.WriteString(" ORDER BY indexed_at IS NULL, indexed_at DESC, rowid")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*memoracle.Page
	for rows.Next() {
		page, err := scanPage(rows.Scan)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// UpdatePage applies a partial update. Only the provided fields are
// written.
func (s *PageService) UpdatePage(ctx context.Context, id string, upd memoracle.PageUpdate) (*memoracle.Page, error) {
	var sets []string
	var args []any

	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.ContentHash != nil {
		set("content_hash", *upd.ContentHash)
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.ErrorMessage != nil {
		set("error_message", *upd.ErrorMessage)
	}
	if upd.ETag != nil {
		set("etag", *upd.ETag)
	}
	if upd.LastModified != nil {
		set("last_modified", *upd.LastModified)
	}
	if upd.RetryCount != nil {
		set("retry_count", *upd.RetryCount)
	}
	if upd.FetchedAt != nil {
		set("fetched_at", formatTime(*upd.FetchedAt))
	}
	if upd.IndexedAt != nil {
		set("indexed_at", formatTime(*upd.IndexedAt))
	}
	if upd.LastAttemptAt != nil {
		set("last_attempt_at", formatTime(*upd.LastAttemptAt))
	}

	if len(sets) > 0 {
		args = append(args, id)
		result, err := s.db.ExecContext(ctx,
			"UPDATE pages SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, memoracle.Errorf(memoracle.ENOTFOUND, "page not found")
		}
	}

	return s.FindPageByID(ctx, id)
}

// ClaimNextPending atomically transitions the earliest-inserted pending
// page of the docset to fetching, stamping the attempt time.
func (s *PageService) ClaimNextPending(ctx context.Context, docsetID string) (*memoracle.Page, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE pages SET status = ?, last_attempt_at = ?
		WHERE id = (
			SELECT id FROM pages WHERE docset_id = ? AND status = ? ORDER BY rowid LIMIT 1
		) AND status = ?
		RETURNING id
	`, string(memoracle.PageFetching), formatTime(now), docsetID,
		string(memoracle.PagePending), string(memoracle.PagePending))

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memoracle.Errorf(memoracle.ENOTFOUND, "no pending page")
		}
		return nil, err
	}
	return s.FindPageByID(ctx, id)
}

// DeletePage permanently removes a page, its chunks and their
// keyword-index rows.
func (s *PageService) DeletePage(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE page_id = ?", id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return memoracle.Errorf(memoracle.ENOTFOUND, "page not found")
	}
	return tx.Commit()
}

var inFlightStatuses = []string{
	string(memoracle.PageFetching),
	string(memoracle.PageFetched),
	string(memoracle.PageIndexing),
}

// ResetStuckPages moves pages stuck mid-pipeline back to pending,
// incrementing their retry count.
func (s *PageService) ResetStuckPages(ctx context.Context, docsetID string, olderThan time.Time) (int, error) {
	args := []any{string(memoracle.PagePending), docsetID}
	for _, st := range inFlightStatuses {
		args = append(args, st)
	}
	args = append(args, formatTime(olderThan))

	result, err := s.db.ExecContext(ctx, `
		UPDATE pages SET status = ?, retry_count = retry_count + 1
		WHERE docset_id = ? AND status IN (`+placeholders(len(inFlightStatuses))+`)
		AND (last_attempt_at IS NULL OR last_attempt_at < ?)
	`, args...)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// RequeueErrorPages moves error pages with retry count below the limit
// back to pending.
func (s *PageService) RequeueErrorPages(ctx context.Context, docsetID string, maxRetries int) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pages SET status = ?
		WHERE docset_id = ? AND status = ? AND retry_count < ?
	`, string(memoracle.PagePending), docsetID, string(memoracle.PageError), maxRetries)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// FindStuckPages lists pages stuck mid-pipeline past the threshold.
func (s *PageService) FindStuckPages(ctx context.Context, docsetID string, olderThan time.Time) ([]*memoracle.Page, error) {
	args := []any{docsetID}
	for _, st := range inFlightStatuses {
		args = append(args, st)
	}
	args = append(args, formatTime(olderThan))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageColumns+` FROM pages
		WHERE docset_id = ? AND status IN (`+placeholders(len(inFlightStatuses))+`)
		AND (last_attempt_at IS NULL OR last_attempt_at < ?)
		ORDER BY rowid
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*memoracle.Page
	for rows.Next() {
		page, err := scanPage(rows.Scan)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
