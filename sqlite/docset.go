package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/memoracle/memoracle"
)

// Compile-time interface verification.
var _ memoracle.DocsetService = (*DocsetService)(nil)

// DocsetService implements memoracle.DocsetService using SQLite.
type DocsetService struct {
	db *DB
}

// NewDocsetService creates a new DocsetService.
func NewDocsetService(db *DB) *DocsetService {
	return &DocsetService{db: db}
}

// CreateDocset creates a new docset, applying defaults first.
func (s *DocsetService) CreateDocset(ctx context.Context, docset *memoracle.Docset) error {
	docset.ApplyDefaults()
	if err := docset.Validate(); err != nil {
		return err
	}

	docset.ID = uuid.New().String()
	if docset.Status == "" {
		docset.Status = memoracle.DocsetPending
	}
	now := time.Now().UTC()
	docset.CreatedAt = now
	docset.UpdatedAt = now

	allowed, err := json.Marshal(docset.AllowedPaths)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO docsets (id, name, base_url, seed_path, allowed_paths, framework, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, docset.ID, docset.Name, docset.BaseURL, docset.SeedPath, string(allowed), string(docset.Framework),
		string(docset.Status), formatTime(docset.CreatedAt), formatTime(docset.UpdatedAt))

	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return memoracle.Errorf(memoracle.ECONFLICT, "docset for %s already exists", docset.BaseURL)
	}
	return err
}

const docsetColumns = "id, name, base_url, seed_path, allowed_paths, framework, status, created_at, updated_at"

func scanDocset(scan func(dest ...any) error) (*memoracle.Docset, error) {
	var d memoracle.Docset
	var allowed, framework, status, createdAt, updatedAt string

	if err := scan(&d.ID, &d.Name, &d.BaseURL, &d.SeedPath, &allowed, &framework, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(allowed), &d.AllowedPaths); err != nil {
		return nil, err
	}
	d.Framework = memoracle.Framework(framework)
	d.Status = memoracle.DocsetStatus(status)

	var err error
	if d.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDocsetByID retrieves a docset by ID.
func (s *DocsetService) FindDocsetByID(ctx context.Context, id string) (*memoracle.Docset, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+docsetColumns+" FROM docsets WHERE id = ?", id)
	docset, err := scanDocset(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memoracle.Errorf(memoracle.ENOTFOUND, "docset not found")
	}
	return docset, err
}

// FindDocsetByURL retrieves the docset registered for a base URL.
func (s *DocsetService) FindDocsetByURL(ctx context.Context, baseURL string) (*memoracle.Docset, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+docsetColumns+" FROM docsets WHERE base_url = ?", baseURL)
	docset, err := scanDocset(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memoracle.Errorf(memoracle.ENOTFOUND, "no docset for %s", baseURL)
	}
	return docset, err
}

// FindDocsets retrieves docsets matching the filter.
func (s *DocsetService) FindDocsets(ctx context.Context, filter memoracle.DocsetFilter) ([]*memoracle.Docset, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + docsetColumns + " FROM docsets WHERE 1=1")
	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.BaseURL != nil {
		query.WriteString(" AND base_url = ?")
		args = append(args, *filter.BaseURL)
	}
	query.WriteString(" ORDER BY created_at DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docsets []*memoracle.Docset
	for rows.Next() {
		docset, err := scanDocset(rows.Scan)
		if err != nil {
			return nil, err
		}
		docsets = append(docsets, docset)
	}
	return docsets, rows.Err()
}

// UpdateDocset updates an existing docset.
func (s *DocsetService) UpdateDocset(ctx context.Context, id string, upd memoracle.DocsetUpdate) (*memoracle.Docset, error) {
	docset, err := s.FindDocsetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		docset.Name = *upd.Name
	}
	if upd.Status != nil {
		docset.Status = *upd.Status
	}
	if upd.Framework != nil {
		docset.Framework = *upd.Framework
	}
	docset.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE docsets SET name = ?, status = ?, framework = ?, updated_at = ? WHERE id = ?
	`, docset.Name, string(docset.Status), string(docset.Framework), formatTime(docset.UpdatedAt), id)
	if err != nil {
		return nil, err
	}
	return docset, nil
}

// DeleteDocset permanently removes a docset. Pages, chunks and
// keyword-index rows are removed in the same transaction.
func (s *DocsetService) DeleteDocset(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The FTS mirror has no foreign keys; clean it explicitly.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE docset_id = ?", id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM docsets WHERE id = ?", id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return memoracle.Errorf(memoracle.ENOTFOUND, "docset not found")
	}

	return tx.Commit()
}

// IndexStatus aggregates page counts per state and the chunk count.
func (s *DocsetService) IndexStatus(ctx context.Context, docsetID string) (*memoracle.IndexStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM pages WHERE docset_id = ? GROUP BY status
	`, docsetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var status memoracle.IndexStatus
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		status.TotalPages += count
		switch memoracle.PageStatus(state) {
		case memoracle.PagePending:
			status.PendingPages += count
		case memoracle.PageFetching, memoracle.PageFetched, memoracle.PageIndexing:
			status.FetchingPages += count
		case memoracle.PageIndexed:
			status.IndexedPages += count
		case memoracle.PageError:
			status.ErrorPages += count
		case memoracle.PageSkipped:
			status.SkippedPages += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE docset_id = ?", docsetID)
	if err := row.Scan(&status.TotalChunks); err != nil {
		return nil, err
	}

	return &status, nil
}
