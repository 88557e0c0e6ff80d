package sqlite

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/memoracle/memoracle"
)

// Compile-time interface verification.
var _ memoracle.ChunkService = (*ChunkService)(nil)

// ChunkService implements memoracle.ChunkService using SQLite with an
// FTS5 mirror table for keyword search.
type ChunkService struct {
	db *DB

	bootstrapOnce sync.Once
	bootstrapErr  error
}

// NewChunkService creates a new ChunkService.
func NewChunkService(db *DB) *ChunkService {
	return &ChunkService{db: db}
}

// CreateChunks inserts chunks and their FTS mirror rows in a single
// transaction. The mirror denormalizes the page URL and title so keyword
// search returns without joins.
func (s *ChunkService) CreateChunks(ctx context.Context, chunks []*memoracle.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	// All chunks in one call belong to the same page.
	page, err := NewPageService(s.db).FindPageByID(ctx, chunks[0].PageID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, page_id, docset_id, content, heading, start_offset, end_offset, chunk_index, embedding_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.PageID, c.DocsetID, c.Content, c.Heading, c.StartOffset, c.EndOffset,
			c.Index, c.EmbeddingID, formatTime(c.CreatedAt)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks_fts (url, title, heading, content, chunk_id, page_id, docset_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, page.URL, page.Title, c.Heading, c.Content, c.ID, c.PageID, c.DocsetID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const chunkColumns = "id, page_id, docset_id, content, heading, start_offset, end_offset, chunk_index, embedding_id, created_at"

func scanChunk(scan func(dest ...any) error) (*memoracle.Chunk, error) {
	var c memoracle.Chunk
	var createdAt string
	if err := scan(&c.ID, &c.PageID, &c.DocsetID, &c.Content, &c.Heading,
		&c.StartOffset, &c.EndOffset, &c.Index, &c.EmbeddingID, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChunksByPage retrieves a page's chunks in index order.
func (s *ChunkService) FindChunksByPage(ctx context.Context, pageID string) ([]*memoracle.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE page_id = ? ORDER BY chunk_index", pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*memoracle.Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunksByPage removes a page's chunks and their FTS rows in one
// transaction.
func (s *ChunkService) DeleteChunksByPage(ctx context.Context, pageID string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE page_id = ?", pageID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE page_id = ?", pageID); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkChunksEmbedded records each chunk's embedding ID, which equals the
// chunk ID once vectorised.
func (s *ChunkService) MarkChunksEmbedded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE chunks SET embedding_id = ? WHERE id = ?", id, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SearchKeyword runs a prefix-matched FTS5 query filtered by docset,
// ordered by BM25 (best first), mapping BM25 to a bounded score via
// 1 / (1 + max(0, bm25)).
func (s *ChunkService) SearchKeyword(ctx context.Context, query string, docsetIDs []string, topK int) ([]memoracle.KeywordResult, error) {
	s.bootstrapOnce.Do(func() { s.bootstrapErr = s.bootstrapFTS(ctx) })
	if s.bootstrapErr != nil {
		return nil, s.bootstrapErr
	}

	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	var q strings.Builder
	args := []any{match}
	q.WriteString(`
		SELECT chunk_id, page_id, docset_id, url, title, heading, content, bm25(chunks_fts)
		FROM chunks_fts WHERE chunks_fts MATCH ?
	`)
	if len(docsetIDs) > 0 {
		q.WriteString(" AND docset_id IN (" + placeholders(len(docsetIDs)) + ")")
		for _, id := range docsetIDs {
			args = append(args, id)
		}
	}
	q.WriteString(" ORDER BY bm25(chunks_fts) LIMIT ?")
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []memoracle.KeywordResult
	for rows.Next() {
		var r memoracle.KeywordResult
		var bm25 float64
		if err := rows.Scan(&r.ChunkID, &r.PageID, &r.DocsetID, &r.URL, &r.Title,
			&r.Heading, &r.Content, &bm25); err != nil {
			return nil, err
		}
		if bm25 < 0 {
			bm25 = 0
		}
		r.Score = 1 / (1 + bm25)
		results = append(results, r)
	}
	return results, rows.Err()
}

// bootstrapFTS rebuilds the mirror from the chunks table when the mirror
// is empty but chunks exist, e.g. after a schema migration.
func (s *ChunkService) bootstrapFTS(ctx context.Context) error {
	var ftsCount, chunkCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_fts").Scan(&ftsCount); err != nil {
		return err
	}
	if ftsCount > 0 {
		return nil
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&chunkCount); err != nil {
		return err
	}
	if chunkCount == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunks_fts (url, title, heading, content, chunk_id, page_id, docset_id)
		SELECT p.url, p.title, c.heading, c.content, c.id, c.page_id, c.docset_id
		FROM chunks c JOIN pages p ON p.id = c.page_id
	`); err != nil {
		return err
	}
	return tx.Commit()
}

// buildMatchQuery normalizes a user query into an FTS5 MATCH expression:
// lowercase, punctuation stripped, tokens of length <= 1 dropped, a "*"
// appended to each surviving token for prefix matching.
func buildMatchQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, query)

	var terms []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 1 {
			continue
		}
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " ")
}
