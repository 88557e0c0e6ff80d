package crawl

import (
	"context"
	"sort"

	"github.com/memoracle/memoracle"
)

// Clamping bounds for caller-supplied search knobs.
const (
	maxTopK        = 100
	maxInternalK   = 1000
	minBudgetSlack = 200
)

// Compile-time interface verification.
var _ memoracle.Searcher = (*Engine)(nil)

// Search answers a query with snippets fused from dense and lexical
// retrieval, shaped by the diversity and budget filters.
func (e *Engine) Search(ctx context.Context, query string, opts memoracle.SearchOptions) ([]memoracle.SearchResult, error) {
	if query == "" {
		return nil, memoracle.Errorf(memoracle.EINVALID, "query required")
	}

	topK := clampInt(opts.TopK, 1, maxTopK, 10)
	minScore := clampFloat(opts.MinScore, 0, 1)
	maxChunksPerPage := clampInt(opts.MaxChunksPerPage, 1, 20, e.Options.Retrieval.MaxChunksPerPage)
	maxTotalChars := opts.MaxTotalChars
	if maxTotalChars <= 0 {
		maxTotalChars = e.Options.Retrieval.MaxTotalChars
	}

	hybrid := e.Options.Hybrid
	vectorTopK := clampInt(hybrid.VectorTopK, 1, maxInternalK, 50)
	keywordTopK := clampInt(hybrid.KeywordTopK, 1, maxInternalK, 50)
	alpha := clampFloat(hybrid.Alpha, 0, 1)
	minKeywordScore := clampFloat(hybrid.MinKeywordScore, 0, 1)

	namespaces := opts.DocsetIDs
	if len(namespaces) == 0 {
		docsets, err := e.Docsets.FindDocsets(ctx, memoracle.DocsetFilter{})
		if err != nil {
			return nil, err
		}
		for _, d := range docsets {
			namespaces = append(namespaces, d.ID)
		}
	}
	if len(namespaces) == 0 {
		return nil, nil
	}

	queryVector, err := e.Embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, err
	}

	var vectorMatches []memoracle.VectorMatch
	for _, ns := range namespaces {
		// Init is idempotent and loads persisted namespaces after a
		// restart.
		if err := e.Vectors.Init(ctx, ns); err != nil {
			return nil, err
		}
		matches, err := e.Vectors.Search(ctx, ns, queryVector, vectorTopK, minScore)
		if err != nil {
			if memoracle.ErrorCode(err) == memoracle.ENOTFOUND {
				continue
			}
			return nil, err
		}
		vectorMatches = append(vectorMatches, matches...)
	}
	sort.SliceStable(vectorMatches, func(i, j int) bool {
		return vectorMatches[i].Score > vectorMatches[j].Score
	})
	if len(vectorMatches) > vectorTopK {
		vectorMatches = vectorMatches[:vectorTopK]
	}

	var merged []memoracle.SearchResult
	if hybrid.Enabled {
		keywordResults, err := e.Chunks.SearchKeyword(ctx, query, opts.DocsetIDs, keywordTopK)
		if err != nil {
			return nil, err
		}
		merged = fuse(vectorMatches, keywordResults, alpha, minKeywordScore)
	} else {
		merged = make([]memoracle.SearchResult, 0, len(vectorMatches))
		for _, m := range vectorMatches {
			merged = append(merged, memoracle.SearchResult{
				ChunkID:     m.ID,
				PageID:      m.Metadata.PageID,
				DocsetID:    m.Metadata.DocsetID,
				URL:         m.Metadata.URL,
				Title:       m.Metadata.Title,
				Heading:     m.Metadata.Heading,
				Content:     m.Metadata.Content,
				Score:       m.Score,
				VectorScore: m.Score,
			})
		}
	}

	diverse := diversityFilter(merged, topK, maxChunksPerPage)
	return e.budgetFilter(diverse, maxTotalChars, opts.FormatSnippets), nil
}

// fuse merges vector and keyword results by chunk ID, scoring each
// chunk alpha*vector + (1-alpha)*keyword with both components clamped
// to [0, 1].
func fuse(vectorMatches []memoracle.VectorMatch, keywordResults []memoracle.KeywordResult, alpha, minKeywordScore float32) []memoracle.SearchResult {
	byChunk := make(map[string]*memoracle.SearchResult)
	order := make([]string, 0, len(vectorMatches)+len(keywordResults))

	for _, m := range vectorMatches {
		if _, ok := byChunk[m.ID]; ok {
			continue
		}
		byChunk[m.ID] = &memoracle.SearchResult{
			ChunkID:     m.ID,
			PageID:      m.Metadata.PageID,
			DocsetID:    m.Metadata.DocsetID,
			URL:         m.Metadata.URL,
			Title:       m.Metadata.Title,
			Heading:     m.Metadata.Heading,
			Content:     m.Metadata.Content,
			VectorScore: m.Score,
		}
		order = append(order, m.ID)
	}

	for _, k := range keywordResults {
		score := float32(k.Score)
		if score < minKeywordScore {
			continue
		}
		if existing, ok := byChunk[k.ChunkID]; ok {
			if score > existing.KeywordScore {
				existing.KeywordScore = score
			}
			continue
		}
		byChunk[k.ChunkID] = &memoracle.SearchResult{
			ChunkID:      k.ChunkID,
			PageID:       k.PageID,
			DocsetID:     k.DocsetID,
			URL:          k.URL,
			Title:        k.Title,
			Heading:      k.Heading,
			Content:      k.Content,
			KeywordScore: score,
		}
		order = append(order, k.ChunkID)
	}

	results := make([]memoracle.SearchResult, 0, len(order))
	for _, id := range order {
		r := byChunk[id]
		r.Score = alpha*clampFloat(r.VectorScore, 0, 1) + (1-alpha)*clampFloat(r.KeywordScore, 0, 1)
		results = append(results, *r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// diversityFilter admits results in score order, allowing at most
// maxChunksPerPage chunks per (docset, page), stopping at topK.
func diversityFilter(results []memoracle.SearchResult, topK, maxChunksPerPage int) []memoracle.SearchResult {
	type pageKey struct{ docsetID, pageID string }
	perPage := make(map[pageKey]int)

	admitted := make([]memoracle.SearchResult, 0, topK)
	for _, r := range results {
		if len(admitted) >= topK {
			break
		}
		key := pageKey{r.DocsetID, r.PageID}
		if perPage[key] >= maxChunksPerPage {
			continue
		}
		perPage[key]++
		admitted = append(admitted, r)
	}
	return admitted
}

// budgetFilter admits results in score order while the running
// character total stays within budget. When the next result would
// overflow but at least 200 characters of budget remain and snippets
// are on, a truncated snippet sized to the remainder is included.
func (e *Engine) budgetFilter(results []memoracle.SearchResult, maxTotalChars int, formatSnippets bool) []memoracle.SearchResult {
	snippetBudget := e.Options.Retrieval.SnippetMaxChars
	if snippetBudget <= 0 {
		snippetBudget = 2000
	}

	admitted := make([]memoracle.SearchResult, 0, len(results))
	total := 0

	for _, r := range results {
		if formatSnippets {
			r.Snippet = e.formatSnippet(&r, snippetBudget)
		}

		cost := len(r.Content)
		if r.Snippet != nil {
			cost = r.Snippet.CharCount
		}

		if total+cost <= maxTotalChars || len(admitted) == 0 {
			admitted = append(admitted, r)
			total += cost
			continue
		}

		// The next result overflows; squeeze a smaller snippet into
		// whatever budget remains, then stop.
		if remaining := maxTotalChars - total; formatSnippets && remaining >= minBudgetSlack {
			r.Snippet = e.formatSnippet(&r, remaining)
			admitted = append(admitted, r)
		}
		break
	}
	return admitted
}

func clampInt(v, lo, hi, fallback int) int {
	if v == 0 {
		v = fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
