package crawl

import (
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMatch(id, pageID string, score float32) memoracle.VectorMatch {
	return memoracle.VectorMatch{
		ID:    id,
		Score: score,
		Metadata: memoracle.VectorMetadata{
			DocsetID: "d1",
			PageID:   pageID,
			ChunkID:  id,
			URL:      "https://docs.example.com/" + pageID,
			Content:  "content " + id,
		},
	}
}

func keywordResult(id, pageID string, score float64) memoracle.KeywordResult {
	return memoracle.KeywordResult{
		ChunkID:  id,
		PageID:   pageID,
		DocsetID: "d1",
		URL:      "https://docs.example.com/" + pageID,
		Content:  "content " + id,
		Score:    score,
	}
}

func TestFuse_combines_scores(t *testing.T) {
	t.Parallel()

	results := fuse(
		[]memoracle.VectorMatch{vectorMatch("c1", "p1", 0.8)},
		[]memoracle.KeywordResult{keywordResult("c1", "p1", 0.5)},
		0.7, 0,
	)

	require.Len(t, results, 1)
	assert.InDelta(t, 0.7*0.8+0.3*0.5, float64(results[0].Score), 1e-6)
	assert.InDelta(t, 0.8, float64(results[0].VectorScore), 1e-6)
	assert.InDelta(t, 0.5, float64(results[0].KeywordScore), 1e-6)
}

func TestFuse_keyword_only_results_join(t *testing.T) {
	t.Parallel()

	results := fuse(
		[]memoracle.VectorMatch{vectorMatch("c1", "p1", 0.9)},
		[]memoracle.KeywordResult{keywordResult("c2", "p2", 0.8)},
		0.5, 0,
	)

	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Zero(t, results[1].VectorScore)
	assert.InDelta(t, 0.5*0.8, float64(results[1].Score), 1e-6)
}

func TestFuse_drops_keyword_below_minimum(t *testing.T) {
	t.Parallel()

	results := fuse(nil,
		[]memoracle.KeywordResult{keywordResult("c1", "p1", 0.005)},
		0.7, 0.01,
	)
	assert.Empty(t, results)
}

func TestFuse_clamps_out_of_range_scores(t *testing.T) {
	t.Parallel()

	results := fuse(
		[]memoracle.VectorMatch{vectorMatch("c1", "p1", 1.7)},
		nil, 1, 0,
	)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestDiversityFilter_bounds_chunks_per_page(t *testing.T) {
	t.Parallel()

	var results []memoracle.SearchResult
	for i := 0; i < 6; i++ {
		pageID := "p1"
		if i >= 4 {
			pageID = "p2"
		}
		results = append(results, memoracle.SearchResult{
			ChunkID:  string(rune('a' + i)),
			DocsetID: "d1",
			PageID:   pageID,
			Score:    float32(10 - i),
		})
	}

	admitted := diversityFilter(results, 10, 2)

	perPage := make(map[string]int)
	for _, r := range admitted {
		perPage[r.PageID]++
	}
	assert.Equal(t, 2, perPage["p1"])
	assert.Equal(t, 2, perPage["p2"])
}

func TestDiversityFilter_stops_at_topK(t *testing.T) {
	t.Parallel()

	var results []memoracle.SearchResult
	for i := 0; i < 10; i++ {
		results = append(results, memoracle.SearchResult{
			ChunkID: string(rune('a' + i)),
			PageID:  string(rune('a' + i)),
		})
	}
	admitted := diversityFilter(results, 3, 5)
	assert.Len(t, admitted, 3)
}

func TestBudgetFilter_bounds_total_chars(t *testing.T) {
	t.Parallel()

	e := &Engine{Options: DefaultOptions()}

	var results []memoracle.SearchResult
	for i := 0; i < 5; i++ {
		results = append(results, memoracle.SearchResult{
			ChunkID: string(rune('a' + i)),
			URL:     "https://docs.example.com/page",
			Title:   "Page",
			Content: stringOfLen(500),
		})
	}

	admitted := e.budgetFilter(results, 1000, true)
	require.NotEmpty(t, admitted)
	assert.LessOrEqual(t, len(admitted), 2)

	total := 0
	for _, r := range admitted {
		require.NotNil(t, r.Snippet)
		total += r.Snippet.CharCount
	}
	assert.LessOrEqual(t, total, 1200, "header overhead tolerance")
}

func TestBudgetFilter_always_admits_first_result(t *testing.T) {
	t.Parallel()

	e := &Engine{Options: DefaultOptions()}
	admitted := e.budgetFilter([]memoracle.SearchResult{
		{ChunkID: "c1", Content: stringOfLen(5000), URL: "https://docs.example.com/a"},
	}, 100, false)
	assert.Len(t, admitted, 1)
}

func TestClampInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, clampInt(0, 1, 100, 10), "zero takes the fallback")
	assert.Equal(t, 1, clampInt(-5, 1, 100, 10))
	assert.Equal(t, 100, clampInt(500, 1, 100, 10))
	assert.Equal(t, 42, clampInt(42, 1, 100, 10))
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
		if i%6 == 5 {
			b[i] = ' '
		}
	}
	return string(b)
}
