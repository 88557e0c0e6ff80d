package crawl_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/crawl"
	"github.com/memoracle/memoracle/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frontierFixture(t *testing.T) (*sqlite.DB, *memoracle.Docset, *crawl.Frontier) {
	t.Helper()

	db := sqlite.NewDB(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	docsets := sqlite.NewDocsetService(db)
	docset := &memoracle.Docset{
		BaseURL:      "https://docs.example.com",
		SeedPath:     "/docs/start",
		AllowedPaths: []string{"/docs"},
	}
	require.NoError(t, docsets.CreateDocset(context.Background(), docset))

	return db, docset, crawl.NewFrontier(sqlite.NewPageService(db), 0)
}

func TestFrontier_DiscoverLinks_confines_to_host_and_prefix(t *testing.T) {
	t.Parallel()

	db, docset, f := frontierFixture(t)
	ctx := context.Background()

	n, err := f.DiscoverLinks(ctx, docset, "https://docs.example.com/docs/start", []string{
		"https://docs.example.com/docs/a",
		"https://docs.example.com/blog/post",  // outside allowed prefix
		"https://other.example.com/docs/b",    // wrong host
		"https://docs.example.com/docs/c#frag",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pages := sqlite.NewPageService(db)
	for _, url := range []string{
		"https://docs.example.com/docs/a",
		"https://docs.example.com/docs/c",
	} {
		page, err := pages.FindPageByURL(ctx, docset.ID, url)
		require.NoError(t, err, url)
		assert.Equal(t, memoracle.PagePending, page.Status)
		assert.Equal(t, 1, page.Depth)
	}

	_, err = pages.FindPageByURL(ctx, docset.ID, "https://docs.example.com/blog/post")
	assert.Equal(t, memoracle.ENOTFOUND, memoracle.ErrorCode(err))
}

func TestFrontier_DiscoverLinks_skips_seen_and_existing(t *testing.T) {
	t.Parallel()

	db, docset, f := frontierFixture(t)
	ctx := context.Background()

	n, err := f.DiscoverLinks(ctx, docset, "", []string{"https://docs.example.com/docs/a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same URL again: rejected by the visited set.
	n, err = f.DiscoverLinks(ctx, docset, "", []string{"https://docs.example.com/docs/a"}, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A pre-existing page record is not re-created by a fresh frontier.
	pages := sqlite.NewPageService(db)
	require.NoError(t, pages.CreatePage(ctx, &memoracle.Page{DocsetID: docset.ID, URL: "https://docs.example.com/docs/b"}))

	fresh := crawl.NewFrontier(pages, 0)
	n, err = fresh.DiscoverLinks(ctx, docset, "", []string{"https://docs.example.com/docs/b"}, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFrontier_DiscoverLinks_respects_max_pages(t *testing.T) {
	t.Parallel()

	db, docset, _ := frontierFixture(t)
	ctx := context.Background()

	f := crawl.NewFrontier(sqlite.NewPageService(db), 3)

	var candidates []string
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("https://docs.example.com/docs/page-%d", i))
	}
	n, err := f.DiscoverLinks(ctx, docset, "", candidates, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pages, err := sqlite.NewPageService(db).FindPages(ctx, memoracle.PageFilter{DocsetID: &docset.ID})
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestFrontier_Next_orders_by_depth(t *testing.T) {
	t.Parallel()

	_, docset, f := frontierFixture(t)
	ctx := context.Background()

	_, err := f.DiscoverLinks(ctx, docset, "", []string{"https://docs.example.com/docs/deep"}, 2)
	require.NoError(t, err)
	_, err = f.DiscoverLinks(ctx, docset, "", []string{"https://docs.example.com/docs/shallow"}, 0)
	require.NoError(t, err)

	item, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "https://docs.example.com/docs/shallow", item.URL)
	assert.Equal(t, 1, item.Depth)

	item, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, "https://docs.example.com/docs/deep", item.URL)

	_, ok = f.Next()
	assert.False(t, ok)
}

func TestFrontier_LoadPending_hydrates_queue(t *testing.T) {
	t.Parallel()

	db, docset, _ := frontierFixture(t)
	ctx := context.Background()

	pages := sqlite.NewPageService(db)
	require.NoError(t, pages.CreatePage(ctx, &memoracle.Page{DocsetID: docset.ID, URL: "https://docs.example.com/docs/a", Depth: 1}))
	require.NoError(t, pages.CreatePage(ctx, &memoracle.Page{DocsetID: docset.ID, URL: "https://docs.example.com/docs/b", Depth: 2}))

	f := crawl.NewFrontier(pages, 0)
	loaded, err := f.LoadPending(ctx, docset.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, f.Len())

	// Hydrated URLs are in the visited set.
	n, err := f.DiscoverLinks(ctx, docset, "", []string{"https://docs.example.com/docs/a"}, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
