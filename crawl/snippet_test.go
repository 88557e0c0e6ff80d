package crawl_test

import (
	"strings"
	"testing"

	"github.com/memoracle/memoracle/crawl"
	"github.com/stretchr/testify/assert"
)

func TestBreadcrumb(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		heading string
		url     string
		want    string
	}{
		{
			name: "two segments title-cased",
			url:  "https://docs.example.com/docs/getting-started/installation",
			want: "Getting Started > Installation",
		},
		{
			name: "docs and api segments excluded",
			url:  "https://docs.example.com/docs/api/users",
			want: "Users",
		},
		{
			name:    "heading wins when it contains the last segment",
			heading: "Installation Guide",
			url:     "https://docs.example.com/docs/installation",
			want:    "Installation Guide",
		},
		{
			name:    "heading appended otherwise",
			heading: "Quick Start",
			url:     "https://docs.example.com/docs/setup",
			want:    "Setup > Quick Start",
		},
		{
			name: "root path yields empty breadcrumb",
			url:  "https://docs.example.com/",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, crawl.Breadcrumb(tt.heading, tt.url))
		})
	}
}

func TestTruncateContent(t *testing.T) {
	t.Parallel()

	t.Run("fits whole without ellipsis", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "short text", crawl.TruncateContent("short text", 100))
	})

	t.Run("prefers paragraph boundary", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("word ", 30) + "\n\n" + strings.Repeat("more ", 30)
		got := crawl.TruncateContent(content, 170)
		assert.True(t, strings.HasSuffix(got, "…"))
		assert.NotContains(t, got, "\n\nmore")
	})

	t.Run("falls back to sentence boundary", func(t *testing.T) {
		t.Parallel()
		content := "First sentence here. Second sentence here. " + strings.Repeat("x", 200)
		got := crawl.TruncateContent(content, 60)
		assert.True(t, strings.HasSuffix(got, "…"))
		assert.True(t, strings.Contains(got, "First sentence here."))
		assert.NotContains(t, got, "xxx")
	})

	t.Run("falls back to word boundary", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("somewords ", 40)
		got := crawl.TruncateContent(content, 95)
		assert.True(t, strings.HasSuffix(got, "…"))
		assert.LessOrEqual(t, len(got), 95)
	})

	t.Run("hard cut for unbroken text", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("x", 500)
		got := crawl.TruncateContent(content, 50)
		assert.LessOrEqual(t, len(got), 50+len("…"))
		assert.True(t, strings.HasSuffix(got, "…"))
	})
}
