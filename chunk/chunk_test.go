package chunk_test

import (
	"strings"
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_Split_short_text_is_one_chunk(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.DefaultOptions())
	chunks := s.Split("Getting Started\n\nInstall the package and run it.", []memoracle.Heading{
		{Level: 1, Text: "Getting Started", Offset: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, "Getting Started", chunks[0].Heading)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitter_Split_empty_text_returns_nil(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.DefaultOptions())
	assert.Nil(t, s.Split("", nil))
	assert.Nil(t, s.Split("   \n\n  ", nil))
}

func TestSplitter_Split_sections_by_heading(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 120, MinChunkSize: 20, Overlap: 0})

	text := "Install\n\n" + strings.Repeat("install words here. ", 4) +
		"\n\nUsage\n\n" + strings.Repeat("usage words here. ", 4)
	headings := []memoracle.Heading{
		{Level: 2, Text: "Install", Offset: 0},
		{Level: 2, Text: "Usage", Offset: 100},
	}

	chunks := s.Split(text, headings)
	require.NotEmpty(t, chunks)

	var headingsSeen []string
	for _, c := range chunks {
		headingsSeen = append(headingsSeen, c.Heading)
	}
	assert.Contains(t, headingsSeen, "Install")
	assert.Contains(t, headingsSeen, "Usage")
}

func TestSplitter_Split_oversize_section_respects_max(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 200, MinChunkSize: 50, Overlap: 30})

	var b strings.Builder
	b.WriteString("Reference\n\n")
	for i := 0; i < 20; i++ {
		b.WriteString("This paragraph describes one option in detail. ")
		b.WriteString("It keeps going for a while.\n\n")
	}
	headings := []memoracle.Heading{{Level: 1, Text: "Reference", Offset: 0}}

	chunks := s.Split(b.String(), headings)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 200+30+2, "chunk %d exceeds budget", c.Index)
		assert.Equal(t, "Reference", c.Heading)
	}
}

func TestSplitter_Split_overlap_carries_previous_tail(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 100, MinChunkSize: 20, Overlap: 20})

	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("Sentence number content block goes right here okay.\n\n")
	}

	chunks := s.Split(b.String(), nil)
	require.Greater(t, len(chunks), 1)

	first := chunks[0].Content
	tail := first[len(first)-20:]
	assert.True(t, strings.HasPrefix(chunks[1].Content, strings.TrimSpace(tail)),
		"second chunk should begin with the previous chunk's tail")
}

func TestSplitter_Split_single_long_paragraph_falls_back_to_sentences(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 80, MinChunkSize: 10, Overlap: 0})

	para := strings.TrimSpace(strings.Repeat("A short sentence lives here. ", 12))
	chunks := s.Split(para, nil)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 80)
	}
}

func TestSplitter_Split_single_long_word_emitted_whole(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 50, MinChunkSize: 10, Overlap: 0})

	long := strings.Repeat("x", 120)
	chunks := s.Split("pad text goes first here. "+long+" trailing words", nil)
	require.NotEmpty(t, chunks)

	var found bool
	for _, c := range chunks {
		if strings.Contains(c.Content, long) {
			found = true
		}
	}
	assert.True(t, found, "the oversize word must survive intact")
}

func TestSplitter_Split_indexes_are_dense(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 100, MinChunkSize: 20, Overlap: 0})

	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString("One more paragraph with enough words to matter goes here.\n\n")
	}

	chunks := s.Split(b.String(), nil)
	require.Greater(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitter_Split_merges_trailing_small_chunk(t *testing.T) {
	t.Parallel()

	s := chunk.NewSplitter(chunk.Options{MaxChunkSize: 300, MinChunkSize: 100, Overlap: 0})

	text := strings.Repeat("A solid paragraph with plenty of words in it for sizing purposes.\n\n", 4) + "tiny tail"
	chunks := s.Split(text, nil)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	if len(chunks) > 1 {
		assert.GreaterOrEqual(t, len(last.Content), 100,
			"a trailing fragment below the minimum should have been merged")
	}
	assert.Contains(t, last.Content, "tiny tail")
}
