package htmltomarkdown_test

import (
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/htmltomarkdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverter_Convert(t *testing.T) {
	t.Parallel()

	c := htmltomarkdown.NewConverter()
	md, err := c.Convert("<h1>Title</h1><p>Some <strong>bold</strong> text.</p>")
	require.NoError(t, err)
	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
}

func TestConverter_Convert_empty_input(t *testing.T) {
	t.Parallel()

	c := htmltomarkdown.NewConverter()
	_, err := c.Convert("   ")
	require.Error(t, err)
	assert.Equal(t, memoracle.EINVALID, memoracle.ErrorCode(err))
}
