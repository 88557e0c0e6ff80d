package memoracle_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/memoracle/memoracle"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", memoracle.ErrorCode(nil))
	assert.Equal(t, memoracle.ENOTFOUND, memoracle.ErrorCode(memoracle.Errorf(memoracle.ENOTFOUND, "gone")))
	assert.Equal(t, memoracle.EINTERNAL, memoracle.ErrorCode(errors.New("plain")))

	wrapped := fmt.Errorf("context: %w", memoracle.Errorf(memoracle.EINVALID, "bad input"))
	assert.Equal(t, memoracle.EINVALID, memoracle.ErrorCode(wrapped))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", memoracle.ErrorMessage(nil))
	assert.Equal(t, "gone", memoracle.ErrorMessage(memoracle.Errorf(memoracle.ENOTFOUND, "gone")))
	assert.Equal(t, "Internal error.", memoracle.ErrorMessage(errors.New("plain")))
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	err := &memoracle.StatusError{StatusCode: 404, URL: "https://docs.example.com/x"}
	assert.Equal(t, 404, memoracle.StatusCode(err))
	assert.Contains(t, err.Error(), "HTTP 404")

	wrapped := fmt.Errorf("fetching: %w", err)
	assert.Equal(t, 404, memoracle.StatusCode(wrapped))

	assert.Zero(t, memoracle.StatusCode(errors.New("no status")))
}

func TestDocset_defaults_and_confinement(t *testing.T) {
	t.Parallel()

	d := &memoracle.Docset{BaseURL: "https://docs.example.com", SeedPath: "/docs/guide/intro"}
	d.ApplyDefaults()

	assert.Equal(t, "docs.example.com", d.Name)
	assert.Equal(t, []string{"/docs/guide"}, d.AllowedPaths)
	assert.Equal(t, "docs.example.com", d.Host())
	assert.Equal(t, "https://docs.example.com/docs/guide/intro", d.SeedURL())

	assert.True(t, d.Allows("/docs/guide/advanced"))
	assert.False(t, d.Allows("/blog/post"))
}
