package bloom_test

import (
	"fmt"
	"testing"

	"github.com/memoracle/memoracle/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_Add_and_Test(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.Test("https://docs.example.com/start"))
	f.Add("https://docs.example.com/start")
	assert.True(t, f.Test("https://docs.example.com/start"))
	assert.False(t, f.Test("https://docs.example.com/other"))
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(10000, 0.01)
	for i := 0; i < 500; i++ {
		f.Add(fmt.Sprintf("https://docs.example.com/page/%d", i))
	}

	count := f.EstimatedCount()
	assert.InDelta(t, 500, float64(count), 50, "estimate should be close to actual count")
}
