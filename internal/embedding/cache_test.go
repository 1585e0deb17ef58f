package embedding

import (
	"testing"

	"resume-match-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCanonicalDelegate(t *testing.T, maxRunes int) *AliyunEmbedder {
	t.Helper()
	embedder, err := NewAliyunEmbedder("test-key", config.EmbeddingConfig{
		Model:         "text-embedding-v3",
		Dimensions:    4,
		MaxInputRunes: maxRunes,
	})
	require.NoError(t, err)
	return embedder
}

func TestAliyunEmbedder_CanonicalInput(t *testing.T) {
	embedder := newCanonicalDelegate(t, 10)

	assert.Equal(t, "一二三四五六七八九十", embedder.CanonicalInput("  一二三四五六七八九十超出的部分  "))
	assert.Equal(t, "短文本", embedder.CanonicalInput("短文本\n"))

	unlimited := newCanonicalDelegate(t, 0)
	assert.Equal(t, "一二三四五六七八九十超出的部分", unlimited.CanonicalInput("一二三四五六七八九十超出的部分"))
}

func TestCachedEmbedder_CacheKeyUsesCanonicalText(t *testing.T) {
	cached := &CachedEmbedder{
		delegate: newCanonicalDelegate(t, 10),
		model:    "text-embedding-v3",
	}

	// 截断点之后才有差异的文本实际送同一内容去嵌入，必须共用缓存条目
	keyA := cached.cacheKey("一二三四五六七八九十后缀甲")
	keyB := cached.cacheKey("  一二三四五六七八九十后缀乙")
	assert.Equal(t, keyA, keyB)

	// 截断预算内的差异仍然区分
	keyC := cached.cacheKey("一二三四五")
	assert.NotEqual(t, keyA, keyC)
}
