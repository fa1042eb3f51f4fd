package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()

	first, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same text must always produce the same vector")
	assert.Len(t, first, StaticDimensions)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, vec, StaticDimensions)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestStaticEmbedder_VectorsAreNormalized(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "normalize this sentence please")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedder_SimilarityBehavior(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "database storage engine")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "database storage engine")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "completely unrelated walrus poetry")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-5)
	assert.Less(t, CosineSimilarity(a, c), 0.99,
		"unrelated texts must not be near-identical")
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_ClosedRejects(t *testing.T) {
	e := NewStaticEmbedder()
	require.True(t, e.Available(context.Background()))

	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestNormalizeVector(t *testing.T) {
	normalized := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, normalized[0], 1e-6)
	assert.InDelta(t, 0.8, normalized[1], 1e-6)

	// Zero vectors pass through untouched.
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)

	// Mismatched lengths and zero vectors degrade to zero.
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}
