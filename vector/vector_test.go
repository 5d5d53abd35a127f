package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/core"
)

// indexUnderTest runs the shared Index contract against an implementation.
func indexUnderTest(t *testing.T, idx Index) {
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "m1", core.ClassWork, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, "m2", core.ClassWork, []float32{0, 1, 0}))
	require.NoError(t, idx.Upsert(ctx, "m3", core.ClassPersonal, []float32{1, 0, 0}))

	t.Run("search orders by descending score", func(t *testing.T) {
		matches, err := idx.Search(ctx, []float32{1, 0, 0}, core.ClassWork, 5)
		require.NoError(t, err)
		require.Len(t, matches, 2)

		assert.Equal(t, "m1", matches[0].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
		assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	})

	t.Run("search never crosses class partitions", func(t *testing.T) {
		matches, err := idx.Search(ctx, []float32{1, 0, 0}, core.ClassPersonal, 5)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "m3", matches[0].ID)
	})

	t.Run("search in empty class", func(t *testing.T) {
		matches, err := idx.Search(ctx, []float32{1, 0, 0}, core.ClassFinancial, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("upsert replaces the vector", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, "m2", core.ClassWork, []float32{1, 0, 0}))

		matches, err := idx.Search(ctx, []float32{1, 0, 0}, core.ClassWork, 5)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.InDelta(t, 1.0, matches[1].Score, 1e-5)
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		require.NoError(t, idx.Delete(ctx, "m2", core.ClassWork))

		matches, err := idx.Search(ctx, []float32{1, 0, 0}, core.ClassWork, 5)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "m1", matches[0].ID)
	})
}

func TestMockIndex(t *testing.T) {
	indexUnderTest(t, NewMockIndex())
}

func TestChromemIndex(t *testing.T) {
	indexUnderTest(t, NewChromemIndex())
}

func TestChromemIndexPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewPersistentChromemIndex(dir, false)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "m1", core.ClassHealth, []float32{0, 1, 0}))

	reopened, err := NewPersistentChromemIndex(dir, false)
	require.NoError(t, err)

	matches, err := reopened.Search(ctx, []float32{0, 1, 0}, core.ClassHealth, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "m1", matches[0].ID)
}

func TestMockIndexFailureInjection(t *testing.T) {
	idx := NewMockIndex()
	idx.FailSearch = errors.New("index offline")

	_, err := idx.Search(context.Background(), []float32{1}, core.ClassOther, 1)
	require.Error(t, err)
}

func TestCosineSimilarityClamp(t *testing.T) {
	assert.Equal(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), "negative similarity clamps to zero")
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}), "dimension mismatch")
}
