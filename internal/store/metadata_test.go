package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func docFixture(id string, at time.Time) *Document {
	return &Document{
		ID:         id,
		Name:       id + ".md",
		SourcePath: "/docs/" + id + ".md",
		ChunkCount: 2,
		IngestedAt: at,
	}
}

func chunkFixtures(docID string) []*Chunk {
	return []*Chunk{
		{
			ID:         docID + "-0",
			DocumentID: docID,
			Ordinal:    0,
			Content:    "first chunk of " + docID,
			Metadata:   map[string]string{"source": docID + ".md"},
		},
		{
			ID:         docID + "-1",
			DocumentID: docID,
			Ordinal:    1,
			Content:    "second chunk of " + docID,
			Metadata:   map[string]string{"source": docID + ".md"},
		},
	}
}

func TestSQLiteStore_DocumentRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ingested := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	require.NoError(t, s.SaveDocument(ctx, docFixture("d1", ingested)))

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d1.md", got.Name)
	assert.Equal(t, "/docs/d1.md", got.SourcePath)
	assert.Equal(t, 2, got.ChunkCount)
	assert.True(t, got.IngestedAt.Equal(ingested), "timestamps survive the round trip")

	missing, err := s.GetDocument(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_SaveDocumentUpserts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := docFixture("d1", time.Now())
	require.NoError(t, s.SaveDocument(ctx, doc))

	doc.Name = "renamed.md"
	doc.ChunkCount = 9
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.md", got.Name)
	assert.Equal(t, 9, got.ChunkCount)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLiteStore_ListDocumentsOrderedByIngestion(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, s.SaveDocument(ctx, docFixture("newer", base.Add(time.Hour))))
	require.NoError(t, s.SaveDocument(ctx, docFixture("older", base)))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "older", docs[0].ID)
	assert.Equal(t, "newer", docs[1].ID)
}

func TestSQLiteStore_ChunkRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, docFixture("d1", time.Now())))
	require.NoError(t, s.SaveChunks(ctx, chunkFixtures("d1")))

	byID, err := s.GetChunks(ctx, []string{"d1-0", "d1-1", "ghost"})
	require.NoError(t, err)
	require.Len(t, byID, 2, "missing IDs are absent, not an error")
	assert.Equal(t, "first chunk of d1", byID["d1-0"].Content)
	assert.Equal(t, map[string]string{"source": "d1.md"}, byID["d1-0"].Metadata)

	ordered, err := s.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, 0, ordered[0].Ordinal)
	assert.Equal(t, 1, ordered[1].Ordinal)

	empty, err := s.GetChunks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_DeleteByDocument(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, docFixture("d1", time.Now())))
	require.NoError(t, s.SaveChunks(ctx, chunkFixtures("d1")))
	require.NoError(t, s.SaveDocument(ctx, docFixture("d2", time.Now())))
	require.NoError(t, s.SaveChunks(ctx, chunkFixtures("d2")))

	ids, err := s.DeleteByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1-0", "d1-1"}, ids,
		"callers purge the derived indexes with these IDs")

	gone, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	chunks, err := s.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// The other document is untouched.
	kept, err := s.GetChunksByDocument(ctx, "d2")
	require.NoError(t, err)
	assert.Len(t, kept, 2)

	// Deleting an unknown document returns no IDs.
	ids, err = s.DeleteByDocument(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteStore_PersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, docFixture("d1", time.Now())))
	require.NoError(t, s.SaveChunks(ctx, chunkFixtures("d1")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	chunks, err := reopened.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestSQLiteStore_ClosedRejects(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is safe")

	_, err := s.GetDocument(context.Background(), "d1")
	assert.Error(t, err)
	assert.Error(t, s.SaveChunks(context.Background(), chunkFixtures("d1")))
}

func TestChunkID_StableAndDistinct(t *testing.T) {
	a := ChunkID("doc", 0, "content")
	assert.Equal(t, a, ChunkID("doc", 0, "content"))
	assert.Len(t, a, 16)

	assert.NotEqual(t, a, ChunkID("doc", 1, "content"))
	assert.NotEqual(t, a, ChunkID("doc", 0, "other"))
	assert.NotEqual(t, a, ChunkID("other", 0, "content"))
}
