// Package store provides the persistence capabilities behind ingestion
// and retrieval: an HNSW vector store, a bleve keyword index, a SQLite
// metadata store, and a data-directory lock.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Document is an ingested source document.
type Document struct {
	ID         string
	Name       string
	SourcePath string
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is the atomic unit of embedding and retrieval. Ordinal is dense
// 0..N-1 within one ingestion run of the owning document. Chunks are
// immutable once produced.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	Metadata   map[string]string
}

// ChunkID derives a stable chunk identifier from document, position and
// content.
func ChunkID(documentID string, ordinal int, content string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", documentID, ordinal, content)))
	return hex.EncodeToString(sum[:8])
}

// VectorResult is one vector-search hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float64
}

// KeywordResult is one keyword-search hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// VectorStore indexes embeddings and answers nearest-neighbor queries.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error
	Search(ctx context.Context, query []float32, k int, filters map[string]string) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordIndex indexes chunk text and answers lexical queries.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []*Chunk) error
	Search(ctx context.Context, query string, k int, filters map[string]string) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	Count() (int, error)
	Close() error
}

// MetadataStore persists documents and chunk records.
type MetadataStore interface {
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)
	Close() error
}

// ErrDimensionMismatch reports a vector whose dimension does not match
// the store's configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
