package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndex implements KeywordIndex on bleve v2. Chunk content is
// analyzed with the English analyzer (possessive stripping, stopwords,
// stemming) so queries reach inflected forms; metadata values are
// indexed with the keyword analyzer so filters are exact term matches.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveIndex)(nil)

// bleveChunk is the indexed document shape.
type bleveChunk struct {
	Content    string            `json:"content"`
	DocumentID string            `json:"document_id"`
	Meta       map[string]string `json:"meta"`
}

// NewBleveIndex opens or creates a keyword index. An empty path creates
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = en.AnalyzerName
	chunkMapping.AddFieldMappingsAt("content", contentField)

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	chunkMapping.AddFieldMappingsAt("document_id", idField)

	metaMapping := bleve.NewDocumentMapping()
	metaMapping.DefaultAnalyzer = keyword.Name
	chunkMapping.AddSubDocumentMapping("meta", metaMapping)

	indexMapping.DefaultMapping = chunkMapping

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		if _, statErr := os.Stat(path); statErr == nil {
			idx, err = bleve.Open(path)
		} else {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

// Index adds chunks to the index in one batch.
func (b *BleveIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		doc := bleveChunk{
			Content:    chunk.Content,
			DocumentID: chunk.DocumentID,
			Meta:       chunk.Metadata,
		}
		if err := batch.Index(chunk.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

// Search runs a match query over chunk content, restricted by exact-match
// metadata filters. An empty query returns no hits.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, k int, filters map[string]string) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(queryStr) == "" || k <= 0 {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	var q query.Query = matchQuery
	if len(filters) > 0 {
		conjuncts := make([]query.Query, 0, len(filters)+1)
		conjuncts = append(conjuncts, matchQuery)
		for key, value := range filters {
			term := bleve.NewTermQuery(value)
			term.SetField("meta." + key)
			conjuncts = append(conjuncts, term)
		}
		q = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes chunks by ID.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute delete batch: %w", err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("keyword index is closed")
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
