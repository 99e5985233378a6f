package app

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const collectionName = "docs"

// SearchResult is one retrieved chunk
type SearchResult struct {
	ID         string
	Content    string
	Section    string
	Source     string
	DocID      string
	ChunkIndex int
	Similarity float32
}

// Retriever returns the chunks most similar to the query, best first
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

// VectorStore keeps chunk embeddings in a chromem collection
type VectorStore struct {
	coll          *chromem.Collection
	minSimilarity float32
}

func NewVectorStore(coll *chromem.Collection, minSimilarity float32) *VectorStore {
	return &VectorStore{coll: coll, minSimilarity: minSimilarity}
}

func (s *VectorStore) Count() int {
	return s.coll.Count()
}

// Add embeds and stores the documents
func (s *VectorStore) Add(ctx context.Context, docs []chromem.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// DeleteDocument removes every chunk of an ingested document
func (s *VectorStore) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.coll.Delete(ctx, map[string]string{metaDocID: docID}, nil); err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	return nil
}

// Retrieve asks for at most topK results; topK is clamped to the collection
// size because chromem rejects larger requests.
func (s *VectorStore) Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if n := s.coll.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := s.coll.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var searchResults []SearchResult
	for _, r := range results {
		if r.Similarity < s.minSimilarity {
			continue
		}
		index, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		searchResults = append(searchResults, SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			Section:    r.Metadata[metaSection],
			Source:     r.Metadata[metaSource],
			DocID:      r.Metadata[metaDocID],
			ChunkIndex: index,
			Similarity: r.Similarity,
		})
	}
	return searchResults, nil
}
