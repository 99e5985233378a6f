package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"talk_rag/internal/chunker"
	"talk_rag/internal/document"
)

const (
	metaDocID      = "doc_id"
	metaChunkIndex = "chunk_index"
	metaSection    = "section"
	metaSource     = "source"
	metaKind       = "kind"
	metaHash       = "hash"
)

// Metadata tracks ingested files so unchanged ones are not embedded twice
type Metadata struct {
	Files map[string]FileInfo `json:"files"`
}

type FileInfo struct {
	Path         string    `json:"path"`
	DocID        string    `json:"doc_id"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	Chunks       int       `json:"chunks"`
}

// IngestResult summarizes one ingested document
type IngestResult struct {
	DocID   string
	Source  string
	Blocks  int
	Chunks  int
	Tokens  int
	Skipped bool // unchanged since the previous ingestion
}

// Indexer runs the ingestion pipeline: load, clean, segment, chunk,
// embed and store.
type Indexer struct {
	chunker  *chunker.TokenChunker
	store    *VectorStore
	logger   *zap.Logger
	metaPath string

	mu       sync.Mutex
	metadata *Metadata
}

// NewIndexer loads the file metadata from metaPath if it exists. An empty
// metaPath keeps metadata in memory only.
func NewIndexer(c *chunker.TokenChunker, store *VectorStore, metaPath string, logger *zap.Logger) (*Indexer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ix := &Indexer{
		chunker:  c,
		store:    store,
		logger:   logger,
		metaPath: metaPath,
		metadata: &Metadata{Files: make(map[string]FileInfo)},
	}
	if err := ix.loadMetadata(); err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return ix, nil
}

// Chunks runs the pipeline up to the safety pass without storing anything
func (ix *Indexer) Chunks(text, source string) ([]chunker.Block, []chunker.Chunk) {
	return chunkText(ix.chunker, text, source)
}

func chunkText(c *chunker.TokenChunker, text, source string) ([]chunker.Block, []chunker.Chunk) {
	blocks := chunker.Segment(document.Clean(text))
	chunks := chunker.AssignIDs(c.ChunkDocument(blocks), source)
	return blocks, chunks
}

// IndexText chunks the text and stores every chunk under docID.
// An empty chunk list is reported in the result, not as an error.
func (ix *Indexer) IndexText(ctx context.Context, docID, source, text string) (IngestResult, error) {
	blocks, chunks := ix.Chunks(text, source)
	result := IngestResult{DocID: docID, Source: source, Blocks: len(blocks), Chunks: len(chunks)}
	if len(chunks) == 0 {
		ix.logger.Warn("⚠️ no chunks produced", zap.String("source", source))
		return result, nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		result.Tokens += ch.TokenCount
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s-%d", docID, i),
			Content: ch.Text,
			Metadata: map[string]string{
				metaDocID:      docID,
				metaChunkIndex: strconv.Itoa(i),
				metaSection:    ch.Section,
				metaSource:     source,
				metaKind:       string(ch.Kind),
				metaHash:       ch.ID,
			},
		}
	}
	if err := ix.store.Add(ctx, docs); err != nil {
		// chunks embedded before the failure are already stored
		if derr := ix.store.DeleteDocument(context.WithoutCancel(ctx), docID); derr != nil {
			ix.logger.Error("failed to remove partial document", zap.String("doc_id", docID), zap.Error(derr))
		}
		return result, err
	}

	ix.logger.Info("📦 document indexed",
		zap.String("doc_id", docID),
		zap.String("source", source),
		zap.Int("blocks", result.Blocks),
		zap.Int("chunks", result.Chunks),
		zap.Int("tokens", result.Tokens),
	)
	return result, nil
}

// IndexFile ingests one file. A file whose size and modification time match
// the previous ingestion is skipped unless force is set; a changed file
// replaces its previous chunks once the new ones are stored.
func (ix *Indexer) IndexFile(ctx context.Context, path string, force bool) (IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("stat %s: %w", path, err)
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	source := filepath.Base(path)

	ix.mu.Lock()
	prev, exists := ix.metadata.Files[key]
	ix.mu.Unlock()
	if !force && exists && prev.LastModified.Equal(info.ModTime()) && prev.Size == info.Size() {
		ix.logger.Info("skipping unchanged file", zap.String("path", key))
		return IngestResult{DocID: prev.DocID, Source: source, Chunks: prev.Chunks, Skipped: true}, nil
	}

	text, err := document.Load(path)
	if err != nil {
		return IngestResult{}, err
	}
	ix.logger.Info("📄 file loaded", zap.String("path", key), zap.Int("bytes", len(text)))

	result, err := ix.IndexText(ctx, newDocID(path), source, text)
	if err != nil {
		return result, err
	}

	ix.mu.Lock()
	ix.metadata.Files[key] = FileInfo{
		Path:         key,
		DocID:        result.DocID,
		LastModified: info.ModTime(),
		Size:         info.Size(),
		Chunks:       result.Chunks,
	}
	err = ix.saveMetadata()
	ix.mu.Unlock()
	if err != nil {
		return result, fmt.Errorf("save metadata: %w", err)
	}

	// the previous chunks stay searchable until the new ones are stored
	if exists {
		if err := ix.store.DeleteDocument(ctx, prev.DocID); err != nil {
			return result, fmt.Errorf("remove previous chunks of %s: %w", prev.DocID, err)
		}
	}
	return result, nil
}

// newDocID is the file stem plus six hex characters of a random uuid
func newDocID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return stem + "_" + suffix
}

func (ix *Indexer) loadMetadata() error {
	if ix.metaPath == "" {
		return nil
	}
	f, err := os.Open(ix.metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(ix.metadata); err != nil {
		return err
	}
	if ix.metadata.Files == nil {
		ix.metadata.Files = make(map[string]FileInfo)
	}
	return nil
}

// saveMetadata must be called with ix.mu held
func (ix *Indexer) saveMetadata() error {
	if ix.metaPath == "" {
		return nil
	}
	f, err := os.Create(ix.metaPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(ix.metadata)
}
