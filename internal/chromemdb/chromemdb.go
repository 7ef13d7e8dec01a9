package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/helper"
	"megatrend-rag/internal/models"
)

// metadata keys of a chunk document
const (
	metaChunkID  = "chunk_id"
	metaTheme    = "theme"
	metaCategory = "category"
	metaTitle    = "title"
	metaHash     = "hash"
)

// ErrNotPublished is returned when the collection has no manifest yet.
var ErrNotPublished = errors.New("chromem collection has not been published")

// Manifest records the vector space of a published collection.
type Manifest struct {
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	persistent     bool
	dbPath         string
	compress       bool
	encryptionKey  string
	filePath       string
	manifest       *Manifest
}

// NewVectorDBManager opens the database at cfg.Path, or an in-memory one.
func NewVectorDBManager(cfg config.ChromemConfig, inMemory bool) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:             db,
		collectionName: cfg.Collection,
		persistent:     !inMemory,
		dbPath:         cfg.Path,
		compress:       cfg.Compress,
		encryptionKey:  cfg.EncryptionKey,
		filePath:       filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}, nil
}

// Queries always carry a precomputed embedding.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem collection requires precomputed embeddings")
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	if m.collection != nil {
		return m.collection, nil
	}
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// ToDocuments converts embedded chunks to chromem documents. Chunks without a
// usable vector are skipped.
func ToDocuments(chunks []models.Chunk) []chromem.Document {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if !hasNorm(c.Embedding) {
			log.Warn().Str("chunk", c.ID).Msg("Skipping chunk without usable embedding")
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				metaChunkID:  c.ID,
				metaTheme:    string(c.Theme),
				metaCategory: string(c.Category),
				metaTitle:    c.Title,
				metaHash:     c.Hash,
			},
			Embedding: c.Embedding,
		})
	}
	return docs
}

// ChunkFromResult rebuilds a chunk from a query result.
func ChunkFromResult(res chromem.Result) models.Chunk {
	return models.Chunk{
		ID:        res.Metadata[metaChunkID],
		Theme:     models.Theme(res.Metadata[metaTheme]),
		Category:  models.Category(res.Metadata[metaCategory]),
		Title:     res.Metadata[metaTitle],
		Content:   res.Content,
		Hash:      res.Metadata[metaHash],
		Embedding: res.Embedding,
	}
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if _, err := m.GetOrCreateCollection(); err != nil {
		return err
	}
	if len(documents) == 0 {
		return nil
	}
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Publish replaces the collection with the chunks of data.
func (m *VectorDBManager) Publish(ctx context.Context, data *models.EmbeddingsData) error {
	if err := m.DeleteCollection(); err != nil {
		return err
	}
	docs := ToDocuments(data.Chunks)
	if err := m.CreateDocs(ctx, docs); err != nil {
		return err
	}

	m.manifest = &Manifest{
		Model:      data.Model,
		Dimensions: data.Dimensions,
		Count:      len(docs),
		CreatedAt:  data.CreatedAt,
	}
	if m.persistent {
		if err := m.writeManifest(); err != nil {
			return err
		}
	}
	log.Info().
		Str("collection", m.collectionName).
		Int("documents", len(docs)).
		Str("model", data.Model).
		Msg("Published chunks to chromem")
	return nil
}

// Manifest returns the vector space of the published collection.
func (m *VectorDBManager) Manifest() (*Manifest, error) {
	if m.manifest != nil {
		return m.manifest, nil
	}
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotPublished, m.collectionName)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.manifest = &manifest
	return m.manifest, nil
}

func (m *VectorDBManager) manifestPath() string {
	return filepath.Join(m.dbPath, m.collectionName+".manifest.json")
}

func (m *VectorDBManager) writeManifest() error {
	if err := helper.WriteJSONAtomic(m.manifestPath(), m.manifest, true); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Count is the number of documents in the collection.
func (m *VectorDBManager) Count() (int, error) {
	c, err := m.GetOrCreateCollection()
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// SearchWithQueryOptions runs a similarity query, capping NResults at the collection size.
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}
	c, err := m.GetOrCreateCollection()
	if err != nil {
		return nil, err
	}
	opts.NResults = min(opts.NResults, c.Count())
	if opts.NResults <= 0 {
		return nil, nil
	}

	results, err := c.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	m.manifest = nil
	return nil
}

// Export writes the collection to <path>/<collection>.chromem, AES encrypted when a
// key is configured, together with its manifest.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := m.Manifest(); err != nil {
		return err
	}
	if err := helper.CreateFolder(m.dbPath); err != nil {
		return err
	}

	log.Debug().
		Str("collection", m.collectionName).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return m.writeManifest()
}

// Import loads a collection previously written by Export.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	m.collection = nil
	m.manifest = nil
	if _, err := m.GetOrCreateCollection(); err != nil {
		return err
	}
	_, err := m.Manifest()
	return err
}

// FilePath is the export file location.
func (m *VectorDBManager) FilePath() string {
	return m.filePath
}

func hasNorm(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
