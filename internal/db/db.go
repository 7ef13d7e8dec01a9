package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/helper"
	"megatrend-rag/internal/models"
	"megatrend-rag/internal/rag"
)

const insertBatchSize = 100

// ChunkRecord is one embedded chunk of a published snapshot.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:megatrend_chunks,alias:mc"`
	ID            int64     `bun:"id,pk,autoincrement"`
	SnapshotID    string    `bun:"snapshot_id,type:uuid,notnull"`
	ChunkID       string    `bun:"chunk_id,notnull"`
	Theme         string    `bun:"theme,notnull"`
	Category      string    `bun:"category,notnull"`
	Title         string    `bun:"title,notnull"`
	Content       string    `bun:"content,notnull"`
	Hash          string    `bun:"hash"`
	Model         string    `bun:"model,notnull"`
	Dimensions    int       `bun:"dimensions,notnull"`
	Position      int       `bun:"position,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector"`
	CreatedAt     time.Time `bun:"created_at,notnull"`

	Score float64 `bun:"score,scanonly"`
}

func (r *ChunkRecord) Chunk() models.Chunk {
	return models.Chunk{
		ID:        r.ChunkID,
		Theme:     models.Theme(r.Theme),
		Category:  models.Category(r.Category),
		Title:     r.Title,
		Content:   r.Content,
		Hash:      r.Hash,
		Embedding: r.Embedding,
	}
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// InitDB enables pgvector and creates the chunk table.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*ChunkRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// ToRecords converts the chunks of data into rows of one snapshot. Chunks with a
// zero vector are skipped since pgvector scores them as NaN.
func ToRecords(snapshotID string, data *models.EmbeddingsData) []ChunkRecord {
	records := make([]ChunkRecord, 0, len(data.Chunks))
	for i, c := range data.Chunks {
		if !hasNorm(c.Embedding) {
			log.Warn().Str("chunk", c.ID).Msg("Skipping chunk without usable embedding")
			continue
		}
		records = append(records, ChunkRecord{
			SnapshotID: snapshotID,
			ChunkID:    c.ID,
			Theme:      string(c.Theme),
			Category:   string(c.Category),
			Title:      c.Title,
			Content:    c.Content,
			Hash:       c.Hash,
			Model:      data.Model,
			Dimensions: data.Dimensions,
			Position:   i,
			Embedding:  c.Embedding,
			CreatedAt:  data.CreatedAt,
		})
	}
	return records
}

// PublishSnapshot inserts data as a new snapshot and removes older snapshots in
// the same transaction. It returns the new snapshot id.
func PublishSnapshot(ctx context.Context, db *bun.DB, data *models.EmbeddingsData) (string, error) {
	snapshotID, err := helper.GenerateUUID()
	if err != nil {
		return "", err
	}
	records := ToRecords(snapshotID, data)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(records); start += insertBatchSize {
			batch := records[start:min(start+insertBatchSize, len(records))]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
		res, err := tx.NewDelete().
			Model((*ChunkRecord)(nil)).
			Where("snapshot_id != ?", snapshotID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete old snapshots: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			log.Debug().Int64("rows", n).Msg("Deleted previous snapshot rows")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Info().Str("snapshot", snapshotID).Int("chunks", len(records)).Msg("Published chunks to postgres")
	return snapshotID, nil
}

// drop table megatrend_chunks
func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*ChunkRecord)(nil)).IfExists().Exec(ctx)
	return err
}

// VectorLiteral renders vec in pgvector's text format.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// SearchQuery builds the nearest-neighbour query for vec under q.
func SearchQuery(db bun.IDB, vec []float32, q rag.Query, dest *[]ChunkRecord) *bun.SelectQuery {
	literal := VectorLiteral(vec)
	query := db.NewSelect().
		Model(dest).
		Column("chunk_id", "theme", "category", "title", "content", "hash", "embedding").
		ColumnExpr("1 - (embedding <=> ?::vector) AS score", literal).
		Where("1 - (embedding <=> ?::vector) >= ?", literal, q.MinScore)
	if len(q.Themes) > 0 {
		themes := make([]string, len(q.Themes))
		for i, t := range q.Themes {
			themes[i] = string(t)
		}
		query = query.Where("theme = ANY(?::text[])", pq.Array(themes))
	}
	return query.
		OrderExpr("embedding <=> ?::vector", literal).
		OrderExpr("position ASC").
		Limit(q.TopK)
}

// Index serves retrieval from the published postgres snapshot.
type Index struct {
	db *bun.DB
}

func NewIndex(db *bun.DB) *Index {
	return &Index{db: db}
}

func (i *Index) Metadata(ctx context.Context) (rag.IndexMetadata, error) {
	var meta rag.IndexMetadata
	count, err := i.db.NewSelect().Model((*ChunkRecord)(nil)).Count(ctx)
	if err != nil {
		return meta, fmt.Errorf("failed to count chunks: %w", err)
	}
	meta.Count = count
	if count == 0 {
		return meta, nil
	}
	err = i.db.NewSelect().
		Model((*ChunkRecord)(nil)).
		Column("model", "dimensions").
		Limit(1).
		Scan(ctx, &meta.Model, &meta.Dimensions)
	if err != nil {
		return meta, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	return meta, nil
}

func (i *Index) Nearest(ctx context.Context, vec []float32, q rag.Query) ([]models.SearchResult, error) {
	if q.TopK <= 0 || !hasNorm(vec) {
		return nil, nil
	}
	var records []ChunkRecord
	if err := SearchQuery(i.db, vec, q, &records).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	results := make([]models.SearchResult, len(records))
	for n := range records {
		results[n] = models.SearchResult{Chunk: records[n].Chunk(), Score: records[n].Score}
	}
	return results, nil
}

func hasNorm(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
