package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"megatrend-rag/internal/chromemdb"
	"megatrend-rag/internal/config"
	"megatrend-rag/internal/db"
	"megatrend-rag/internal/embedding"
	"megatrend-rag/internal/helper"
	"megatrend-rag/internal/llmservice"
	"megatrend-rag/internal/models"
	"megatrend-rag/internal/parser"
	"megatrend-rag/internal/rag"
	"megatrend-rag/internal/store"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	extractPath := flag.String("extract", "", "Report file (.pdf, .docx, .pptx, .xlsx, .md, .txt) to convert into a source document")
	sourcePath := flag.String("source", "", "Source document JSON to chunk and embed")
	outPath := flag.String("out", "", "Output path for -extract or -source")
	dryRun := flag.Bool("dry-run", false, "Chunk only, do not call the embedding provider or write files")
	query := flag.String("query", "", "Query to search the report for")
	ask := flag.String("ask", "", "Question to answer with retrieved report context")
	themes := flag.String("themes", "", "Comma separated themes to restrict the search to")
	topK := flag.Int("top-k", 0, "Maximum number of chunks to return")
	minScore := flag.Float64("min-score", 0, "Minimum cosine similarity of returned chunks")
	publish := flag.String("publish", "", "Publish the embeddings file to a vector backend: chromem or postgres")
	flag.Parse()

	loadEnv()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		setupLogger(config.LogConfig{Level: "info", Pretty: true})
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(cfg.Log)
	log.Debug().Str("config", *configPath).Str("backend", cfg.RAG.Backend).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	opts, err := searchOptions(set, *topK, *minScore, *themes)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid search flags")
	}

	switch {
	case *extractPath != "":
		extractSource(*extractPath, *outPath)
	case *sourcePath != "":
		out := *outPath
		if out == "" {
			out = cfg.RAG.EmbeddingsPath
		}
		generateEmbeddings(ctx, cfg, *sourcePath, out, *dryRun)
	case *query != "":
		searchContent(ctx, cfg, *query, opts)
	case *ask != "":
		performRAG(ctx, cfg, *ask, opts)
	case *publish != "":
		publishEmbeddings(ctx, cfg, *publish)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// searchOptions turns the search flags present in set into retriever overrides.
// Flags left unset keep the configured defaults.
func searchOptions(set map[string]bool, topK int, minScore float64, themes string) ([]rag.SearchOption, error) {
	var opts []rag.SearchOption
	if set["top-k"] {
		if topK < 1 {
			return nil, fmt.Errorf("-top-k must be at least 1, got %d", topK)
		}
		opts = append(opts, rag.WithTopK(topK))
	}
	if set["min-score"] {
		if minScore < -1 || minScore > 1 {
			return nil, fmt.Errorf("-min-score must be within [-1, 1], got %g", minScore)
		}
		opts = append(opts, rag.WithMinScore(minScore))
	}
	if themes != "" {
		parsed, unknown := models.ParseThemes(themes)
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown themes: %s", strings.Join(unknown, ", "))
		}
		opts = append(opts, rag.WithThemes(parsed...))
	}
	return opts, nil
}

// loadEnv reads .env and then .env.local, which overrides it.
func loadEnv() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	if err := godotenv.Overload(".env.local"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env.local: %v\n", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
}

func extractSource(filePath, outPath string) {
	doc, err := parser.ExtractSourceDocument(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error extracting document")
	}
	log.Info().Str("file", filePath).Int("items", len(doc.Items)).Msg("Extracted source document")

	if outPath == "" {
		helper.PrettyPrint(doc)
		return
	}
	if err := helper.WriteJSONAtomic(outPath, doc, true); err != nil {
		log.Fatal().Err(err).Msg("Error writing source document")
	}
	log.Info().Str("out", outPath).Msg("Saved source document")
}

func generateEmbeddings(ctx context.Context, cfg *config.Config, sourcePath, outPath string, dryRun bool) {
	started := time.Now()
	doc, err := parser.LoadSourceDocument(sourcePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading source document")
	}

	chunker := parser.NewChunker(parser.ChunkerConfig{
		MinContentLength: cfg.RAG.MinContentLength,
		MaxChunkSize:     cfg.RAG.MaxChunkSize,
		MinFlushSize:     cfg.RAG.MinFlushSize,
	}, parser.DefaultClassifier())
	chunks, err := chunker.Chunk(doc)
	if err != nil {
		log.Fatal().Err(err).Msg("Error chunking document")
	}
	log.Info().Int("items", len(doc.Items)).Int("chunks", len(chunks)).Msg("Chunked source document")
	logThemeDistribution(chunks)

	previous, err := store.Load(outPath)
	var missing *store.ArtifactMissingError
	if err != nil && !errors.As(err, &missing) {
		log.Warn().Err(err).Msg("Ignoring unreadable previous embeddings")
	}
	changed := store.ChangedChunks(previous, chunks)
	log.Info().Int("changed", len(changed)).Int("total", len(chunks)).Msg("Compared with previous embeddings")

	if dryRun {
		log.Info().Msg("Dry run, skipping embedding")
		return
	}

	provider, err := embedding.NewProvider(ctx, &cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedding provider")
	}
	embedder := embedding.NewEmbedder(provider, cfg.EmbedLLM.Model, cfg.RAG)

	embedded, err := embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating embeddings")
	}

	data := store.New(embedded, embedder.Model())
	if err := store.Save(outPath, data); err != nil {
		log.Fatal().Err(err).Msg("Error saving embeddings")
	}

	event := log.Info().
		Str("out", outPath).
		Int("chunks", len(data.Chunks)).
		Str("model", data.Model).
		Int("dimensions", data.Dimensions).
		Dur("took", time.Since(started))
	if info, err := os.Stat(outPath); err == nil {
		event = event.Float64("size_mb", float64(info.Size())/(1024*1024))
	}
	event.Msg("Saved embeddings")
}

func logThemeDistribution(chunks []models.Chunk) {
	counts := map[models.Theme]int{}
	for _, c := range chunks {
		counts[c.Theme]++
	}
	for _, theme := range models.Themes {
		log.Info().Str("theme", string(theme)).Int("chunks", counts[theme]).Msg("Theme distribution")
	}
}

// newIndex opens the retrieval backend selected in the config.
func newIndex(ctx context.Context, cfg *config.Config) (rag.Index, func()) {
	switch cfg.RAG.Backend {
	case config.BackendChromem:
		manager, err := chromemdb.NewVectorDBManager(cfg.Chromem, false)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating vector database manager")
		}
		return chromemdb.NewIndex(manager), func() {}
	case config.BackendPostgres:
		dbInstance := openDB(ctx, cfg)
		return db.NewIndex(dbInstance), func() { _ = dbInstance.Close() }
	default:
		return rag.NewMemoryIndex(store.NewFileHandle(cfg.RAG.EmbeddingsPath)), func() {}
	}
}

func newRetriever(ctx context.Context, cfg *config.Config) (*rag.Retriever, func()) {
	provider, err := embedding.NewProvider(ctx, &cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedding provider")
	}
	index, cleanup := newIndex(ctx, cfg)
	embedder := embedding.NewEmbedder(provider, cfg.EmbedLLM.Model, cfg.RAG)
	return rag.NewRetriever(index, embedder, cfg.RAG), cleanup
}

func searchContent(ctx context.Context, cfg *config.Config, query string, opts []rag.SearchOption) {
	retriever, cleanup := newRetriever(ctx, cfg)
	defer cleanup()

	results, err := retriever.SearchWithScores(ctx, query, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Error searching")
	}
	if len(results) == 0 {
		log.Info().Msg("No relevant chunks found")
		return
	}

	chunks := make([]models.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
		log.Info().
			Int("rank", i+1).
			Str("id", res.Chunk.ID).
			Str("theme", string(res.Chunk.Theme)).
			Str("category", string(res.Chunk.Category)).
			Float64("score", res.Score).
			Msg(res.Chunk.Title)
	}
	fmt.Println(rag.FormatChunksAsContext(chunks))
}

func performRAG(ctx context.Context, cfg *config.Config, question string, opts []rag.SearchOption) {
	retriever, cleanup := newRetriever(ctx, cfg)
	defer cleanup()

	llm, err := llmservice.New(&cfg.InferenceLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM")
	}

	response, err := rag.NewRAG(retriever, llm, cfg.RAG).Query(ctx, question, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
}

func publishEmbeddings(ctx context.Context, cfg *config.Config, target string) {
	data, err := store.Load(cfg.RAG.EmbeddingsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading embeddings")
	}

	switch strings.ToLower(target) {
	case config.BackendChromem:
		if err := helper.CreateFolder(cfg.Chromem.Path); err != nil {
			log.Fatal().Err(err).Msg("Error creating folder")
		}
		manager, err := chromemdb.NewVectorDBManager(cfg.Chromem, false)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating vector database manager")
		}
		if err := manager.Publish(ctx, data); err != nil {
			log.Fatal().Err(err).Msg("Error publishing to chromem")
		}
		if cfg.Chromem.EncryptionKey != "" {
			if err := manager.Export(ctx); err != nil {
				log.Fatal().Err(err).Msg("Error exporting collection")
			}
			log.Info().Str("file", manager.FilePath()).Msg("Exported encrypted collection")
		}
	case config.BackendPostgres:
		dbInstance := openDB(ctx, cfg)
		defer dbInstance.Close()
		snapshotID, err := db.PublishSnapshot(ctx, dbInstance, data)
		if err != nil {
			log.Fatal().Err(err).Msg("Error publishing to postgres")
		}
		log.Info().Str("snapshot", snapshotID).Msg("Published snapshot")
	default:
		log.Fatal().Str("target", target).Msg("Unknown publish target, use chromem or postgres")
	}
	logThemeDistribution(data.Chunks)
}

func openDB(ctx context.Context, cfg *config.Config) *bun.DB {
	dbClient, err := db.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	return dbInstance
}
