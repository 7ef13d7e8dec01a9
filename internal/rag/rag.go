package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/llmservice"
	"megatrend-rag/internal/models"
)

// ContentGenerator is the chat model the retrieved context is handed to.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type RAG struct {
	retriever      *Retriever
	llm            ContentGenerator
	degradeOnError bool
}

func NewRAG(retriever *Retriever, llm ContentGenerator, cfg config.RAGConfig) *RAG {
	return &RAG{retriever: retriever, llm: llm, degradeOnError: cfg.DegradeOnError}
}

// Retrieve returns the formatted context block for question. When degradation is
// enabled a retrieval failure is logged and yields an empty context.
func (r *RAG) Retrieve(ctx context.Context, question string, opts ...SearchOption) (string, error) {
	chunks, err := r.retriever.Search(ctx, question, opts...)
	if err != nil {
		if !r.degradeOnError {
			return "", err
		}
		log.Warn().Err(err).Msg("Retrieval failed, continuing without context")
		return "", nil
	}
	return FormatChunksAsContext(chunks), nil
}

// Query answers question with the retrieved report context.
func (r *RAG) Query(ctx context.Context, question string, opts ...SearchOption) (*models.PromptResponse, error) {
	contextBlock, err := r.Retrieve(ctx, question, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := r.llm.GenerateContent(ctx, BuildMessages(contextBlock, question))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	answer, err := llmservice.FirstChoice(resp)
	if err != nil {
		return nil, err
	}
	return &models.PromptResponse{Query: question, Source: contextBlock, Content: answer}, nil
}

// BuildMessages creates the system and user messages for question. An empty
// context block is replaced by a placeholder telling the model none was found.
func BuildMessages(contextBlock, question string) []llms.MessageContent {
	if strings.TrimSpace(contextBlock) == "" {
		contextBlock = models.NoContextPlaceholder
	}
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPromptTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.UserPromptTemplate, contextBlock, question)),
	}
}
