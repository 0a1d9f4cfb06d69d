// Package chat answers user questions against their saved knowledge base
// through an LLM provider.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"clipscribe/internal/domain"
	"clipscribe/internal/store"
)

const systemPrompt = "You are a helpful assistant for a media library. " +
	"Answer using the provided media metadata and transcripts when relevant; " +
	"say so when the library has no answer."

// Request is one chat turn from an authenticated user.
type Request struct {
	ConversationID       string
	UserID               string
	Message              string
	ContextMediaIDs      []string
	ContextTranscriptIDs []string
}

// Reply is the assistant's answer with provider metadata.
type Reply struct {
	Message          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// llmClient isolates the provider SDK behind the one call the service makes.
type llmClient interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// contextSource supplies knowledge-base rows and records conversation turns.
type contextSource interface {
	MediaItemsByID(ctx context.Context, ids []string) ([]store.MediaItem, error)
	TranscriptsByID(ctx context.Context, ids []string) ([]store.Transcript, error)
	SaveMessage(ctx context.Context, m store.Message) error
}

// Service generates assistant replies grounded in stored media context.
type Service struct {
	llm    llmClient
	model  string
	source contextSource
	logger *log.Logger
}

// NewService constructs the chat service against the OpenAI provider.
func NewService(apiKey, model string, source contextSource, logger *log.Logger) (*Service, error) {
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("initialize chat provider: %w", err)
	}
	return &Service{llm: llm, model: model, source: source, logger: logger}, nil
}

// NewServiceForTests constructs the service with an injectable provider.
func NewServiceForTests(llm llmClient, model string, source contextSource, logger *log.Logger) *Service {
	return &Service{llm: llm, model: model, source: source, logger: logger}
}

// Respond answers one chat turn. Knowledge-base context named by the request
// is folded into the system prompt; the user and assistant turns are
// persisted best-effort after a successful generation.
func (s *Service) Respond(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Reply{}, domain.E(domain.KindInvalidRequest, "message is required", nil)
	}

	prompt, err := s.buildSystemPrompt(ctx, req)
	if err != nil {
		// Missing context narrows the answer but should not block the chat.
		s.logger.Warn("chat context fetch failed", "error", err)
		prompt = systemPrompt
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Message),
	}

	resp, err := s.llm.GenerateContent(ctx, content)
	if err != nil {
		return Reply{}, domain.E(domain.KindProvider, "chat provider request", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, domain.E(domain.KindProvider, "empty response from chat provider", nil)
	}

	choice := resp.Choices[0]
	reply := Reply{
		Message:          choice.Content,
		Model:            s.model,
		PromptTokens:     intFromInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intFromInfo(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      intFromInfo(choice.GenerationInfo, "TotalTokens"),
	}

	s.persistTurn(ctx, req, reply.Message)
	return reply, nil
}

// buildSystemPrompt augments the base prompt with requested media context.
func (s *Service) buildSystemPrompt(ctx context.Context, req Request) (string, error) {
	if s.source == nil || (len(req.ContextMediaIDs) == 0 && len(req.ContextTranscriptIDs) == 0) {
		return systemPrompt, nil
	}

	var b strings.Builder
	b.WriteString(systemPrompt)

	items, err := s.source.MediaItemsByID(ctx, req.ContextMediaIDs)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		fmt.Fprintf(&b, "\n\nMedia: %s (%s, %.0fs) from %s", item.Title, item.MediaType, item.DurationSeconds, item.SourceURL)
	}

	transcripts, err := s.source.TranscriptsByID(ctx, req.ContextTranscriptIDs)
	if err != nil {
		return "", err
	}
	for _, t := range transcripts {
		fmt.Fprintf(&b, "\n\nTranscript:\n%s", t.Content)
	}

	return b.String(), nil
}

// persistTurn stores both sides of the exchange, logging failures only.
func (s *Service) persistTurn(ctx context.Context, req Request, answer string) {
	if s.source == nil || req.ConversationID == "" {
		return
	}

	turns := []store.Message{
		{ConversationID: req.ConversationID, UserID: req.UserID, Role: "user", Content: req.Message},
		{ConversationID: req.ConversationID, UserID: req.UserID, Role: "assistant", Content: answer},
	}
	for _, m := range turns {
		if err := s.source.SaveMessage(ctx, m); err != nil {
			s.logger.Warn("persist chat turn failed", "conversation", req.ConversationID, "error", err)
		}
	}
}

// intFromInfo reads an integer provider stat without trusting its type.
func intFromInfo(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
