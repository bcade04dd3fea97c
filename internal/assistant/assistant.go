// Package assistant wires the chat model and the vector-store retriever into
// the conversational search assistant behind `oslab ask`. Each question is
// answered with retrieved catalog context injected ahead of the model call;
// prior turns are replayed, trimmed oldest-first to fit the context budget.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/machzqcq/oslab-go/internal/budget"
	"github.com/machzqcq/oslab-go/internal/logging"
	"github.com/machzqcq/oslab-go/internal/rag"
)

// systemPrompt establishes the assistant's scope: answer from the retrieved
// index content, cite what was found, and say so when nothing matches.
const systemPrompt = `You are a search assistant for an OpenSearch-backed product catalog.

Answer the user's question using the retrieved context provided in the
conversation. Follow these rules:

- Ground every claim in the retrieved documents. If the context does not
  contain the answer, say so plainly instead of guessing.
- When you reference a product, include its name exactly as it appears in
  the context.
- Keep answers short and factual. Prices, stock levels, and ratings come
  from the context verbatim.
- Do not invent products, fields, or values that are not in the context.`

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// ChatModel generates the answers.
	ChatModel model.BaseChatModel

	// Retriever supplies catalog context for each question. May be nil, in
	// which case the model answers from conversation alone.
	Retriever rag.Retriever

	// TopK controls how many retrieved documents are injected per question.
	// Defaults to 5 if zero.
	TopK int

	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + history + retrieved context + question). History is
	// trimmed oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Assistant answers questions over an indexed catalog with retrieval
// augmented generation. It keeps the conversation in memory for the lifetime
// of the process; restarting starts a fresh conversation.
type Assistant struct {
	chatModel        model.BaseChatModel
	retriever        rag.Retriever
	topK             int
	maxContextTokens int

	mu      sync.Mutex
	history []*schema.Message
}

// New constructs an Assistant from the provided Config.
func New(cfg *Config) (*Assistant, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("assistant: ChatModel must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Assistant{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask answers a question, streaming the response to w as it arrives. The
// full answer is also returned so callers can persist it. The question and
// answer are appended to the in-memory conversation for subsequent turns.
func (a *Assistant) Ask(ctx context.Context, question string, w io.Writer) (string, error) {
	messages := a.buildMessages(ctx, question)

	sr, err := a.chatModel.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("assistant: stream failed: %w", err)
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("assistant: stream receive: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		answer.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return "", fmt.Errorf("assistant: write: %w", err)
		}
	}

	a.mu.Lock()
	a.history = append(a.history,
		schema.UserMessage(question),
		schema.AssistantMessage(answer.String(), nil),
	)
	a.mu.Unlock()

	return answer.String(), nil
}

// Reset discards the in-memory conversation.
func (a *Assistant) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// buildMessages assembles [system, ...history, retrieved context, question],
// trimming history oldest-first to fit the token budget.
func (a *Assistant) buildMessages(ctx context.Context, question string) []*schema.Message {
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt)}

	if a.retriever != nil {
		docs, err := a.retriever.Retrieve(ctx, question, a.topK)
		if err != nil {
			// Retrieval failure is non-fatal; answer from conversation alone.
			logging.FromContext(ctx).Warn("retrieval failed, continuing without context", slog.Any("error", err))
		} else if len(docs) > 0 {
			fixed = append(fixed, schema.SystemMessage(buildRetrievedContext(docs)))
		}
	}

	userMsg := schema.UserMessage(question)

	a.mu.Lock()
	history := make([]*schema.Message, len(a.history))
	copy(history, a.history)
	a.mu.Unlock()

	budgetFixed := append(append([]*schema.Message{}, fixed...), userMsg)
	before := len(history)
	history = budget.TrimHistory(budgetFixed, history, a.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("dropped conversation turns to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	// [system, ...history, retrieved context, question]
	result := make([]*schema.Message, 0, len(fixed)+len(history)+1)
	result = append(result, fixed[0])
	result = append(result, history...)
	result = append(result, fixed[1:]...)
	result = append(result, userMsg)
	return result
}

// buildRetrievedContext formats retrieved documents into a system message.
func buildRetrievedContext(docs []rag.Document) string {
	var sb strings.Builder
	sb.WriteString("## Retrieved Catalog Context\n\n")
	sb.WriteString("The following documents were retrieved for the user's question. ")
	sb.WriteString("Answer using only this context.\n\n")
	for i, doc := range docs {
		fmt.Fprintf(&sb, "### Document %d (source: %s)\n%s\n\n", i+1, doc.Source, doc.Content)
	}
	return sb.String()
}
