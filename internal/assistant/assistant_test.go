package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/machzqcq/oslab-go/internal/rag"
)

// fakeChatModel records the messages it receives and streams a canned reply.
type fakeChatModel struct {
	reply    string
	received []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.received = msgs
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.received = msgs
	chunks := []*schema.Message{
		schema.AssistantMessage(f.reply[:len(f.reply)/2], nil),
		schema.AssistantMessage(f.reply[len(f.reply)/2:], nil),
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// fakeRetriever returns fixed documents, or an error.
type fakeRetriever struct {
	docs []rag.Document
	err  error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ int) ([]rag.Document, error) {
	return f.docs, f.err
}

func TestAsk_StreamsAndReturnsAnswer(t *testing.T) {
	t.Parallel()

	fm := &fakeChatModel{reply: "The Wireless Mouse costs $29.99."}
	fr := &fakeRetriever{docs: []rag.Document{
		{ID: "1", Content: "Wireless Mouse. Ergonomic wireless mouse. Price 29.99", Source: "inventory"},
	}}

	a, err := New(&Config{ChatModel: fm, Retriever: fr})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out strings.Builder
	answer, err := a.Ask(context.Background(), "how much is the wireless mouse?", &out)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer != fm.reply {
		t.Errorf("answer = %q, want %q", answer, fm.reply)
	}
	if out.String() != fm.reply {
		t.Errorf("streamed output = %q, want %q", out.String(), fm.reply)
	}

	// Message layout: system prompt, retrieved context, user question.
	if len(fm.received) != 3 {
		t.Fatalf("model received %d messages, want 3", len(fm.received))
	}
	if fm.received[0].Role != schema.System {
		t.Errorf("first message role = %v, want system", fm.received[0].Role)
	}
	if !strings.Contains(fm.received[1].Content, "Wireless Mouse") {
		t.Error("retrieved context not injected")
	}
	if fm.received[2].Content != "how much is the wireless mouse?" {
		t.Errorf("last message = %q", fm.received[2].Content)
	}
}

func TestAsk_MultiTurnHistory(t *testing.T) {
	t.Parallel()

	fm := &fakeChatModel{reply: "ok"}
	a, err := New(&Config{ChatModel: fm})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	var sink strings.Builder
	if _, err := a.Ask(ctx, "first question", &sink); err != nil {
		t.Fatalf("first Ask failed: %v", err)
	}
	if _, err := a.Ask(ctx, "second question", &sink); err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}

	// Second call sees: system, prior user turn, prior assistant turn, new question.
	if len(fm.received) != 4 {
		t.Fatalf("model received %d messages, want 4", len(fm.received))
	}
	if fm.received[1].Content != "first question" || fm.received[2].Content != "ok" {
		t.Errorf("history not replayed: %q / %q", fm.received[1].Content, fm.received[2].Content)
	}
	if fm.received[3].Content != "second question" {
		t.Errorf("last message = %q", fm.received[3].Content)
	}

	a.Reset()
	if _, err := a.Ask(ctx, "third question", &sink); err != nil {
		t.Fatalf("third Ask failed: %v", err)
	}
	if len(fm.received) != 2 {
		t.Errorf("after Reset model received %d messages, want 2", len(fm.received))
	}
}

func TestAsk_RetrievalFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	fm := &fakeChatModel{reply: "answered anyway"}
	fr := &fakeRetriever{err: errors.New("cluster down")}
	a, err := New(&Config{ChatModel: fm, Retriever: fr})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out strings.Builder
	answer, err := a.Ask(context.Background(), "anything in stock?", &out)
	if err != nil {
		t.Fatalf("Ask failed despite non-fatal retrieval error: %v", err)
	}
	if answer != "answered anyway" {
		t.Errorf("answer = %q", answer)
	}
	// No retrieved-context message injected.
	if len(fm.received) != 2 {
		t.Errorf("model received %d messages, want 2", len(fm.received))
	}
}

func TestAsk_HistoryTrimmedToBudget(t *testing.T) {
	t.Parallel()

	fm := &fakeChatModel{reply: "ok"}
	a, err := New(&Config{ChatModel: fm, MaxContextTokens: 200})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	var sink strings.Builder
	long := strings.Repeat("inventory question padding ", 40)
	for range 5 {
		if _, err := a.Ask(ctx, long, &sink); err != nil {
			t.Fatalf("Ask failed: %v", err)
		}
	}

	// With a tight budget the replayed history must shrink rather than grow
	// unbounded: system + trimmed history + question.
	if len(fm.received) >= 11 {
		t.Errorf("history not trimmed: model received %d messages", len(fm.received))
	}
}
