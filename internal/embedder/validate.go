package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate checks that the embedding configuration is usable before any
// embed call is made, so operators get a clear error at startup rather than
// a cryptic failure mid-ingest.
//
// It returns an error when the configuration is clearly broken (an openai
// backend with no API key, an opensearch backend with no model id) and logs
// a warning when EMBEDDING_MODEL looks like a chat model rather than an
// embedding model.
func Validate(log *slog.Logger) error {
	backend := ResolveBackend()

	// Warn when the backend is inherited from the chat provider with no
	// explicit EMBEDDING_PROVIDER override.
	if backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=opensearch (or ollama/openai) to be explicit"),
		)
	}

	switch backend {
	case "opensearch":
		if os.Getenv("EMBEDDING_MODEL_ID") == "" {
			return fmt.Errorf("embedder: opensearch backend requires EMBEDDING_MODEL_ID (register and deploy a text-embedding model first)")
		}

	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: openai backend requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case "ollama":
		// No credentials needed; the host default covers local setups.

	default:
		return fmt.Errorf("embedder: unknown backend %q", backend)
	}

	// Warn if EMBEDDING_MODEL looks like a chat model.
	model := os.Getenv("EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
