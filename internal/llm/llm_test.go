package llm

import (
	"testing"
)

func TestConfigFromEnv_Ollama(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OLLAMA_MODEL", "")
	t.Setenv("MODEL_MAX_TOKENS", "")
	t.Setenv("MODEL_TEMPERATURE", "")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOllama {
		t.Errorf("default backend = %q, want ollama", cfg.Backend)
	}
	if cfg.BaseURL != "http://localhost:11434" || cfg.Model != "llama3.2" {
		t.Errorf("unexpected ollama defaults: %+v", cfg)
	}
	if cfg.MaxTokens != 4096 || cfg.Temperature != 0.2 {
		t.Errorf("unexpected tuning defaults: %+v", cfg)
	}
}

func TestConfigFromEnv_OpenAI(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("MODEL_MAX_TOKENS", "1024")
	t.Setenv("MODEL_TEMPERATURE", "0.7")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOpenAI || cfg.APIKey != "sk-test" || cfg.Model != "gpt-4o" {
		t.Errorf("unexpected openai config: %+v", cfg)
	}
	if cfg.MaxTokens != 1024 || cfg.Temperature != 0.7 {
		t.Errorf("tuning overrides ignored: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama ok", Config{Backend: BackendOllama, Model: "llama3.2"}, false},
		{"ollama missing model", Config{Backend: BackendOllama}, true},
		{"openai ok", Config{Backend: BackendOpenAI, Model: "gpt-4o", APIKey: "sk"}, false},
		{"openai missing key", Config{Backend: BackendOpenAI, Model: "gpt-4o"}, true},
		{"unknown backend", Config{Backend: "bedrock", Model: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
