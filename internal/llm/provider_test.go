package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/nugget/minimcp/internal/config"
)

func TestNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")

	tests := []struct {
		provider string
		wantType string
	}{
		{config.ProviderOpenAI, "*llm.OpenAI"},
		{config.ProviderAnthropic, "*llm.Anthropic"},
		{config.ProviderOllama, "*llm.Ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := New(context.Background(), config.LLMConfig{Provider: tt.provider, Model: "m"}, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := typeName(c); got != tt.wantType {
				t.Errorf("type = %s, want %s", got, tt.wantType)
			}
		})
	}

	if _, err := New(context.Background(), config.LLMConfig{Provider: "palm"}, nil); err == nil {
		t.Error("unsupported provider accepted")
	}
}

func typeName(c Client) string {
	switch c.(type) {
	case *OpenAI:
		return "*llm.OpenAI"
	case *Anthropic:
		return "*llm.Anthropic"
	case *Ollama:
		return "*llm.Ollama"
	case *Gemini:
		return "*llm.Gemini"
	}
	return "unknown"
}

func TestEnvKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	if got := envKey(config.ProviderGemini); got != "g-key" {
		t.Errorf("envKey(gemini) = %q", got)
	}
	if got := envKey(config.ProviderOllama); got != "" {
		t.Errorf("envKey(ollama) = %q, want empty", got)
	}
}

func TestNewGemini_MissingKey(t *testing.T) {
	_, err := NewGemini(context.Background(), Options{Model: "gemini-1.5-flash"})
	if err == nil || !strings.Contains(err.Error(), "missing api key") {
		t.Errorf("err = %v", err)
	}
}

func TestGeminiHistory(t *testing.T) {
	system, history := geminiHistory([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "weather?"},
	})
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	if len(history) != 3 {
		t.Fatalf("history len = %d", len(history))
	}
	wantRoles := []string{"user", "model", "user"}
	for i, c := range history {
		if c.Role != wantRoles[i] {
			t.Errorf("history[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if txt, ok := history[2].Parts[0].(genai.Text); !ok || string(txt) != "weather?" {
		t.Errorf("last part = %#v", history[2].Parts[0])
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("<ls>"), genai.Text("</ls>")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	if got := responseText(resp); got != "<ls></ls>" {
		t.Errorf("responseText = %q", got)
	}
}
