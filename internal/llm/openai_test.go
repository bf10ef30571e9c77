package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "test-model" {
			http.Error(w, "wrong model", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"the capital is Paris"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator("test-key", srv.URL+"/v1", "test-model", 128, 0)
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	defer g.Close()

	out, err := g.Generate(context.Background(), "what is the capital of France?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "the capital is Paris" {
		t.Errorf("Generate: got %q", out)
	}
}

func TestOpenAIGenerator_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator("test-key", srv.URL+"/v1", "test-model", 128, 0)
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	if _, err := g.Generate(context.Background(), "q"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestOpenAIGenerator_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator("test-key", srv.URL+"/v1", "test-model", 128, 0)
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	if _, err := g.Generate(context.Background(), "q"); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestNewOpenAIGeneratorValidation(t *testing.T) {
	if _, err := NewOpenAIGenerator("k", "", "", 0, 0); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestMockGeneratorRecordsPrompts(t *testing.T) {
	g := &MockGenerator{RespondFunc: func(prompt string) (string, error) {
		return "echo: " + prompt, nil
	}}
	out, err := g.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "echo: hello" {
		t.Errorf("got %q", out)
	}
	if g.CallCount() != 1 || g.Prompts()[0] != "hello" {
		t.Errorf("prompt not recorded: %v", g.Prompts())
	}
}
