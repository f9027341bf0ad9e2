package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/verdandi"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, content string, got *chatRequest, gotAuth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestGenerateChatCompletion(t *testing.T) {
	var got chatRequest
	var gotAuth string
	server := chatServer(t, "cats are small", &got, &gotAuth)
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{"api_key": "test-key"}}
	n := verdandi.Node{
		ID:   "summarize",
		Type: "agent.generate",
		Config: map[string]interface{}{
			"prompt": "Summarize {{topic}}",
			"system": "You are terse.",
		},
		Credential: "openai/default",
	}
	g := NewGenerate(nil, server.URL, "gpt-4o-mini")
	out, err := g.Execute(context.Background(), n, map[string]interface{}{"topic": "cats"}, testEC(resolver))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["content"] != "cats are small" {
		t.Errorf("unexpected content: %v", out["content"])
	}
	if out["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected model: %v", out["model"])
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("unexpected model in request: %s", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %v", got.Messages)
	}
	if got.Messages[1].Content != "Summarize cats" {
		t.Errorf("prompt not resolved: %s", got.Messages[1].Content)
	}
}

func TestGenerateOllamaNeedsNoKey(t *testing.T) {
	var got chatRequest
	var gotAuth string
	server := chatServer(t, "ok", &got, &gotAuth)
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "")
	n := verdandi.Node{
		ID:     "summarize",
		Type:   "agent.generate",
		Config: map[string]interface{}{"prompt": "hi", "model": "ollama/llama3"},
	}
	out, err := NewGenerate(nil, server.URL, "").Execute(context.Background(), n, nil, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no auth header, got %q", gotAuth)
	}
	if got.Model != "llama3" {
		t.Errorf("ollama prefix not stripped: %s", got.Model)
	}
	if out["model"] != "ollama/llama3" {
		t.Errorf("unexpected model: %v", out["model"])
	}
}

func TestGenerateMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	n := verdandi.Node{
		ID:     "summarize",
		Type:   "agent.generate",
		Config: map[string]interface{}{"prompt": "hi"},
	}
	_, err := NewGenerate(nil, "", "").Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "missing api key") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestGenerateMissingPrompt(t *testing.T) {
	n := verdandi.Node{ID: "summarize", Type: "agent.generate"}
	_, err := NewGenerate(nil, "", "").Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "no prompt") {
		t.Errorf("expected missing prompt error, got %v", err)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{"api_key": "k"}}
	n := verdandi.Node{
		ID:         "summarize",
		Type:       "agent.generate",
		Config:     map[string]interface{}{"prompt": "hi"},
		Credential: "openai/default",
	}
	_, err := NewGenerate(nil, server.URL, "").Execute(context.Background(), n, nil, testEC(resolver))
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{"api_key": "k"}}
	n := verdandi.Node{
		ID:         "summarize",
		Type:       "agent.generate",
		Config:     map[string]interface{}{"prompt": "hi"},
		Credential: "openai/default",
	}
	_, err := NewGenerate(nil, server.URL, "").Execute(context.Background(), n, nil, testEC(resolver))
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected no choices error, got %v", err)
	}
}
