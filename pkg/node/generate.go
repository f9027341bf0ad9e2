package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/evaluator"
)

// GenerateNode calls an OpenAI-compatible chat completion endpoint with the
// configured prompt resolved against the node input. The API key comes from
// the node credential bundle or OPENAI_API_KEY; ollama-prefixed models talk
// to a local server and need no key.
type GenerateNode struct {
	client  *http.Client
	baseURL string
	model   string
}

func NewGenerate(client *http.Client, baseURL, model string) *GenerateNode {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &GenerateNode{client: client, baseURL: baseURL, model: model}
}

func (g *GenerateNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	promptTmpl := node.ConfigString("prompt")
	if promptTmpl == "" {
		return nil, fmt.Errorf("generate node %s has no prompt", node.ID)
	}
	prompt := evaluator.ResolveTemplate(promptTmpl, input)

	model := node.ConfigString("model")
	if model == "" {
		model = g.model
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	creds, err := resolveCredential(ctx, node, ec)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}
	apiKey := creds["api_key"]
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && !strings.HasPrefix(model, "ollama") {
		return nil, fmt.Errorf("generate node %s is not configured: missing api key", node.ID)
	}

	url := g.baseURL
	if url == "" {
		url = "https://api.openai.com/v1"
		if strings.HasPrefix(model, "ollama") {
			url = "http://localhost:11434/v1"
		}
	}
	url = strings.TrimRight(url, "/") + "/chat/completions"

	messages := []map[string]string{}
	if system := node.ConfigString("system"); system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	payload, err := json.Marshal(map[string]interface{}{
		"model":    strings.TrimPrefix(model, "ollama/"),
		"messages": messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}

	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	return map[string]interface{}{
		"content": res.Choices[0].Message.Content,
		"model":   model,
	}, nil
}
