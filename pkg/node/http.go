package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/evaluator"
)

// responses larger than this are cut off rather than buffered whole
const maxResponseBytes = 10 << 20

// HTTPNode backs both source.http and output.http. A source defaults to GET,
// an output to POST with the node input as JSON body.
type HTTPNode struct {
	client *http.Client
}

func NewHTTP(client *http.Client) *HTTPNode {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNode{client: client}
}

func (h *HTTPNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	rawURL := node.ConfigString("url")
	if rawURL == "" {
		return nil, fmt.Errorf("http node %s has no url", node.ID)
	}
	url := evaluator.ResolveTemplate(rawURL, input)

	method := strings.ToUpper(node.ConfigString("method"))
	if method == "" {
		method = http.MethodGet
		if strings.HasPrefix(node.Type, "output.") {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		payload, err := h.requestBody(node, input)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := node.Config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, evaluator.ResolveTemplate(s, input))
			}
		}
	}

	creds, err := resolveCredential(ctx, node, ec)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}
	token, err := h.bearerToken(ctx, creds)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if creds["username"] != "" {
		req.SetBasicAuth(creds["username"], creds["password"])
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return map[string]interface{}{
		"status": resp.StatusCode,
		"body":   decodeBody(raw),
	}, nil
}

// bearerToken returns the static token from the credential, or fetches
// one with the client-credentials grant when the credential carries
// client_id and token_url instead. Tokens are fetched per execution,
// matching the lifetime of everything else a node opens.
func (h *HTTPNode) bearerToken(ctx context.Context, creds map[string]string) (string, error) {
	if token := creds["token"]; token != "" {
		return token, nil
	}
	if creds["client_id"] == "" || creds["token_url"] == "" {
		return "", nil
	}
	cfg := &clientcredentials.Config{
		ClientID:     creds["client_id"],
		ClientSecret: creds["client_secret"],
		TokenURL:     creds["token_url"],
	}
	if scopes := creds["scopes"]; scopes != "" {
		cfg.Scopes = strings.Fields(scopes)
	}
	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, h.client))
	if err != nil {
		return "", fmt.Errorf("failed to fetch oauth2 token: %w", err)
	}
	return tok.AccessToken, nil
}

// requestBody renders the configured body template, or marshals the whole
// input when none is set.
func (h *HTTPNode) requestBody(node verdandi.Node, input map[string]interface{}) ([]byte, error) {
	if tmpl := node.ConfigString("body"); tmpl != "" {
		return []byte(evaluator.ResolveTemplate(tmpl, input)), nil
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return payload, nil
}

// decodeBody returns parsed JSON when the payload is JSON, the raw string
// otherwise.
func decodeBody(raw []byte) interface{} {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
