package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gsoultan/gsmail"

	"github.com/user/verdandi"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = httpClient
	}
	return client.Do(req)
}

// LogProvider surfaces failures through the engine's own logger, so a
// deployment with no external channel still has alerts in one place.
type LogProvider struct {
	Logger verdandi.Logger
}

func (p *LogProvider) Send(ctx context.Context, f Failure) error {
	p.Logger.Error("workflow run failed",
		"workflow_id", f.WorkflowID, "workflow", f.WorkflowName,
		"execution_id", f.ExecutionID, "status", f.Status, "error", f.Error)
	return nil
}

func (p *LogProvider) Type() string { return "log" }

// EmailProvider mails failures to a fixed operator address.
type EmailProvider struct {
	Sender  gsmail.Sender
	From    string
	To      string
	BaseURL string
}

func (p *EmailProvider) Send(ctx context.Context, f Failure) error {
	body := fmt.Sprintf("%s\n\nExecution: %s\nError: %s", f.title(), f.ExecutionID, f.detail())
	if p.BaseURL != "" {
		body += fmt.Sprintf("\nDetails: %s/workflows/%s", p.BaseURL, f.WorkflowID)
	}
	return p.Sender.Send(ctx, gsmail.Email{
		From:    p.From,
		To:      []string{p.To},
		Subject: f.title(),
		Body:    []byte(body),
	})
}

func (p *EmailProvider) Type() string { return "email" }

// SlackProvider posts to an incoming-webhook URL.
type SlackProvider struct {
	WebhookURL string
	BaseURL    string
	Client     *http.Client
}

func (p *SlackProvider) Send(ctx context.Context, f Failure) error {
	text := fmt.Sprintf("*%s*\n%s", f.title(), f.detail())
	if p.BaseURL != "" {
		text += fmt.Sprintf("\n<%s/workflows/%s|View details>", p.BaseURL, f.WorkflowID)
	}
	payload := map[string]interface{}{
		"text": text,
		"attachments": []map[string]interface{}{{
			"color": "#ff0000",
			"fields": []map[string]interface{}{
				{"title": "Workflow", "value": f.WorkflowName, "short": true},
				{"title": "Execution", "value": f.ExecutionID, "short": true},
				{"title": "Status", "value": f.Status, "short": true},
			},
		}},
	}
	resp, err := postJSON(ctx, p.Client, p.WebhookURL, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *SlackProvider) Type() string { return "slack" }

// DiscordProvider posts to a channel webhook.
type DiscordProvider struct {
	WebhookURL string
	BaseURL    string
	Client     *http.Client
}

func (p *DiscordProvider) Send(ctx context.Context, f Failure) error {
	content := fmt.Sprintf("**%s**", f.title())
	if p.BaseURL != "" {
		content += fmt.Sprintf("\n[View details](%s/workflows/%s)", p.BaseURL, f.WorkflowID)
	}
	payload := map[string]interface{}{
		"content": content,
		"embeds": []map[string]interface{}{{
			"title":       f.title(),
			"description": f.detail(),
			"color":       16711680, // red
			"fields": []map[string]interface{}{
				{"name": "Workflow", "value": f.WorkflowName, "inline": true},
				{"name": "Execution", "value": f.ExecutionID, "inline": true},
			},
		}},
	}
	resp, err := postJSON(ctx, p.Client, p.WebhookURL, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *DiscordProvider) Type() string { return "discord" }

// TelegramProvider messages a chat through the bot API.
type TelegramProvider struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  *http.Client

	// APIBase overrides https://api.telegram.org, for tests.
	APIBase string
}

func (p *TelegramProvider) Send(ctx context.Context, f Failure) error {
	text := fmt.Sprintf("*%s*\n%s", f.title(), f.detail())
	if p.BaseURL != "" {
		text += fmt.Sprintf("\n[View details](%s/workflows/%s)", p.BaseURL, f.WorkflowID)
	}
	base := p.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	resp, err := postJSON(ctx, p.Client, fmt.Sprintf("%s/bot%s/sendMessage", base, p.Token), map[string]string{
		"chat_id":    p.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var result map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram returned status %d: %v", resp.StatusCode, result["description"])
	}
	return nil
}

func (p *TelegramProvider) Type() string { return "telegram" }

// WebhookProvider posts the failure as plain JSON to an arbitrary URL.
type WebhookProvider struct {
	URL     string
	BaseURL string
	Client  *http.Client
}

func (p *WebhookProvider) Send(ctx context.Context, f Failure) error {
	payload := map[string]interface{}{
		"execution_id": f.ExecutionID,
		"workflow_id":  f.WorkflowID,
		"workflow":     f.WorkflowName,
		"status":       f.Status,
		"error":        f.Error,
		"at":           f.At.Format(time.RFC3339),
	}
	if p.BaseURL != "" {
		payload["details_url"] = fmt.Sprintf("%s/workflows/%s", p.BaseURL, f.WorkflowID)
	}
	resp, err := postJSON(ctx, p.Client, p.URL, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *WebhookProvider) Type() string { return "webhook" }
