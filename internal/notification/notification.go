// Package notification alerts operators about failed workflow runs.
// The notifier consumes execution events from the hub, ignores anything
// that is not a terminal failure, and fans each failure out to the
// configured channels. A per-workflow cooldown keeps a misfiring
// schedule from flooding every channel with identical alerts.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gsoultan/gsmail/smtp"

	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/events"
	"github.com/user/verdandi/internal/storage"
)

// Config enables channels by filling in their settings. A channel with
// an empty setting is not built.
type Config struct {
	SMTPHost     string `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" json:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user" json:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password" json:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from" json:"smtp_from"`
	SMTPSSL      bool   `yaml:"smtp_ssl" json:"smtp_ssl"`
	EmailTo      string `yaml:"email_to" json:"email_to"`

	SlackWebhook   string `yaml:"slack_webhook" json:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook" json:"discord_webhook"`
	TelegramToken  string `yaml:"telegram_token" json:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id" json:"telegram_chat_id"`
	WebhookURL     string `yaml:"webhook_url" json:"webhook_url"`

	// BaseURL, when set, adds a link to the run in every message.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Channels builds the providers the config enables.
func (c Config) Channels() []Provider {
	var out []Provider
	if c.SMTPHost != "" && c.EmailTo != "" {
		out = append(out, &EmailProvider{
			Sender:  smtp.NewSender(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.SMTPSSL),
			From:    c.SMTPFrom,
			To:      c.EmailTo,
			BaseURL: c.BaseURL,
		})
	}
	if c.SlackWebhook != "" {
		out = append(out, &SlackProvider{WebhookURL: c.SlackWebhook, BaseURL: c.BaseURL})
	}
	if c.DiscordWebhook != "" {
		out = append(out, &DiscordProvider{WebhookURL: c.DiscordWebhook, BaseURL: c.BaseURL})
	}
	if c.TelegramToken != "" && c.TelegramChatID != "" {
		out = append(out, &TelegramProvider{Token: c.TelegramToken, ChatID: c.TelegramChatID, BaseURL: c.BaseURL})
	}
	if c.WebhookURL != "" {
		out = append(out, &WebhookProvider{URL: c.WebhookURL, BaseURL: c.BaseURL})
	}
	return out
}

// Failure describes one failed run for the channels to render.
type Failure struct {
	ExecutionID  string
	WorkflowID   string
	WorkflowName string
	Status       string
	Error        string
	At           time.Time
}

func (f Failure) title() string {
	return fmt.Sprintf("Workflow %q %s", f.WorkflowName, f.Status)
}

func (f Failure) detail() string {
	if f.Error == "" {
		return "no error recorded"
	}
	return f.Error
}

// Provider delivers one failure over one channel.
type Provider interface {
	Send(ctx context.Context, f Failure) error
	Type() string
}

// WorkflowNamer is the slice of the storage interface the notifier
// needs to resolve workflow names for its messages.
type WorkflowNamer interface {
	GetWorkflow(ctx context.Context, id string) (*storage.Workflow, error)
}

// Notifier turns failure events into channel deliveries.
type Notifier struct {
	providers []Provider
	storage   WorkflowNamer
	hub       *events.Hub
	logger    verdandi.Logger
	cooldown  time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	done chan struct{}
}

// New builds a notifier with the channels cfg enables. The storage is
// used to resolve workflow names for the messages; the hub is where
// Start listens for failures. Both may be nil for a notifier that is
// only driven directly.
func New(cfg Config, st WorkflowNamer, hub *events.Hub, logger verdandi.Logger) *Notifier {
	if logger == nil {
		logger = verdandi.NopLogger{}
	}
	return &Notifier{
		providers: cfg.Channels(),
		storage:   st,
		hub:       hub,
		logger:    logger,
		cooldown:  5 * time.Minute,
		lastSent:  make(map[string]time.Time),
	}
}

// AddProvider registers an extra channel.
func (n *Notifier) AddProvider(p Provider) {
	n.providers = append(n.providers, p)
}

// Channels reports the types of the registered providers.
func (n *Notifier) Channels() []string {
	out := make([]string, 0, len(n.providers))
	for _, p := range n.providers {
		out = append(out, p.Type())
	}
	return out
}

// Start subscribes to the hub and watches for terminal failures until
// ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	if n.hub == nil {
		return
	}
	ch, unsub := n.hub.Subscribe(64)
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		for {
			select {
			case <-ctx.Done():
				unsub()
				for range ch {
				}
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				n.handle(ctx, ev)
			}
		}
	}()
}

// Wait blocks until the event loop started by Start has exited.
func (n *Notifier) Wait() {
	if n.done != nil {
		<-n.done
	}
}

// handle filters for execution-level failures and resolves the workflow
// name before fanning out. Node events carry a node ID and are skipped;
// the run's own terminal event follows anyway.
func (n *Notifier) handle(ctx context.Context, ev events.Event) {
	if ev.NodeID != "" {
		return
	}
	if ev.Status != storage.ExecutionFailed && ev.Status != storage.ExecutionTimeout {
		return
	}
	f := Failure{
		ExecutionID:  ev.ExecutionID,
		WorkflowID:   ev.WorkflowID,
		WorkflowName: ev.WorkflowID,
		Status:       ev.Status,
		Error:        ev.Error,
		At:           ev.At,
	}
	if n.storage != nil {
		if wf, err := n.storage.GetWorkflow(ctx, ev.WorkflowID); err == nil {
			f.WorkflowName = wf.Name
		}
	}
	n.Notify(ctx, f)
}

// Notify fans one failure out to every channel. Repeat failures of the
// same workflow inside the cooldown window are swallowed.
func (n *Notifier) Notify(ctx context.Context, f Failure) {
	n.mu.Lock()
	if last, ok := n.lastSent[f.WorkflowID]; ok && time.Since(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent[f.WorkflowID] = time.Now()
	n.mu.Unlock()

	for _, p := range n.providers {
		if err := p.Send(ctx, f); err != nil {
			n.logger.Error("failed to deliver notification",
				"channel", p.Type(), "workflow_id", f.WorkflowID, "error", err)
		}
	}
}

// TestResult reports the outcome of a test delivery on one channel.
type TestResult struct {
	Channel string `json:"channel"`
	Status  string `json:"status"` // "ok" or "error"
	Error   string `json:"error,omitempty"`
}

// Test pushes a synthetic failure through every channel so an operator
// can check the settings before relying on them. The cooldown does not
// apply.
func (n *Notifier) Test(ctx context.Context) []TestResult {
	f := Failure{
		ExecutionID:  "test",
		WorkflowID:   "test",
		WorkflowName: "Test Notification",
		Status:       storage.ExecutionFailed,
		Error:        "this is a test notification",
		At:           time.Now().UTC(),
	}
	results := make([]TestResult, 0, len(n.providers))
	for _, p := range n.providers {
		if err := p.Send(ctx, f); err != nil {
			results = append(results, TestResult{Channel: p.Type(), Status: "error", Error: err.Error()})
		} else {
			results = append(results, TestResult{Channel: p.Type(), Status: "ok"})
		}
	}
	return results
}
