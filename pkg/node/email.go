package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gsoultan/gsmail"
	"github.com/gsoultan/gsmail/smtp"
	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/evaluator"
	"github.com/user/verdandi/pkg/util"
)

// EmailNode sends the node input as an email. SMTP settings come from the
// node's credential bundle (host, port, username, password, ssl, from) with
// config values as fallback; an injected sender overrides both.
type EmailNode struct {
	sender gsmail.Sender
	verify func(ctx context.Context, address string) (bool, string)
}

func NewEmail(sender gsmail.Sender) *EmailNode {
	return &EmailNode{sender: sender, verify: util.VerifyEmailExists}
}

func (e *EmailNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	creds, err := resolveCredential(ctx, node, ec)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}
	setting := func(key string) string {
		if v := creds[key]; v != "" {
			return v
		}
		return node.ConfigString(key)
	}

	sender := e.sender
	if sender == nil {
		host := setting("host")
		if host == "" {
			return nil, fmt.Errorf("email node %s has no smtp host", node.ID)
		}
		port, err := strconv.Atoi(setting("port"))
		if err != nil {
			port = 587
		}
		ssl := setting("ssl") == "true"
		sender = smtp.NewSender(host, port, setting("username"), setting("password"), ssl)
	}

	var to []string
	for _, addr := range strings.Split(node.ConfigString("to"), ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			to = append(to, trimmed)
		}
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("email node %s has no recipients", node.ID)
	}

	// Optional MX-level probe before sending anything.
	if node.ConfigBool("verify_recipients") && e.verify != nil {
		for _, addr := range to {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			ok, reason := e.verify(probeCtx, addr)
			cancel()
			if !ok {
				return nil, fmt.Errorf("email node %s: recipient %s not verified: %s", node.ID, addr, reason)
			}
		}
	}

	from := setting("from")
	if from == "" {
		from = setting("username")
	}

	email := gsmail.Email{
		From:    from,
		To:      to,
		Subject: evaluator.ResolveTemplate(node.ConfigString("subject"), input),
	}
	if tmpl := node.ConfigString("body"); tmpl != "" {
		if err := email.SetBody(tmpl, input); err != nil {
			return nil, fmt.Errorf("failed to set body: %w", err)
		}
	} else {
		payload, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		email.Body = payload
	}

	if err := sender.Send(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]interface{}{
		"sent":       true,
		"recipients": len(to),
	}, nil
}
