// Package email implements the EMAIL node: render, track, deliver and log
// one message to the subscriber the run belongs to.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/template"
)

var ErrNoContent = errors.New("email node has neither templateId nor inline content")

type Config struct {
	Subscribers persistence.SubscriberRepository
	Sends       persistence.SendRepository
	ActionLogs  persistence.ActionLogRepository
	Templates   mail.TemplateStore
	Providers   mail.ProviderResolver
	Tracker     mail.Tracker
	Logger      *slog.Logger
	Now         func() time.Time
}

type Handler struct {
	subscribers persistence.SubscriberRepository
	sends       persistence.SendRepository
	actionLogs  persistence.ActionLogRepository
	templates   mail.TemplateStore
	providers   mail.ProviderResolver
	tracker     mail.Tracker
	logger      *slog.Logger
	now         func() time.Time
}

func NewHandler(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Handler{
		subscribers: cfg.Subscribers,
		sends:       cfg.Sends,
		actionLogs:  cfg.ActionLogs,
		templates:   cfg.Templates,
		providers:   cfg.Providers,
		tracker:     cfg.Tracker,
		logger:      cfg.Logger.With("module", "email_node"),
		now:         now,
	}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeEmail
}

func (h *Handler) Name() string {
	return "Send Email"
}

func (h *Handler) Description() string {
	return "Sends a personalised email to the subscriber, either from a stored template or from inline content"
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"templateId": map[string]any{
				"type":        "string",
				"description": "Stored template to render",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Inline subject, used when templateId is empty",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Inline HTML body",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Inline plain text body",
			},
			"from": map[string]any{
				"type":        "string",
				"description": "Overrides the provider sender address",
			},
		},
		"anyOf": []any{
			map[string]any{"required": []any{"templateId"}},
			map[string]any{"required": []any{"subject", "body"}},
		},
	}
}

// Execute always continues with node.Next once the attempt is logged;
// only storage failures abort the run.
func (h *Handler) Execute(ctx context.Context, input protocol.NodeInput) (protocol.Step, error) {
	node := input.Node
	logger := h.logger.With("automation_id", input.Automation.ID, "node_id", node.ID, "subscriber_id", input.SubscriberID)

	record := models.NewSendRecord(input.Automation.ID, node.ID, input.SubscriberID, h.now())
	if err := h.sends.Create(ctx, record); err != nil {
		return protocol.Step{}, fmt.Errorf("failed to create send record: %w", err)
	}

	entry := models.NewActionLog(input.Automation.ID, node.ID, input.SubscriberID, models.ActionStatusSuccess, h.now())
	entry.Input["send_id"] = record.ID

	msg, provider, sendErr := h.prepare(ctx, input, record.ID)
	if sendErr == nil {
		entry.Input["to"] = msg.To
		entry.Input["subject"] = msg.Subject
		entry.Output["provider"] = provider.Name
		sendErr = mail.Deliver(ctx, provider, msg)
	}

	if sendErr != nil {
		logger.WarnContext(ctx, "Email not delivered", "error", sendErr)

		entry.Status = models.ActionStatusFailure
		entry.Error = sendErr.Error()

		if err := h.sends.MarkFailed(ctx, record.ID, sendErr.Error()); err != nil {
			return protocol.Step{}, fmt.Errorf("failed to mark send failed: %w", err)
		}
	} else {
		logger.InfoContext(ctx, "Email delivered", "send_id", record.ID)

		if err := h.sends.MarkSent(ctx, record.ID); err != nil {
			return protocol.Step{}, fmt.Errorf("failed to mark send sent: %w", err)
		}
	}

	if err := h.actionLogs.Append(ctx, entry); err != nil {
		return protocol.Step{}, fmt.Errorf("failed to append action log: %w", err)
	}

	return protocol.Continue(node.Next), nil
}

func (h *Handler) prepare(ctx context.Context, input protocol.NodeInput, sendID string) (mail.Message, *mail.Provider, error) {
	subscriber, err := h.subscribers.ByID(ctx, input.SubscriberID)
	if err != nil {
		return mail.Message{}, nil, err
	}

	content, err := h.content(ctx, input.Node)
	if err != nil {
		return mail.Message{}, nil, err
	}

	data := template.EmailData(input.Automation, subscriber)

	msg := mail.Message{To: subscriber.Email, From: input.Node.StringParam("from")}

	if msg.Subject, err = template.Render(content.Subject, data); err != nil {
		return mail.Message{}, nil, err
	}

	if msg.HTML, err = template.Render(content.HTML, data); err != nil {
		return mail.Message{}, nil, err
	}

	if msg.Text, err = template.Render(content.Text, data); err != nil {
		return mail.Message{}, nil, err
	}

	provider, err := h.providers.Resolve(ctx, input.Automation.UserID)
	if err != nil {
		return mail.Message{}, nil, err
	}

	return h.tracker.Inject(msg, sendID, subscriber.ID), provider, nil
}

func (h *Handler) content(ctx context.Context, node models.Node) (*mail.Template, error) {
	if id := node.StringParam("templateId"); id != "" {
		if h.templates == nil {
			return nil, fmt.Errorf("%s: %w", id, mail.ErrTemplateNotFound)
		}

		return h.templates.Template(ctx, id)
	}

	subject := node.StringParam("subject")
	body := node.StringParam("body")
	text := node.StringParam("text")

	if subject == "" && body == "" && text == "" {
		return nil, ErrNoContent
	}

	return &mail.Template{Subject: subject, HTML: body, Text: text}, nil
}
