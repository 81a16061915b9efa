package email

import (
	"context"
	"log/slog"
	"sync"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "log-sender")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "Email sent",
		"to", msg.To,
		"from", msg.From,
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML),
		"text_bytes", len(msg.Text))

	return nil
}

// RecordingSender keeps every message in memory, or fails with Err when set.
type RecordingSender struct {
	mu       sync.Mutex
	Err      error
	messages []Message
}

func (s *RecordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	s.messages = append(s.messages, msg)

	return nil
}

func (s *RecordingSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Message(nil), s.messages...)
}

// StaticResolver returns the same provider for every account.
type StaticResolver struct {
	Provider *Provider
}

func (r StaticResolver) Resolve(_ context.Context, _ string) (*Provider, error) {
	if r.Provider == nil || r.Provider.Sender == nil {
		return nil, ErrNoProvider
	}

	return r.Provider, nil
}
