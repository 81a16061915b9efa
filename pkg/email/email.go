// Package email holds the delivery-side collaborators of EMAIL nodes: content
// lookup, provider resolution, tracking injection and the senders themselves.
package email

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDelivery         = errors.New("email delivery failed")
	ErrTemplateNotFound = errors.New("email template not found")
	ErrNoProvider       = errors.New("no email provider configured")
	ErrNoRecipient      = errors.New("message has no recipient")
)

// Message is a fully rendered email.
type Message struct {
	To      string
	From    string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Provider is the sending identity and transport configured for one account.
type Provider struct {
	Name   string
	From   string
	Sender Sender
}

// ProviderResolver finds the provider to send with on behalf of userID.
type ProviderResolver interface {
	Resolve(ctx context.Context, userID string) (*Provider, error)
}

// Template is stored email content.
type Template struct {
	ID      string `json:"id"      yaml:"id"`
	Subject string `json:"subject" yaml:"subject"`
	HTML    string `json:"html"    yaml:"html"`
	Text    string `json:"text"    yaml:"text"`
}

// TemplateStore looks up templates by id.
type TemplateStore interface {
	Template(ctx context.Context, id string) (*Template, error)
}

// DeliveryError wraps a transport failure with the provider that produced it.
type DeliveryError struct {
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// IsDeliveryError checks if an error came from a sender.
func IsDeliveryError(err error) bool {
	return errors.Is(err, ErrDelivery)
}

// Deliver sends msg through provider, filling From and wrapping failures
// as *DeliveryError.
func Deliver(ctx context.Context, provider *Provider, msg Message) error {
	if msg.To == "" {
		return &DeliveryError{Provider: provider.Name, Err: ErrNoRecipient}
	}

	if msg.From == "" {
		msg.From = provider.From
	}

	if err := provider.Sender.Send(ctx, msg); err != nil {
		return &DeliveryError{Provider: provider.Name, Err: err}
	}

	return nil
}
