// Package fixtures loads automations, subscribers and templates from YAML.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"

	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrDuplicateID = errors.New("duplicate id")

type Bundle struct {
	Automations []*models.Automation `yaml:"automations"`
	Subscribers []*models.Subscriber `yaml:"subscribers"`
	Templates   []*mail.Template     `yaml:"templates"`
}

func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Bundle, error) {
	var bundle Bundle

	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	return &bundle, nil
}

// Validate checks every automation against its struct tags, its graph
// rules and the params schema of each node type in reg. All problems
// are returned together, each prefixed with the automation id.
func (b *Bundle) Validate(reg *registry.Registry) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	var errs []error

	seen := make(map[string]bool, len(b.Automations))

	for i, automation := range b.Automations {
		name := automation.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}

		if seen[automation.ID] {
			errs = append(errs, fmt.Errorf("automation %s: %w", name, ErrDuplicateID))
		}

		seen[automation.ID] = true

		if err := validate.Struct(automation); err != nil {
			errs = append(errs, fmt.Errorf("automation %s: %w", name, err))

			continue
		}

		if err := reg.ValidateAutomation(automation); err != nil {
			errs = append(errs, fmt.Errorf("automation %s: %w", name, err))
		}
	}

	for i, subscriber := range b.Subscribers {
		if subscriber.ID == "" || subscriber.Email == "" {
			errs = append(errs, fmt.Errorf("subscriber #%d: id and email are required", i))
		}
	}

	return errors.Join(errs...)
}

// Seed writes the bundle into p. Existing records with the same ids are
// replaced.
func (b *Bundle) Seed(ctx context.Context, p persistence.Persistence) error {
	for _, subscriber := range b.Subscribers {
		if err := p.SubscriberRepository().Save(ctx, subscriber); err != nil {
			return fmt.Errorf("failed to seed subscriber %s: %w", subscriber.ID, err)
		}
	}

	for _, automation := range b.Automations {
		if err := p.AutomationRepository().Save(ctx, automation); err != nil {
			return fmt.Errorf("failed to seed automation %s: %w", automation.ID, err)
		}
	}

	return nil
}

func (b *Bundle) TemplateStore() *mail.MapTemplateStore {
	return mail.NewMapTemplateStore(b.Templates...)
}
