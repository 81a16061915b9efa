// Package cmd holds the wiring shared by the dripline binaries.
package cmd

import (
	"log/slog"
	"time"

	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/nodes/condition"
	"github.com/dripline/dripline/pkg/nodes/delay"
	"github.com/dripline/dripline/pkg/nodes/email"
	"github.com/dripline/dripline/pkg/nodes/end"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/registry"
)

const templateCacheTTL = 5 * time.Minute

// NodeDeps are the collaborators of the built-in node handlers.
type NodeDeps struct {
	Persistence persistence.Persistence
	Templates   mail.TemplateStore
	Providers   mail.ProviderResolver
	Tracker     mail.Tracker
	Scheduler   delay.Scheduler
}

func NewRegistry(logger *slog.Logger) *registry.Registry {
	return registry.NewRegistry(logger)
}

// RegisterNodes binds EMAIL, DELAY, CONDITION and END. Templates are wrapped
// in a short-lived cache.
func RegisterNodes(reg *registry.Registry, logger *slog.Logger, deps NodeDeps) {
	templates := deps.Templates
	if templates != nil {
		templates = mail.NewCachedTemplateStore(templates, templateCacheTTL, logger)
	}

	providers := deps.Providers
	if providers == nil {
		providers = mail.StaticResolver{Provider: &mail.Provider{
			Name:   "log",
			From:   "noreply@dripline.local",
			Sender: mail.NewLogSender(logger),
		}}
	}

	reg.Register(email.NewHandler(email.Config{
		Subscribers: deps.Persistence.SubscriberRepository(),
		Sends:       deps.Persistence.SendRepository(),
		ActionLogs:  deps.Persistence.ActionLogRepository(),
		Templates:   templates,
		Providers:   providers,
		Tracker:     deps.Tracker,
		Logger:      logger,
	}))
	reg.Register(delay.NewHandler(deps.Scheduler, logger))
	reg.Register(condition.NewHandler(deps.Persistence.SendRepository(), logger))
	reg.Register(end.NewHandler())
}
