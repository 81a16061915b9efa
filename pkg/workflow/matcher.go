package workflow

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
)

var listScopeKeys = []string{"lists", "listIds", "listId"}

// Matcher selects the automations a domain event starts.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With("module", "event_matcher"),
	}
}

// Match returns the runnable candidates whose trigger accepts event. The
// result order is not significant.
func (m *Matcher) Match(event *events.DomainEvent, candidates []*models.Automation) []*models.Automation {
	var matched []*models.Automation

	for _, automation := range candidates {
		if m.matches(event, automation) {
			matched = append(matched, automation)
		}
	}

	m.logger.Debug("Matched event",
		"event_type", event.Type,
		"subscriber_id", event.Payload.SubscriberID,
		"candidates", len(candidates),
		"matched", len(matched))

	return matched
}

func (m *Matcher) matches(event *events.DomainEvent, automation *models.Automation) bool {
	if !automation.IsRunnable() {
		return false
	}

	if automation.Trigger.Type != string(event.Type) {
		return false
	}

	if events.IsUserScoped(event.Type) && event.Payload.UserID != automation.UserID {
		return false
	}

	scope := ListScope(automation.Trigger.Params)
	if len(scope) == 0 {
		return true
	}

	for _, list := range event.Payload.Lists {
		if slices.Contains(scope, list) {
			return true
		}
	}

	return false
}

// ListScope reads the lists a trigger is restricted to. A single id or a
// list of ids is accepted under any of the supported keys.
func ListScope(params map[string]any) []string {
	for _, key := range listScopeKeys {
		raw, ok := params[key]
		if !ok || raw == nil {
			continue
		}

		if lists := toStrings(raw); len(lists) > 0 {
			return lists
		}
	}

	return nil
}

func toStrings(raw any) []string {
	if s, ok := raw.(string); ok {
		if s == "" {
			return nil
		}

		return []string{s}
	}

	value := reflect.ValueOf(raw)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return []string{fmt.Sprint(raw)}
	}

	lists := make([]string, 0, value.Len())

	for i := range value.Len() {
		item := value.Index(i).Interface()
		if item == nil {
			continue
		}

		if s := fmt.Sprint(item); s != "" {
			lists = append(lists, s)
		}
	}

	return lists
}
