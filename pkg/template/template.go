// Package template renders subscriber personalisation into email content.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dripline/dripline/pkg/models"
)

// EmailData builds the template data for one subscriber inside one
// automation. Subscriber fields are available both at the top level
// ({{.first_name}}) and under .subscriber.
func EmailData(automation *models.Automation, subscriber *models.Subscriber) map[string]any {
	data := map[string]any{}

	if subscriber != nil {
		vars := subscriber.Variables()
		for k, v := range vars {
			data[k] = v
		}

		data["subscriber"] = vars
	}

	if automation != nil {
		data["automation"] = map[string]any{
			"id":   automation.ID,
			"name": automation.Name,
		}
	}

	return data
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}

		if s, ok := value.(string); ok && s == "" {
			return fallback
		}

		return value
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if s == "" {
			return s
		}

		return strings.ToUpper(s[:1]) + s[1:]
	},
}

// Render executes templateStr against data. Missing keys render as empty.
func Render(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.New("email").Funcs(funcs).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
