package models

import "strings"

// Subscriber is the read-only directory view of a contact.
type Subscriber struct {
	ID           string         `bson:"_id"                     json:"id"                      yaml:"id"`
	UserID       string         `bson:"user_id"                 json:"user_id"                 yaml:"user_id"`
	Email        string         `bson:"email"                   json:"email"                   yaml:"email"`
	FirstName    string         `bson:"first_name,omitempty"    json:"first_name,omitempty"    yaml:"first_name,omitempty"`
	LastName     string         `bson:"last_name,omitempty"     json:"last_name,omitempty"     yaml:"last_name,omitempty"`
	Lists        []string       `bson:"lists,omitempty"         json:"lists,omitempty"         yaml:"lists,omitempty"`
	CustomFields map[string]any `bson:"custom_fields,omitempty" json:"custom_fields,omitempty" yaml:"custom_fields,omitempty"`
}

func (s *Subscriber) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Variables exposes the subscriber to email templates. Custom fields are
// nested under "fields" so they cannot shadow the built-in names.
func (s *Subscriber) Variables() map[string]any {
	fields := make(map[string]any, len(s.CustomFields))
	for k, v := range s.CustomFields {
		fields[k] = v
	}

	return map[string]any{
		"id":         s.ID,
		"email":      s.Email,
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"full_name":  s.FullName(),
		"lists":      s.Lists,
		"fields":     fields,
	}
}
