// Package models defines the core domain models for automation workflows
package models

import (
	"fmt"
	"sort"
	"time"
)

// AutomationStatus represents the activation state of an automation.
type AutomationStatus string

const (
	AutomationStatusActive   AutomationStatus = "ACTIVE"
	AutomationStatusInactive AutomationStatus = "INACTIVE"
	AutomationStatusDraft    AutomationStatus = "DRAFT"
)

// Trigger is the domain event type (plus optional scoping) that starts a workflow.
type Trigger struct {
	ID     string         `bson:"id"               json:"id"               validate:"required" yaml:"id"`
	Type   string         `bson:"type"             json:"type"             validate:"required" yaml:"type"`
	Params map[string]any `bson:"params,omitempty" json:"params,omitempty" yaml:"params,omitempty"`
}

// EditorData carries the editor's parent links. Parents maps a node id to the
// id of the element directly upstream of it (a node or the trigger).
type EditorData struct {
	Parents map[string]string `bson:"parents,omitempty" json:"parents,omitempty" yaml:"parents,omitempty"`
}

// Automation is a user-defined workflow keyed by a trigger and a graph of nodes.
// Nodes is an arena keyed by node id; nodes never point at each other directly.
type Automation struct {
	ID         string           `bson:"_id"         json:"id"          validate:"required" yaml:"id"`
	UserID     string           `bson:"user_id"     json:"user_id"     validate:"required" yaml:"user_id"`
	Name       string           `bson:"name"        json:"name"        validate:"required" yaml:"name"`
	Enabled    bool             `bson:"enabled"     json:"enabled"     yaml:"enabled"`
	Status     AutomationStatus `bson:"status"      json:"status"      validate:"required" yaml:"status"`
	Trigger    Trigger          `bson:"trigger"     json:"trigger"     yaml:"trigger"`
	Nodes      map[string]Node  `bson:"nodes"       json:"nodes"       yaml:"nodes"`
	EditorData EditorData       `bson:"editor_data" json:"editor_data" yaml:"editor_data"`
	CreatedAt  time.Time        `bson:"created_at"  json:"created_at"  yaml:"created_at,omitempty"`
	UpdatedAt  time.Time        `bson:"updated_at"  json:"updated_at"  yaml:"updated_at,omitempty"`
}

// IsRunnable reports whether new events may start this automation.
func (a *Automation) IsRunnable() bool {
	return a.Enabled && a.Status == AutomationStatusActive
}

// Node returns the node with the given id from the arena.
func (a *Automation) Node(id string) (Node, bool) {
	node, ok := a.Nodes[id]

	return node, ok
}

// StartNodeIDs returns every node whose parent link is the trigger, sorted.
// A well-formed automation has zero or one.
func (a *Automation) StartNodeIDs() []string {
	var ids []string

	for child, parent := range a.EditorData.Parents {
		if parent == a.Trigger.ID {
			ids = append(ids, child)
		}
	}

	sort.Strings(ids)

	return ids
}

// Validate checks the structural invariants of the node arena.
func (a *Automation) Validate() error {
	if a.Trigger.ID == "" {
		return fmt.Errorf("automation %s: %w", a.ID, ErrMissingTrigger)
	}

	for key, node := range a.Nodes {
		if node.ID != key {
			return fmt.Errorf("automation %s: node key %q holds node %q: %w", a.ID, key, node.ID, ErrNodeIDMismatch)
		}

		if node.Next != "" && node.Branches != nil {
			return fmt.Errorf("automation %s: node %s: %w", a.ID, key, ErrAmbiguousSuccessor)
		}

		for _, successor := range node.Successors() {
			if _, ok := a.Nodes[successor]; !ok {
				return fmt.Errorf("automation %s: node %s points at %s: %w", a.ID, key, successor, ErrDanglingNode)
			}
		}
	}

	if starts := a.StartNodeIDs(); len(starts) > 1 {
		return fmt.Errorf("automation %s: %d nodes follow the trigger: %w", a.ID, len(starts), ErrMultipleStartNodes)
	}

	return nil
}
