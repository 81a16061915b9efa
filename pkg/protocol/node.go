// Package protocol defines the contract between the workflow executor and node handlers.
package protocol

import (
	"context"

	"github.com/dripline/dripline/pkg/graph"
	"github.com/dripline/dripline/pkg/models"
)

// StepKind tells the executor what to do after a node ran.
type StepKind int

const (
	// StepContinue moves to Step.Next.
	StepContinue StepKind = iota
	// StepTerminate ends the run normally.
	StepTerminate
	// StepPause ends the run; the handler already persisted the continuation.
	StepPause
)

func (k StepKind) String() string {
	switch k {
	case StepContinue:
		return "continue"
	case StepTerminate:
		return "terminate"
	case StepPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Step is the result of executing one node.
type Step struct {
	Kind StepKind
	Next string
}

// Continue moves to next. An empty id is a terminal transition.
func Continue(next string) Step {
	if next == "" {
		return Terminate()
	}

	return Step{Kind: StepContinue, Next: next}
}

func Terminate() Step {
	return Step{Kind: StepTerminate}
}

func Pause() Step {
	return Step{Kind: StepPause}
}

// NodeInput is everything a handler may read about the node it executes.
type NodeInput struct {
	Automation   *models.Automation
	Graph        *graph.Graph
	Node         models.Node
	SubscriberID string
}

// NodeHandler executes every node of one type and describes its params.
type NodeHandler interface {
	// Type returns the node type this handler executes
	Type() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for the node params
	Schema() map[string]any

	// Execute runs the node and reports how the run continues
	Execute(ctx context.Context, input NodeInput) (Step, error)
}
