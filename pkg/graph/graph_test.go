package graph_test

import (
	"testing"

	"github.com/dripline/dripline/pkg/graph"
	"github.com/dripline/dripline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isEmail(n models.Node) bool { return n.Type == models.NodeTypeEmail }

func automation(nodes map[string]models.Node, parents map[string]string) *models.Automation {
	return &models.Automation{
		ID:         "auto-1",
		Trigger:    models.Trigger{ID: "trigger-1", Type: "subscriber.created"},
		Nodes:      nodes,
		EditorData: models.EditorData{Parents: parents},
	}
}

func TestGraph_Start(t *testing.T) {
	nodes := map[string]models.Node{
		"a": {ID: "a", Type: models.NodeTypeEmail, Next: "b"},
		"b": {ID: "b", Type: models.NodeTypeEnd},
	}

	g := graph.New(automation(nodes, map[string]string{"a": "trigger-1", "b": "a"}))
	start, err := g.Start()
	require.NoError(t, err)
	assert.Equal(t, "a", start)

	g = graph.New(automation(nodes, map[string]string{"b": "a"}))
	_, err = g.Start()
	assert.ErrorIs(t, err, graph.ErrNoStartNode)

	g = graph.New(automation(nodes, map[string]string{"a": "trigger-1", "b": "trigger-1"}))
	_, err = g.Start()
	assert.ErrorIs(t, err, graph.ErrAmbiguousStart)

	g = graph.New(automation(nodes, map[string]string{"ghost": "trigger-1"}))
	_, err = g.Start()
	assert.ErrorIs(t, err, graph.ErrStartNodeMissing)
}

func TestGraph_FindUpstream(t *testing.T) {
	nodes := map[string]models.Node{
		"email-1": {ID: "email-1", Type: models.NodeTypeEmail, Next: "delay-1"},
		"delay-1": {ID: "delay-1", Type: models.NodeTypeDelay, Next: "cond-1"},
		"cond-1": {
			ID:       "cond-1",
			Type:     models.NodeTypeCondition,
			Branches: &models.Branches{True: "email-2", False: "end-1"},
		},
		"email-2": {ID: "email-2", Type: models.NodeTypeEmail, Next: "cond-2"},
		"cond-2": {
			ID:       "cond-2",
			Type:     models.NodeTypeCondition,
			Branches: &models.Branches{True: "end-1", False: "end-1"},
		},
		"end-1": {ID: "end-1", Type: models.NodeTypeEnd},
	}

	g := graph.New(automation(nodes, map[string]string{"email-1": "trigger-1"}))

	found, ok := g.FindUpstream("cond-1", isEmail)
	require.True(t, ok)
	assert.Equal(t, "email-1", found.ID)

	found, ok = g.FindUpstream("cond-2", isEmail)
	require.True(t, ok)
	assert.Equal(t, "email-2", found.ID, "nearest upstream email wins")

	_, ok = g.FindUpstream("email-1", isEmail)
	assert.False(t, ok)

	assert.Equal(t, []string{"cond-1", "cond-2"}, g.Predecessors("end-1"))
}

func TestGraph_FindUpstreamTerminatesOnCycle(t *testing.T) {
	nodes := map[string]models.Node{
		"a": {ID: "a", Type: models.NodeTypeDelay, Next: "b"},
		"b": {ID: "b", Type: models.NodeTypeDelay, Next: "c"},
		"c": {ID: "c", Type: models.NodeTypeCondition, Branches: &models.Branches{True: "a", False: "b"}},
	}

	g := graph.New(automation(nodes, map[string]string{"a": "trigger-1"}))

	_, ok := g.FindUpstream("c", isEmail)
	assert.False(t, ok)
}
