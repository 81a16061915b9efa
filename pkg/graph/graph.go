// Package graph builds the lookup structures the executor walks: the node
// arena, the start node and a reverse-adjacency index.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dripline/dripline/pkg/models"
)

var (
	ErrNoStartNode      = errors.New("no node follows the trigger")
	ErrAmbiguousStart   = errors.New("more than one node follows the trigger")
	ErrStartNodeMissing = errors.New("start node is not part of the automation")
)

// Graph is an immutable view of one automation version.
type Graph struct {
	automationID string
	nodes        map[string]models.Node
	predecessors map[string][]string
	starts       []string
}

// New indexes automation. The reverse-adjacency index is built from the
// forward links (next and both branches), not from the editor parent links.
func New(automation *models.Automation) *Graph {
	g := &Graph{
		automationID: automation.ID,
		nodes:        make(map[string]models.Node, len(automation.Nodes)),
		predecessors: make(map[string][]string),
		starts:       automation.StartNodeIDs(),
	}

	for id, node := range automation.Nodes {
		g.nodes[id] = node

		for _, successor := range node.Successors() {
			g.predecessors[successor] = appendUnique(g.predecessors[successor], id)
		}
	}

	for id := range g.predecessors {
		sort.Strings(g.predecessors[id])
	}

	return g
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}

	return append(ids, id)
}

func (g *Graph) AutomationID() string {
	return g.automationID
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (models.Node, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Start returns the id of the node whose editor parent is the trigger.
func (g *Graph) Start() (string, error) {
	switch len(g.starts) {
	case 0:
		return "", fmt.Errorf("automation %s: %w", g.automationID, ErrNoStartNode)
	case 1:
	default:
		return "", fmt.Errorf("automation %s: %v: %w", g.automationID, g.starts, ErrAmbiguousStart)
	}

	if _, ok := g.nodes[g.starts[0]]; !ok {
		return "", fmt.Errorf("automation %s: %s: %w", g.automationID, g.starts[0], ErrStartNodeMissing)
	}

	return g.starts[0], nil
}

// Predecessors returns the ids of nodes linking to id, sorted.
func (g *Graph) Predecessors(id string) []string {
	return g.predecessors[id]
}

// FindUpstream walks backwards from id, breadth first, and returns the
// nearest node for which match is true. The walk stops on cycles and at
// nodes without predecessors. The starting node itself is not tested.
func (g *Graph) FindUpstream(id string, match func(models.Node) bool) (models.Node, bool) {
	visited := map[string]bool{id: true}
	queue := append([]string(nil), g.predecessors[id]...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}

		visited[current] = true

		node, ok := g.nodes[current]
		if !ok {
			continue
		}

		if match(node) {
			return node, true
		}

		queue = append(queue, g.predecessors[current]...)
	}

	return models.Node{}, false
}
