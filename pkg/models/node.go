package models

// NodeType identifies the handler that executes a node.
type NodeType string

// Built-in node types.
const (
	NodeTypeEmail     NodeType = "EMAIL"
	NodeTypeDelay     NodeType = "DELAY"
	NodeTypeCondition NodeType = "CONDITION"
	NodeTypeEnd       NodeType = "END"
)

// Branches holds the two successors of a CONDITION node.
type Branches struct {
	True  string `bson:"true,omitempty"  json:"true,omitempty"  yaml:"true,omitempty"`
	False string `bson:"false,omitempty" json:"false,omitempty" yaml:"false,omitempty"`
}

// Node is one executable workflow step. It is a value owned by its Automation.
// Next and Branches are mutually exclusive; a node with neither is terminal.
type Node struct {
	ID       string         `bson:"id"                 json:"id"                 validate:"required" yaml:"id"`
	Type     NodeType       `bson:"type"               json:"type"               validate:"required" yaml:"type"`
	Params   map[string]any `bson:"params,omitempty"   json:"params,omitempty"   yaml:"params,omitempty"`
	Next     string         `bson:"next,omitempty"     json:"next,omitempty"     yaml:"next,omitempty"`
	Branches *Branches      `bson:"branches,omitempty" json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Successors returns the ids this node can transition to.
func (n Node) Successors() []string {
	var ids []string

	if n.Next != "" {
		ids = append(ids, n.Next)
	}

	if n.Branches != nil {
		if n.Branches.True != "" {
			ids = append(ids, n.Branches.True)
		}

		if n.Branches.False != "" {
			ids = append(ids, n.Branches.False)
		}
	}

	return ids
}

// IsTerminal reports whether the node has no successor at all.
func (n Node) IsTerminal() bool {
	return len(n.Successors()) == 0
}

// StringParam returns a string parameter, or "" when missing or not a string.
func (n Node) StringParam(key string) string {
	value, _ := n.Params[key].(string)

	return value
}
