package menutree

import "github.com/starford/menutree/internal/models"

// Node is a menu record with its derived, ordered children.
type Node struct {
	models.MenuRecord
	Children []*Node `json:"children"`
	// Anomaly is set when the record could not be placed as declared.
	Anomaly models.AnomalyReason `json:"anomaly,omitempty"`

	seq int // position in the builder input, used as sort tie-break
}

// Forest is an ordered list of top-level nodes.
type Forest []*Node

// Walk visits nodes depth-first in display order. Returning false from fn
// skips the node's children.
func (f Forest) Walk(fn func(n *Node, depth int) bool) {
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(f, 0)
}

// Count returns the total number of nodes in the forest.
func (f Forest) Count() int {
	total := 0
	f.Walk(func(*Node, int) bool {
		total++
		return true
	})
	return total
}

// Find returns the node with the given id, or nil.
func (f Forest) Find(id int64) *Node {
	var found *Node
	f.Walk(func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// RootIDs returns the ids of the top-level nodes in display order.
func (f Forest) RootIDs() []int64 {
	return ids(f)
}

// ChildIDs returns the ids of the node's children in display order.
func (n *Node) ChildIDs() []int64 {
	return ids(n.Children)
}

func ids(nodes []*Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
