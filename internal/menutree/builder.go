// Package menutree builds the menu forest from flat records and plans
// drag-and-drop moves against it.
package menutree

import (
	"cmp"
	"slices"

	"github.com/starford/menutree/internal/models"
)

// Result is the output of Build.
type Result struct {
	Forest    Forest
	Anomalies []models.Anomaly
}

// Build converts a flat record list into a sorted forest. It never fails and
// never mutates its input: records whose parent reference cannot be honoured
// are placed at top level and reported as anomalies, so every input record
// appears exactly once in the output.
func Build(records []models.MenuRecord) Result {
	nodes := make(map[int64]*Node, len(records))
	order := make([]*Node, 0, len(records))
	for i, r := range records {
		n := &Node{MenuRecord: r, Children: []*Node{}, seq: i}
		if r.ParentID != nil {
			pid := *r.ParentID
			n.ParentID = &pid
		}
		if _, dup := nodes[r.ID]; !dup {
			nodes[r.ID] = n
		}
		order = append(order, n)
	}

	res := Result{Forest: Forest{}, Anomalies: []models.Anomaly{}}
	flag := func(n *Node, reason models.AnomalyReason) {
		n.Anomaly = reason
		res.Anomalies = append(res.Anomalies, models.Anomaly{RecordID: n.ID, Reason: reason})
		res.Forest = append(res.Forest, n)
	}

	parentOf := make(map[*Node]*Node, len(order))
	for _, n := range order {
		if n.ParentID == nil {
			res.Forest = append(res.Forest, n)
			continue
		}
		parent, ok := nodes[*n.ParentID]
		switch {
		case !ok:
			flag(n, models.ReasonDanglingParent)
		case parent.ID == n.ID:
			flag(n, models.ReasonSelfCycle)
		default:
			parent.Children = append(parent.Children, n)
			parentOf[n] = parent
		}
	}

	breakCycles(order, parentOf, &res, flag)

	sortNodes(res.Forest)
	return res
}

// breakCycles promotes one member of every multi-hop parent cycle (A->B->A)
// to top level. Without it the whole cycle, and everything below it, would be
// unreachable from the roots and silently vanish from the forest.
func breakCycles(order []*Node, parentOf map[*Node]*Node, res *Result, flag func(*Node, models.AnomalyReason)) {
	reached := make(map[*Node]bool, len(order))
	var mark func(n *Node)
	mark = func(n *Node) {
		if reached[n] {
			return
		}
		reached[n] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range res.Forest {
		mark(r)
	}

	for _, n := range order {
		if reached[n] {
			continue
		}
		member := cycleMember(n, parentOf)
		if p := parentOf[member]; p != nil {
			p.Children = slices.DeleteFunc(p.Children, func(c *Node) bool { return c == member })
			delete(parentOf, member)
		}
		flag(member, models.ReasonCycle)
		mark(member)
	}
}

// cycleMember follows parent links from n until a node repeats and returns
// the cycle member that came first in the input.
func cycleMember(n *Node, parentOf map[*Node]*Node) *Node {
	pos := map[*Node]int{}
	var path []*Node
	cur := n
	for cur != nil {
		if i, seen := pos[cur]; seen {
			return slices.MinFunc(path[i:], func(a, b *Node) int { return cmp.Compare(a.seq, b.seq) })
		}
		pos[cur] = len(path)
		path = append(path, cur)
		cur = parentOf[cur]
	}
	// Unreachable nodes always end in a cycle; fall back to n itself.
	return n
}

func sortNodes(nodes []*Node) {
	slices.SortStableFunc(nodes, compareNodes)
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

func compareNodes(a, b *Node) int {
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// RenderedParents maps every record id to the parent Build places it under;
// nil means top level. Anomalous records map to nil even when they declare a
// parent. For duplicate ids the first record in input order wins.
func RenderedParents(records []models.MenuRecord) map[int64]*int64 {
	parents := make(map[int64]*int64, len(records))
	firstSeq := make(map[int64]int, len(records))
	var walk func(nodes []*Node, parent *int64)
	walk = func(nodes []*Node, parent *int64) {
		for _, n := range nodes {
			if seq, seen := firstSeq[n.ID]; !seen || n.seq < seq {
				firstSeq[n.ID] = n.seq
				parents[n.ID] = copyID(parent)
			}
			walk(n.Children, models.Int64Ptr(n.ID))
		}
	}
	walk(Build(records).Forest, nil)
	return parents
}
