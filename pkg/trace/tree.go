package trace

import (
	"github.com/google/uuid"
)

// Node is one invocation inside a causal tree.
type Node struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	RootID   uuid.UUID
	Process  string
	Action   string
	Events   []Event
	Children []*Node
}

// Failed reports whether the invocation emitted a Fail event.
func (n *Node) Failed() bool {
	for _, e := range n.Events {
		if e.Kind == KindFail {
			return true
		}
	}
	return false
}

// Walk visits the node and its descendants depth-first, children in the order they started.
func (n *Node) Walk(fn func(depth int, n *Node)) {
	n.walk(0, fn)
}

func (n *Node) walk(depth int, fn func(int, *Node)) {
	fn(depth, n)
	for _, c := range n.Children {
		c.walk(depth+1, fn)
	}
}

// Size returns the number of invocations in the subtree rooted at n.
func (n *Node) Size() int {
	size := 0
	n.Walk(func(int, *Node) { size++ })
	return size
}

// BuildTree groups events by tr_id and links the invocations through parent_id.
// Invocations whose parent never appears in the event log are returned as roots,
// so a partial log still yields a usable forest.
func BuildTree(events []Event) []*Node {
	nodes := make(map[uuid.UUID]*Node)
	order := make([]uuid.UUID, 0)

	for _, e := range events {
		n, ok := nodes[e.TrID]
		if !ok {
			n = &Node{
				ID:       e.TrID,
				ParentID: e.ParentID,
				RootID:   e.RootID,
			}
			nodes[e.TrID] = n
			order = append(order, e.TrID)
		}
		if n.Process == "" {
			n.Process = e.Process
		}
		if n.Action == "" {
			n.Action = e.Action
		}
		n.Events = append(n.Events, e)
	}

	var roots []*Node
	for _, id := range order {
		n := nodes[id]
		parent, ok := nodes[n.ParentID]
		if n.ParentID == n.ID || !ok {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}
