package gallery

import (
	"sync"
	"time"
)

// Element is one rendered photo: an image plus a plain-text caption
type Element interface {
	// ID is the photo ID the element was created for
	ID() string
	SetOpacity(v float64)
	FadeIn(d time.Duration)
	// FadeOut starts the exit transition; the element stays in the tree until Remove
	FadeOut(d time.Duration)
	Remove()
}

// Renderer owns the visual tree the synchronizer mutates
type Renderer interface {
	// Append creates an element and appends it after every existing element
	Append(id, src, caption string) Element
}

// Transition names the last transition applied to a node
type Transition string

const (
	TransitionNone    Transition = ""
	TransitionFadeIn  Transition = "fade-in"
	TransitionFadeOut Transition = "fade-out"
)

// NodeState is a point-in-time copy of a node in a Tree
type NodeState struct {
	ID         string
	Src        string
	Caption    string
	Opacity    float64
	Transition Transition
	Duration   time.Duration
}

// Removing reports whether the node is in its exit transition
func (n NodeState) Removing() bool {
	return n.Transition == TransitionFadeOut
}

// Tree is an in-memory visual tree. Nodes keep append order.
type Tree struct {
	mu    sync.Mutex
	nodes []*node
}

// NewTree creates an empty tree
func NewTree() *Tree {
	return &Tree{}
}

type node struct {
	tree  *Tree
	state NodeState
}

// Append implements Renderer
func (t *Tree) Append(id, src, caption string) Element {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := &node{
		tree: t,
		state: NodeState{
			ID:      id,
			Src:     src,
			Caption: caption,
			Opacity: 1,
		},
	}
	t.nodes = append(t.nodes, n)
	return n
}

// Nodes returns a snapshot of every node, including ones fading out
func (t *Tree) Nodes() []NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]NodeState, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = n.state
	}
	return out
}

// LiveIDs returns the IDs of nodes that are not being removed, in tree order
func (t *Tree) LiveIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.nodes))
	for _, n := range t.nodes {
		if !n.state.Removing() {
			ids = append(ids, n.state.ID)
		}
	}
	return ids
}

// Len returns the number of nodes physically in the tree
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Find returns the first live node with the given ID
func (t *Tree) Find(id string) (NodeState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.nodes {
		if n.state.ID == id && !n.state.Removing() {
			return n.state, true
		}
	}
	return NodeState{}, false
}

func (n *node) ID() string {
	return n.state.ID
}

func (n *node) SetOpacity(v float64) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.state.Opacity = v
}

func (n *node) FadeIn(d time.Duration) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.state.Transition = TransitionFadeIn
	n.state.Duration = d
}

func (n *node) FadeOut(d time.Duration) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.state.Transition = TransitionFadeOut
	n.state.Duration = d
}

func (n *node) Remove() {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()

	for i, other := range n.tree.nodes {
		if other == n {
			n.tree.nodes = append(n.tree.nodes[:i], n.tree.nodes[i+1:]...)
			return
		}
	}
}
