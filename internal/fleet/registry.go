package fleet

import (
	"sort"
	"sync"

	"fleetmanager/pkg/naturalsort"
)

// Registry is the process-wide tag -> Node map. Mutations happen only from
// the supervisor's goroutine; each Node otherwise mutates only its own
// state, so the registry's lock only ever guards the map itself.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Add registers a node under its tag, replacing any existing entry.
func (r *Registry) Add(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.Tag()] = n
}

// Remove deletes a node from the registry by tag.
func (r *Registry) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, tag)
}

// Get returns the node for tag, if any.
func (r *Registry) Get(tag string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[tag]
	return n, ok
}

// Keys returns every registered tag, naturally sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.nodes))
	for tag := range r.nodes {
		keys = append(keys, tag)
	}
	sort.Slice(keys, func(i, j int) bool { return naturalsort.Less(keys[i], keys[j]) })
	return keys
}

// Values returns every registered node, naturally sorted by tag — the
// order the node table is displayed and dumped in.
func (r *Registry) Values() []*Node {
	r.mu.RLock()
	nodes := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()
	sort.Slice(nodes, func(i, j int) bool { return naturalsort.Less(nodes[i].Tag(), nodes[j].Tag()) })
	return nodes
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
