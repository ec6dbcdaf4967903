package consensus

import (
	"sync"

	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/score"
)

// Registry holds the current super-node set exactly as given; it does not
// check stakes against the configured core or rotating minimums. The set
// changes only through Replace, which the engine does not call; readers see
// a consistent view.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*score.SuperNode
}

// NewRegistry creates a registry from the given super nodes
func NewRegistry(nodes []*score.SuperNode) *Registry {
	r := &Registry{
		nodes: make(map[string]*score.SuperNode, len(nodes)),
	}
	for _, node := range nodes {
		r.nodes[crypto.EncodeHex(node.PublicKey)] = node
	}
	return r
}

// Get returns the super node for a public key, if registered
func (r *Registry) Get(publicKey []byte) (*score.SuperNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[crypto.EncodeHex(publicKey)]
	return node, ok
}

// Contains reports whether a public key is in the super-node set
func (r *Registry) Contains(publicKey []byte) bool {
	_, ok := r.Get(publicKey)
	return ok
}

// Count returns the number of registered super nodes
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// AverageStake returns the mean bonded stake across the set
func (r *Registry) AverageStake() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return 0
	}

	var total uint64
	for _, node := range r.nodes {
		total += node.Stake
	}
	return float64(total) / float64(len(r.nodes))
}

// Replace swaps the whole registered set in one step
func (r *Registry) Replace(nodes []*score.SuperNode) {
	replacement := make(map[string]*score.SuperNode, len(nodes))
	for _, node := range nodes {
		replacement[crypto.EncodeHex(node.PublicKey)] = node
	}

	r.mu.Lock()
	r.nodes = replacement
	r.mu.Unlock()
}
