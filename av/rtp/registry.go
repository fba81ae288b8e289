package rtp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry maps synchronization source identifiers to transport contexts.
//
// The lock guards only the map structure. The contents of each context
// belong to the scheduler that stamps packets for it.
type Registry struct {
	mu       sync.RWMutex
	contexts map[uint32]*TransportContext
}

// NewRegistry creates an empty transport context registry.
func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[uint32]*TransportContext),
	}
}

// Add registers a context under its SSRC.
//
// Returns:
//   - error: ErrNilContext, or ErrContextExists when the SSRC is taken
func (r *Registry) Add(tc *TransportContext) error {
	if tc == nil {
		return ErrNilContext
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contexts[tc.SSRC]; exists {
		return fmt.Errorf("ssrc %d: %w", tc.SSRC, ErrContextExists)
	}
	r.contexts[tc.SSRC] = tc

	logrus.WithFields(logrus.Fields{
		"function": "Registry.Add",
		"ssrc":     tc.SSRC,
		"contexts": len(r.contexts),
	}).Debug("Registered transport context")

	return nil
}

// Lookup returns the context registered for ssrc.
//
// Returns:
//   - *TransportContext: The context (nil if not found)
//   - bool: Whether the context exists
func (r *Registry) Lookup(ssrc uint32) (*TransportContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tc, exists := r.contexts[ssrc]
	return tc, exists
}

// Remove unregisters the context for ssrc.
//
// Returns:
//   - error: ErrContextNotFound when nothing is registered for ssrc
func (r *Registry) Remove(ssrc uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contexts[ssrc]; !exists {
		return fmt.Errorf("ssrc %d: %w", ssrc, ErrContextNotFound)
	}
	delete(r.contexts, ssrc)

	logrus.WithFields(logrus.Fields{
		"function": "Registry.Remove",
		"ssrc":     ssrc,
		"contexts": len(r.contexts),
	}).Debug("Removed transport context")

	return nil
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.contexts)
}

// All returns the registered contexts ordered by SSRC.
func (r *Registry) All() []*TransportContext {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*TransportContext, 0, len(r.contexts))
	for _, tc := range r.contexts {
		all = append(all, tc)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SSRC < all[j].SSRC })
	return all
}

// Clear removes every registered context.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.contexts)
	r.contexts = make(map[uint32]*TransportContext)

	logrus.WithFields(logrus.Fields{
		"function":         "Registry.Clear",
		"cleared_contexts": count,
	}).Debug("Transport context registry cleared")
}
