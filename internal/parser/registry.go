// Package parser implements feed payload parsers and the registry that maps
// source names to a parser implementation.
package parser

import (
	"fmt"
	"sync"

	"github.com/newswire/harvester/internal/feed"
)

// Registry maps parser names to implementations. Sources are bound to a
// parser at configuration time; there is no per-fetch name sniffing. The
// empty name resolves to the default parser.
type Registry struct {
	mu       sync.RWMutex
	parsers  map[string]feed.Parser
	fallback feed.Parser
}

// NewRegistry builds a registry with the given default parser.
func NewRegistry(fallback feed.Parser) *Registry {
	return &Registry{
		parsers:  make(map[string]feed.Parser),
		fallback: fallback,
	}
}

// Register binds a parser name. Registering an existing name replaces it.
func (r *Registry) Register(name string, p feed.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = p
}

// Resolve returns the parser for a name, or the default for "". Unknown
// names are an error so configuration typos surface at startup, not
// mid-collection.
func (r *Registry) Resolve(name string) (feed.Parser, error) {
	if name == "" {
		return r.fallback, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("no parser registered under %q", name)
	}
	return p, nil
}

// Default returns a registry preloaded with the built-in parsers.
func Default() *Registry {
	r := NewRegistry(NewStandard())
	r.Register("standard", NewStandard())
	r.Register("arxiv", NewArxiv())
	return r
}
