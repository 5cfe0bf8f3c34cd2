package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator hands out predictable ids: prefix-0001, prefix-0002, ...
// Journals written with it are byte-identical across runs, which golden
// files rely on.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator returns a generator for prefix. An empty prefix
// becomes "test".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "test"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
