package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator issues submission tokens for optimistic inserts.
// Implemented by UUIDv7Generator (production), FixedGenerator and
// CountingGenerator (tests and scenarios).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tokens.
//
// Sorting by token sorts submissions by creation time, which keeps journal
// dumps readable.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens in order and panics once they
// run out, so a test that submits more often than expected fails loudly.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator returning tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// CountingGenerator returns prefix-1, prefix-2, ... without end.
type CountingGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingGenerator creates a counting generator. An empty prefix is
// "tok".
func NewCountingGenerator(prefix string) *CountingGenerator {
	if prefix == "" {
		prefix = "tok"
	}
	return &CountingGenerator{prefix: prefix}
}

// Generate returns the next token.
func (g *CountingGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
