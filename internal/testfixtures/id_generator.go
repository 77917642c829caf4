package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// fixtureNamespace seeds deterministic UUIDs so repeated runs produce the
// same identifiers.
var fixtureNamespace = uuid.MustParse("6f1c2f4e-8d0a-4c55-9b1e-3f2a7d9c0b11")

// IDGenerator produces deterministic identifiers for series and occurrences.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	uuids   bool
	counter uint64
}

// NewIDGenerator yields "<prefix>-1", "<prefix>-2", ... An empty prefix
// means "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator yields stable name based UUIDs derived from seed and a
// counter, shaped like the identifiers issued in production.
func NewUUIDGenerator(seed string) *IDGenerator {
	return &IDGenerator{prefix: seed, uuids: true}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	name := fmt.Sprintf("%s-%d", g.prefix, g.counter)
	if g.uuids {
		return uuid.NewSHA1(fixtureNamespace, []byte(name)).String()
	}
	return name
}

// NextFunc exposes Next for constructor injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.counter)
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
