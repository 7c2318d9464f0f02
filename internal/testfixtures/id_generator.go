package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces deterministic identifiers for tests.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	asUUID  bool
}

// NewIDGenerator yields "<prefix>-<n>" identifiers. An empty prefix yields
// name based UUIDs instead, matching the shape of production identifiers.
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix, asUUID: prefix == ""}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	if g.asUUID {
		return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "fixture-%d", g.counter)).String()
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return uuid.NewString
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter
}
