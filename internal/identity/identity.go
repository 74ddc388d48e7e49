package identity

import "github.com/google/uuid"

// Generator produces opaque identifiers that are unique across calls,
// processes and time. They are not sortable.
type Generator interface {
	NewID() string
}

// UUID generates random (version 4) UUIDs.
type UUID struct{}

func (UUID) NewID() string {
	return uuid.NewString()
}

// Func adapts a plain function to a Generator.
type Func func() string

func (f Func) NewID() string {
	return f()
}
