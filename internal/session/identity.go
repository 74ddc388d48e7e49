package session

import (
	"strings"

	"github.com/fjod/cheeseshop/internal/identity"
)

// Resolve returns the session identity to use for a visit. An existing
// identity is never replaced; when there is none a new one is generated and
// created is true, and the caller is responsible for persisting it.
func Resolve(existing string, gen identity.Generator) (id string, created bool) {
	if existing = strings.TrimSpace(existing); existing != "" {
		return existing, false
	}
	return gen.NewID(), true
}
