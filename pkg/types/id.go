package types

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a unique identifier with the given prefix, in the
// format prefix:slug (e.g. "mem:sem:1f3b9c2a"). Prefixes follow the
// convention ent:, mem:sem:, mem:epi:, mem:pro:, mem:sum:, cfl:.
func NewID(prefix string) string {
	slug := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + ":" + slug
}
