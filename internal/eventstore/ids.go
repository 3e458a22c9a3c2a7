// Package eventstore implements the append-only session/event store:
// workspace and session lifecycle, event append with derived counters,
// ancestor/descendant walks that cross session boundaries at fork points,
// and the blob/device-token/search repositories that ride alongside it.
package eventstore

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// newID returns a lexicographically time-ordered id with the given
// prefix, the same ulid.Make().String() idiom the teacher uses for
// session ids, generalized to every prefixed entity in the schema.
func newID(prefix string) string {
	return prefix + ulid.Make().String()
}

func newSessionID() string { return newID("sess_") }
func newEventID() string   { return newID("evt_") }

// stripPrefix removes a known id prefix for display or comparison
// purposes; ids are otherwise opaque strings to callers.
func stripPrefix(id, prefix string) string {
	return strings.TrimPrefix(id, prefix)
}
