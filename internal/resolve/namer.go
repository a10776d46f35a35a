package resolve

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

// DefaultNameRetryCap bounds the create-or-reuse naming loop. The underscore
// scheme always terminates in theory; the cap turns a broken host database
// into a single failed type instead of a livelock.
const DefaultNameRetryCap = 64

// ErrNameRetriesExhausted is returned when the naming loop hits the retry
// cap without finding a free or structurally equal name.
var ErrNameRetriesExhausted = errors.New("name collision retries exhausted")

// errNotResolved marks a referent that cannot be resolved yet: the
// referenced node is mid-resolution or not usable as a type right now. The
// referring node is left uncached so a later visit can complete it.
var errNotResolved = errors.New("referent not yet resolvable")

// insertUnique inserts entry under name, retrying with appended underscores
// on collision. Before each attempt, a colliding existing entry is offered
// to reuse; reuse returning true means the existing entity is structurally
// equal and its ordinal is returned instead of creating a duplicate. Each
// retry strictly lengthens the name, so the loop terminates; the cap is
// defensive hardening.
func (r *Resolver) insertUnique(entry *typedb.Entry, name string, reuse func(existing *typedb.Entry) bool) (uint32, error) {
	for attempt := 0; attempt <= r.nameRetryCap; attempt++ {
		existing := r.db.ByName(name)
		if existing == nil {
			entry.Name = name
			ordinal, err := r.db.Insert(entry)
			if err != nil {
				// Resource-style rejection from the host database.
				return 0, fmt.Errorf("failed to insert %q: %w", name, err)
			}
			return ordinal, nil
		}
		if reuse != nil && reuse(existing) {
			r.logger.Debug().
				Str("name", name).
				Uint32("ordinal", existing.Ordinal).
				Msg("Reusing structurally equal entry")
			return existing.Ordinal, nil
		}
		name += "_"
	}
	r.logger.Error().
		Str("name", name).
		Int("retries", r.nameRetryCap).
		Msg("Giving up on name collision retries")
	return 0, fmt.Errorf("%q: %w", name, ErrNameRetriesExhausted)
}

// anonName generates a stable placeholder name for an anonymous construct,
// keyed by its node offset.
func anonName(kind string, off dwarf.Offset) string {
	return fmt.Sprintf("anon_%s_%x", kind, uint64(off))
}
