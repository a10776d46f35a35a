package resolve

import (
	"debug/dwarf"

	"github.com/rs/zerolog"

	"github.com/dwarf2db/dwarf2db/internal/die"
)

// secondPass sweeps the cache in offset order and patches every aggregate
// that was deferred on first visit: members whose types were unresolvable
// then are appended in place now that every definition has been seen.
// Returns the number of members patched in and the number still incomplete.
// The second_pass flag is kept as a record that deferral happened.
func (r *Resolver) secondPass(logger zerolog.Logger) (patched, incomplete int) {
	for _, ce := range r.cache.Entries() {
		if ce.Class != ClassType || !ce.SecondPass {
			continue
		}

		d, err := die.Load(r.reader, ce.Offset)
		if err != nil {
			logger.Warn().
				Err(err).
				Uint64("offset", uint64(ce.Offset)).
				Msg("Cannot reload deferred aggregate")
			incomplete++
			continue
		}
		if d.Tag() != dwarf.TagStructType && d.Tag() != dwarf.TagUnionType {
			continue
		}

		entry := r.db.ByOrdinal(ce.Ordinal)
		if entry == nil || !entry.IsAggregate() {
			continue
		}

		have := make(map[string]bool, len(entry.Members))
		for _, m := range entry.Members {
			have[m.Name] = true
		}

		isUnion := d.Tag() == dwarf.TagUnionType
		err = d.EachChild(dwarf.TagMember, func(child *die.DIE) (bool, error) {
			if have[child.Name()] {
				return true, nil
			}
			member, ok := r.buildMember(child, isUnion)
			if !ok {
				logger.Warn().
					Str("aggregate", entry.Name).
					Str("member", child.Name()).
					Uint64("offset", uint64(child.Offset())).
					Msg("Member still unresolvable after second pass")
				incomplete++
				return true, nil
			}
			if err := r.db.AppendMember(entry.Ordinal, member); err != nil {
				logger.Warn().
					Err(err).
					Str("aggregate", entry.Name).
					Str("member", member.Name).
					Msg("Cannot patch member")
				incomplete++
				return true, nil
			}
			patched++
			logger.Debug().
				Str("aggregate", entry.Name).
				Str("member", member.Name).
				Msg("Patched deferred member")
			return true, nil
		})
		if err != nil {
			logger.Warn().
				Err(err).
				Uint64("offset", uint64(ce.Offset)).
				Msg("Cannot walk deferred aggregate members")
			incomplete++
		}
	}
	return patched, incomplete
}
