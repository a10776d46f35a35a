package resolve

import (
	"debug/dwarf"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dwarf2db/dwarf2db/internal/die"
	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

// Result summarizes one resolution run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Units      int
	Visited    int
	Types      int
	Functions  int
	Variables  int
	Useless    int
	Skipped    int
	Patched    int
	Incomplete int
	Skips      []typedb.SkipRecord
}

// Run resolves every compile unit tree and then completes deferred
// aggregates in a second pass. Only a failure to enumerate the compile units
// before any node is visited aborts the run; every per-node problem is
// contained, logged and reported in the result.
func (r *Resolver) Run() (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()

	units, err := r.compileUnits()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate compile units: %w", err)
	}
	logger.Info().
		Int("units", len(units)).
		Msg("Starting debug-info resolution")

	for _, cu := range units {
		r.traverseUnit(logger, cu)
	}

	patched, incomplete := r.secondPass(logger)

	result := &Result{
		RunID:      runID,
		StartedAt:  start,
		Duration:   time.Since(start),
		Units:      len(units),
		Visited:    r.visited,
		Skipped:    len(r.skips),
		Patched:    patched,
		Incomplete: incomplete,
		Skips:      r.skips,
	}
	for _, entry := range r.cache.Entries() {
		switch entry.Class {
		case ClassType:
			result.Types++
		case ClassFunction:
			result.Functions++
		case ClassVariable:
			result.Variables++
		case ClassUseless:
			result.Useless++
		}
	}

	logger.Info().
		Int("visited", result.Visited).
		Int("types", result.Types).
		Int("functions", result.Functions).
		Int("variables", result.Variables).
		Int("skipped", result.Skipped).
		Int("patched", result.Patched).
		Dur("duration", result.Duration).
		Msg("Resolution finished")

	return result, nil
}

// compileUnits scans the top level of the info section and returns the
// compile unit root offsets in their natural file order.
func (r *Resolver) compileUnits() ([]dwarf.Offset, error) {
	r.reader.Seek(0)
	var units []dwarf.Offset
	for {
		entry, err := r.reader.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Tag == dwarf.TagCompileUnit {
			units = append(units, entry.Offset)
		}
		r.reader.SkipChildren()
	}
	return units, nil
}

// traverseUnit walks one compile unit tree with an explicit worklist,
// containing every per-node failure. The next sibling is pushed before the
// first child, so children are processed first.
func (r *Resolver) traverseUnit(logger zerolog.Logger, cu dwarf.Offset) {
	root, err := die.Load(r.reader, cu)
	if err != nil {
		logger.Warn().
			Err(err).
			Uint64("offset", uint64(cu)).
			Msg("Cannot load compile unit root, skipping unit")
		return
	}

	worklist := make([]dwarf.Offset, 0, 64)
	first, err := root.Child()
	if err != nil {
		logger.Warn().
			Err(err).
			Uint64("offset", uint64(cu)).
			Msg("Cannot read compile unit children, skipping unit")
		return
	}
	if first == nil {
		return
	}
	worklist = append(worklist, first.Offset())

	for len(worklist) > 0 {
		off := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		d, err := die.Load(r.reader, off)
		if err != nil {
			logger.Warn().
				Err(err).
				Uint64("offset", uint64(off)).
				Msg("Cannot load DIE, skipping")
			continue
		}
		r.visited++

		// Failures are already classified and logged inside Visit.
		_ = r.Visit(d)

		if sibling, err := d.Sibling(); err != nil {
			logger.Warn().
				Err(err).
				Uint64("offset", uint64(off)).
				Msg("Cannot retrieve DIE sibling, skipping")
		} else if sibling != nil {
			worklist = append(worklist, sibling.Offset())
		}

		if child, err := d.Child(); err != nil {
			logger.Warn().
				Err(err).
				Uint64("offset", uint64(off)).
				Msg("Cannot retrieve DIE child, skipping")
		} else if child != nil {
			worklist = append(worklist, child.Offset())
		}
	}
}
