// Package resolve converts a DWARF debug-info tree into target type-database
// entries. It contains the resolution cache, the structural deduplicator,
// the per-tag synthesis engine, the worklist traversal driver and the
// second-pass scheduler.
package resolve

import (
	"debug/dwarf"
	"sort"

	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

// Classification records what a visited node turned out to be.
type Classification int

const (
	ClassUseless Classification = iota
	ClassType
	ClassFunction
	ClassVariable
)

//go:generate go tool stringer -type=Classification -trimprefix=Class

// CacheEntry is the classification record kept per node offset. Ordinal is
// valid only for ClassType entries. SecondPass marks aggregates that had at
// least one member unresolved on first visit. BaseOrdinal records the
// referent ordinal of derived types (modifier, typedef, array).
type CacheEntry struct {
	Offset      dwarf.Offset
	Class       Classification
	Ordinal     uint32
	SecondPass  bool
	BaseOrdinal uint32
}

// Cache is the single source of truth for "already processed". One entry per
// offset, created at most once, never deleted mid-run; a non-Useless entry is
// never downgraded, only a Useless one may be upgraded to a richer record.
type Cache struct {
	entries   map[dwarf.Offset]*CacheEntry
	byOrdinal map[uint32]dwarf.Offset
}

// NewCache creates an empty resolution cache. Construct one per run and
// discard it afterwards.
func NewCache() *Cache {
	return &Cache{
		entries:   make(map[dwarf.Offset]*CacheEntry),
		byOrdinal: make(map[uint32]dwarf.Offset),
	}
}

// Contains reports whether the offset has been processed.
func (c *Cache) Contains(off dwarf.Offset) bool {
	_, ok := c.entries[off]
	return ok
}

// Get returns the classification record for the offset.
func (c *Cache) Get(off dwarf.Offset) (CacheEntry, bool) {
	e, ok := c.entries[off]
	if !ok {
		return CacheEntry{}, false
	}
	return *e, true
}

// MarkUseless records the offset as processed but useless. It is a no-op if
// a richer entry already exists.
func (c *Cache) MarkUseless(off dwarf.Offset) {
	if _, ok := c.entries[off]; ok {
		return
	}
	c.entries[off] = &CacheEntry{Offset: off, Class: ClassUseless}
}

// MarkType records the offset as resolving to a type entry. An existing
// Useless entry is upgraded; a richer entry is left untouched.
func (c *Cache) MarkType(off dwarf.Offset, ordinal uint32, secondPass bool, baseOrdinal uint32) {
	if e, ok := c.entries[off]; ok && e.Class != ClassUseless {
		return
	}
	c.entries[off] = &CacheEntry{
		Offset:      off,
		Class:       ClassType,
		Ordinal:     ordinal,
		SecondPass:  secondPass,
		BaseOrdinal: baseOrdinal,
	}
	if _, ok := c.byOrdinal[ordinal]; !ok {
		c.byOrdinal[ordinal] = off
	}
}

// MarkFunction records the offset as a function node.
func (c *Cache) MarkFunction(off dwarf.Offset) {
	c.markClass(off, ClassFunction)
}

// MarkVariable records the offset as a variable node.
func (c *Cache) MarkVariable(off dwarf.Offset) {
	c.markClass(off, ClassVariable)
}

func (c *Cache) markClass(off dwarf.Offset, class Classification) {
	if e, ok := c.entries[off]; ok && e.Class != ClassUseless {
		return
	}
	c.entries[off] = &CacheEntry{Offset: off, Class: class}
}

// SetSecondPass flags an existing Type entry for the second pass.
func (c *Cache) SetSecondPass(off dwarf.Offset) {
	if e, ok := c.entries[off]; ok && e.Class == ClassType {
		e.SecondPass = true
	}
}

// TypeOrdinal returns the ordinal the offset resolves to, if the offset is
// cached as a type.
func (c *Cache) TypeOrdinal(off dwarf.Offset) (uint32, bool) {
	e, ok := c.entries[off]
	if !ok || e.Class != ClassType {
		return typedb.NoType, false
	}
	return e.Ordinal, true
}

// OffsetOf returns the node offset that created the given type ordinal.
func (c *Cache) OffsetOf(ordinal uint32) (dwarf.Offset, bool) {
	off, ok := c.byOrdinal[ordinal]
	return off, ok
}

// Entries returns all classification records in ascending offset order,
// which is what drives the second pass.
func (c *Cache) Entries() []CacheEntry {
	out := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Len returns the number of cached offsets.
func (c *Cache) Len() int {
	return len(c.entries)
}
