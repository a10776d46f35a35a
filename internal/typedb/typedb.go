// Package typedb implements the target type database that DWARF resolution
// writes into. Entries are addressed by a dense positive ordinal (0 is the
// "no type" sentinel) and by a unique name, and carry kind-specific
// structural content: enumerator lists, member lists, referent ordinals,
// array bounds and primitive descriptors.
package typedb

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// NoType is the sentinel ordinal meaning "no type".
const NoType uint32 = 0

var (
	// ErrNameTaken is returned by Insert when the entry name is already in
	// use by a different entry.
	ErrNameTaken = errors.New("type name already taken")

	// ErrDatabaseFull is returned by Insert when the configured entry cap
	// has been reached. It models a host database rejecting inserts for
	// resource reasons.
	ErrDatabaseFull = errors.New("type database is full")

	// ErrNoSuchEntry is returned when an ordinal does not address an entry.
	ErrNoSuchEntry = errors.New("no such type entry")
)

// Kind discriminates the structural content of an Entry.
type Kind int

const (
	KindPrimitive Kind = iota
	KindEnum
	KindStruct
	KindUnion
	KindTypedef
	KindModifier
	KindArray
	KindOpaque
)

//go:generate go tool stringer -type=Kind -trimprefix=Kind

// Modifier is the derivation applied by a KindModifier entry to its referent.
type Modifier int

const (
	ModifierConst Modifier = iota
	ModifierVolatile
	ModifierPointer
)

func (m Modifier) String() string {
	switch m {
	case ModifierConst:
		return "const"
	case ModifierVolatile:
		return "volatile"
	case ModifierPointer:
		return "pointer"
	}
	return fmt.Sprintf("Modifier(%d)", int(m))
}

// Suffix returns the name fragment appended to a referent name when deriving
// a modified type.
func (m Modifier) Suffix() string {
	switch m {
	case ModifierConst:
		return " const"
	case ModifierVolatile:
		return " volatile"
	case ModifierPointer:
		return " *"
	}
	return ""
}

// BaseKind is the declared encoding of a primitive type.
type BaseKind int

const (
	BaseBool BaseKind = iota
	BaseFloat
	BaseSigned
	BaseUnsigned
	BaseSignedChar
	BaseUnsignedChar
	BaseVoid
)

func (b BaseKind) String() string {
	switch b {
	case BaseBool:
		return "bool"
	case BaseFloat:
		return "float"
	case BaseSigned:
		return "signed"
	case BaseUnsigned:
		return "unsigned"
	case BaseSignedChar:
		return "char"
	case BaseUnsignedChar:
		return "uchar"
	case BaseVoid:
		return "void"
	}
	return fmt.Sprintf("BaseKind(%d)", int(b))
}

// Primitive describes a base type: its encoding and byte width.
// Size 0 means natural (model-specific) width.
type Primitive struct {
	Base BaseKind
	Size int64
}

// Enumerator is one named constant of an enumeration entry.
type Enumerator struct {
	Name  string
	Value int64
}

// Member is one field of a struct or union entry. Type references the member
// type entry by ordinal; scalar members additionally carry their full
// primitive descriptor inline.
type Member struct {
	Name   string
	Offset uint64
	Type   uint32
	Inline *Primitive
}

// Entry is one row of the type database. Exactly the fields relevant to its
// Kind are populated.
type Entry struct {
	Ordinal uint32
	Name    string
	Kind    Kind

	Primitive   Primitive    // KindPrimitive
	Width       int64        // KindEnum storage width in bytes
	Enumerators []Enumerator // KindEnum
	Members     []Member     // KindStruct, KindUnion
	Referent    uint32       // KindTypedef, KindModifier, KindArray
	Modifier    Modifier     // KindModifier
	Count       int64        // KindArray; 0 means open or unknown length
}

// IsAggregate reports whether the entry is a struct or union.
func (e *Entry) IsAggregate() bool {
	return e.Kind == KindStruct || e.Kind == KindUnion
}

// Database is the in-memory type database for one resolution run. It is not
// safe for concurrent use; exactly one resolution runs at a time.
type Database struct {
	logger     zerolog.Logger
	entries    []*Entry
	byName     map[string]uint32
	enumConst  map[string]uint32 // enumerator name -> owning enum ordinal
	memberName map[string]uint32 // member name -> first owning aggregate ordinal
	maxEntries int
}

// Option configures a Database.
type Option func(*Database)

// WithMaxEntries caps the number of entries the database accepts. Zero means
// unlimited.
func WithMaxEntries(n int) Option {
	return func(db *Database) {
		db.maxEntries = n
	}
}

// New creates an empty type database.
func New(logger zerolog.Logger, opts ...Option) *Database {
	db := &Database{
		logger:     logger,
		byName:     make(map[string]uint32),
		enumConst:  make(map[string]uint32),
		memberName: make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Len returns the number of entries.
func (db *Database) Len() int {
	return len(db.entries)
}

// Insert adds an entry, assigns it the next ordinal and enforces name
// uniqueness. The entry's Ordinal field is set on success.
func (db *Database) Insert(e *Entry) (uint32, error) {
	if e.Name == "" {
		return NoType, fmt.Errorf("refusing entry with empty name")
	}
	if _, taken := db.byName[e.Name]; taken {
		return NoType, fmt.Errorf("cannot insert %q: %w", e.Name, ErrNameTaken)
	}
	if db.maxEntries > 0 && len(db.entries) >= db.maxEntries {
		return NoType, fmt.Errorf("cannot insert %q: %w", e.Name, ErrDatabaseFull)
	}

	e.Ordinal = uint32(len(db.entries) + 1)
	db.entries = append(db.entries, e)
	db.byName[e.Name] = e.Ordinal
	db.index(e)

	db.logger.Debug().
		Uint32("ordinal", e.Ordinal).
		Str("name", e.Name).
		Str("kind", e.Kind.String()).
		Msg("Type entry created")

	return e.Ordinal, nil
}

// ByOrdinal returns the entry with the given ordinal, or nil.
func (db *Database) ByOrdinal(ordinal uint32) *Entry {
	if ordinal == NoType || int(ordinal) > len(db.entries) {
		return nil
	}
	return db.entries[ordinal-1]
}

// ByName returns the entry with the given name, or nil.
func (db *Database) ByName(name string) *Entry {
	ordinal, ok := db.byName[name]
	if !ok {
		return nil
	}
	return db.ByOrdinal(ordinal)
}

// EnumByConstant returns the enum entry owning a constant with the given
// name, or nil. When several enums share a constant name the first created
// one wins, which is what anonymous-enum matching needs.
func (db *Database) EnumByConstant(name string) *Entry {
	ordinal, ok := db.enumConst[name]
	if !ok {
		return nil
	}
	return db.ByOrdinal(ordinal)
}

// AggregateByMember returns the first struct or union entry owning a member
// with the given name, or nil.
func (db *Database) AggregateByMember(name string) *Entry {
	ordinal, ok := db.memberName[name]
	if !ok {
		return nil
	}
	return db.ByOrdinal(ordinal)
}

// AppendMember patches one member into an existing aggregate entry in place.
// Members are deduplicated by name.
func (db *Database) AppendMember(ordinal uint32, m Member) error {
	e := db.ByOrdinal(ordinal)
	if e == nil {
		return fmt.Errorf("ordinal %d: %w", ordinal, ErrNoSuchEntry)
	}
	if !e.IsAggregate() {
		return fmt.Errorf("ordinal %d (%s) is not an aggregate", ordinal, e.Kind)
	}
	for _, existing := range e.Members {
		if existing.Name == m.Name {
			return fmt.Errorf("aggregate %q already has a member %q", e.Name, m.Name)
		}
	}
	e.Members = append(e.Members, m)
	if _, ok := db.memberName[m.Name]; !ok {
		db.memberName[m.Name] = e.Ordinal
	}
	return nil
}

// All returns the entries in ordinal order. The slice is shared; callers
// must not modify it.
func (db *Database) All() []*Entry {
	return db.entries
}

// index records the secondary lookups for a freshly inserted entry.
func (db *Database) index(e *Entry) {
	switch e.Kind {
	case KindEnum:
		for _, c := range e.Enumerators {
			if _, ok := db.enumConst[c.Name]; !ok {
				db.enumConst[c.Name] = e.Ordinal
			}
		}
	case KindStruct, KindUnion:
		for _, m := range e.Members {
			if _, ok := db.memberName[m.Name]; !ok {
				db.memberName[m.Name] = e.Ordinal
			}
		}
	}
}
