package resolve

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dwarf2db/dwarf2db/internal/die"
	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

// Base type encodings -- the value of AttrEncoding on a TagBaseType entry.
const (
	encAddress      = 0x01
	encBoolean      = 0x02
	encComplexFloat = 0x03
	encFloat        = 0x04
	encSigned       = 0x05
	encSignedChar   = 0x06
	encUnsigned     = 0x07
	encUnsignedChar = 0x08
)

// Resolver is the resolution context for exactly one run: the entry reader,
// the classification cache and the target type database. Construct one per
// run and discard it afterwards; it is not safe for concurrent use and a
// second run must not reuse it.
type Resolver struct {
	reader       die.EntryReader
	cache        *Cache
	db           *typedb.Database
	logger       zerolog.Logger
	nameRetryCap int

	// inProgress guards recursive referent resolution against cycles.
	inProgress map[dwarf.Offset]struct{}

	skips   []typedb.SkipRecord
	visited int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNameRetryCap overrides the naming loop retry cap.
func WithNameRetryCap(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.nameRetryCap = n
		}
	}
}

// NewResolver creates a resolution context over the given reader, cache and
// type database.
func NewResolver(reader die.EntryReader, cache *Cache, db *typedb.Database, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		reader:       reader,
		cache:        cache,
		db:           db,
		logger:       logger,
		nameRetryCap: DefaultNameRetryCap,
		inProgress:   make(map[dwarf.Offset]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Skips returns the diagnostics for every node skipped so far.
func (r *Resolver) Skips() []typedb.SkipRecord {
	return r.skips
}

// Visit classifies one node, consulting the cache first: an already
// processed offset is a no-op. A node whose referent is mid-resolution is
// left uncached for a later visit; any other failure marks the node Useless
// and is recorded as a skip, never aborting the surrounding traversal.
func (r *Resolver) Visit(d *die.DIE) error {
	off := d.Offset()
	if r.cache.Contains(off) {
		return nil
	}
	if _, busy := r.inProgress[off]; busy {
		return fmt.Errorf("node 0x%x references itself: %w", uint64(off), errNotResolved)
	}
	r.inProgress[off] = struct{}{}
	defer delete(r.inProgress, off)

	err := r.dispatch(d)
	if err == nil {
		return nil
	}
	if errors.Is(err, errNotResolved) {
		r.logger.Debug().
			Uint64("offset", uint64(off)).
			Str("tag", d.Tag().String()).
			Msg("Deferring node with unresolvable referent")
		return err
	}
	r.cache.MarkUseless(off)
	r.recordSkip(d, err)
	return err
}

// dispatch is the closed tag-to-handler mapping. Tags outside the mapping
// are left unclassified; their subtrees are still traversed by the driver.
func (r *Resolver) dispatch(d *die.DIE) error {
	switch d.Tag() {
	case dwarf.TagEnumerationType:
		return r.processEnum(d)
	case dwarf.TagBaseType:
		return r.processBaseType(d)
	case dwarf.TagUnspecifiedType:
		return r.processUnspecified(d)
	case dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagPointerType:
		return r.processModifier(d)
	case dwarf.TagTypedef:
		return r.processTypedef(d)
	case dwarf.TagArrayType:
		return r.processArray(d)
	case dwarf.TagStructType, dwarf.TagUnionType:
		return r.processAggregate(d)
	case dwarf.TagSubprogram:
		r.cache.MarkFunction(d.Offset())
		return nil
	case dwarf.TagVariable:
		r.cache.MarkVariable(d.Offset())
		return nil
	default:
		return nil
	}
}

// resolveOffset returns the type ordinal the given node offset resolves to,
// visiting the node recursively if it has not been seen yet. A node that is
// mid-resolution, or that resolved to something other than a type, yields
// errNotResolved.
func (r *Resolver) resolveOffset(off dwarf.Offset) (uint32, error) {
	if ordinal, ok := r.cache.TypeOrdinal(off); ok {
		return ordinal, nil
	}
	if r.cache.Contains(off) {
		return 0, fmt.Errorf("node 0x%x is not a type: %w", uint64(off), errNotResolved)
	}
	if _, busy := r.inProgress[off]; busy {
		return 0, fmt.Errorf("node 0x%x is mid-resolution: %w", uint64(off), errNotResolved)
	}
	d, err := die.Load(r.reader, off)
	if err != nil {
		return 0, err
	}
	if err := r.Visit(d); err != nil {
		return 0, err
	}
	if ordinal, ok := r.cache.TypeOrdinal(off); ok {
		return ordinal, nil
	}
	return 0, fmt.Errorf("node 0x%x did not resolve to a type: %w", uint64(off), errNotResolved)
}

// processEnum creates or reuses an enumeration entry. A named enum is
// matched against an existing entry of the same name; an anonymous one is
// matched through the enum owning its first enumerator's name.
func (r *Resolver) processEnum(d *die.DIE) error {
	name := d.Name()

	var fp *enumFingerprint
	if name != "" {
		fp = enumFingerprintOf(r.db.ByName(name))
	} else {
		first, err := d.FirstChild(dwarf.TagEnumerator)
		if err != nil {
			return err
		}
		if first != nil {
			fp = enumFingerprintOf(r.db.EnumByConstant(first.Name()))
		}
	}
	if fp != nil && fp.equal(d) {
		r.cache.MarkType(d.Offset(), fp.entry.Ordinal, false, 0)
		return nil
	}

	// Byte size is mandatory for an enum.
	size, err := d.ByteSize()
	if err != nil {
		return err
	}
	width := enumWidth(size)
	if width != size {
		r.logger.Warn().
			Int64("size", size).
			Uint64("offset", uint64(d.Offset())).
			Msg("Unexpected enum byte size, assuming 4 bytes")
	}

	entry := &typedb.Entry{Kind: typedb.KindEnum, Width: width}
	err = d.EachChild(dwarf.TagEnumerator, func(child *die.DIE) (bool, error) {
		value, err := child.Signed(dwarf.AttrConstValue)
		if err != nil {
			return false, err
		}
		entry.Enumerators = append(entry.Enumerators, typedb.Enumerator{
			Name:  child.Name(),
			Value: value,
		})
		// Enumerators resolve through their parent, never on their own.
		r.cache.MarkUseless(child.Offset())
		return true, nil
	})
	if err != nil {
		return err
	}

	createName := name
	if createName == "" {
		createName = anonName("enum", d.Offset())
	}
	ordinal, err := r.insertUnique(entry, createName, func(existing *typedb.Entry) bool {
		fp := enumFingerprintOf(existing)
		return fp != nil && fp.equal(d)
	})
	if err != nil {
		return err
	}

	r.cache.MarkType(d.Offset(), ordinal, false, 0)
	return nil
}

// enumWidth maps an enum byte size to a supported storage width, defaulting
// to 4 bytes for anything unexpected.
func enumWidth(size int64) int64 {
	switch size {
	case 1, 2, 4, 8, 16:
		return size
	default:
		return 4
	}
}

// processBaseType maps a declared encoding and byte width to a primitive
// descriptor. Unrecognized widths fall back to the natural width; an
// unrecognized encoding leaves the node Useless.
func (r *Resolver) processBaseType(d *die.DIE) error {
	name := d.Name()
	if name == "" {
		return &die.MissingAttributeError{Offset: d.Offset(), Attr: dwarf.AttrName}
	}
	size, err := d.ByteSize()
	if err != nil {
		return err
	}
	encoding, err := d.Signed(dwarf.AttrEncoding)
	if err != nil {
		return err
	}

	var prim typedb.Primitive
	switch encoding {
	case encBoolean:
		prim.Base = typedb.BaseBool
		switch size {
		case 1, 2, 4:
			prim.Size = size
		default:
			r.logger.Warn().
				Int64("size", size).
				Str("name", name).
				Msg("Unknown boolean size, assuming model-specific width")
		}
	case encFloat:
		prim.Base = typedb.BaseFloat
		switch size {
		case 2, 4, 8, 10:
			prim.Size = size
		default:
			r.logger.Warn().
				Int64("size", size).
				Str("name", name).
				Msg("Unknown float size, assuming model-specific width")
		}
	case encSigned, encUnsigned:
		prim.Base = typedb.BaseSigned
		if encoding == encUnsigned {
			prim.Base = typedb.BaseUnsigned
		}
		switch size {
		case 1, 2, 4, 8, 16:
			prim.Size = size
		default:
			r.logger.Warn().
				Int64("size", size).
				Str("name", name).
				Msg("Unknown integer size, assuming natural width")
		}
	case encSignedChar, encUnsignedChar:
		prim.Base = typedb.BaseSignedChar
		if encoding == encUnsignedChar {
			prim.Base = typedb.BaseUnsignedChar
		}
		prim.Size = 1
		if size != 1 {
			r.logger.Warn().
				Int64("size", size).
				Str("name", name).
				Msg("Character type wider than one byte, assuming 1 anyway")
		}
	default:
		return &die.FormatError{
			Offset: d.Offset(),
			Attr:   dwarf.AttrEncoding,
			Reason: fmt.Sprintf("unknown base type encoding %d", encoding),
		}
	}

	entry := &typedb.Entry{Kind: typedb.KindPrimitive, Primitive: prim}
	ordinal, err := r.insertUnique(entry, name, func(existing *typedb.Entry) bool {
		return existing.Kind == typedb.KindPrimitive && existing.Primitive == prim
	})
	if err != nil {
		return err
	}

	r.cache.MarkType(d.Offset(), ordinal, false, 0)
	return nil
}

// processUnspecified synthesizes (or reuses) the "void" entry.
func (r *Resolver) processUnspecified(d *die.DIE) error {
	ordinal, err := r.voidType()
	if err != nil {
		return err
	}
	r.cache.MarkType(d.Offset(), ordinal, false, 0)
	return nil
}

// voidType returns the ordinal of the shared "void" fallback entry,
// creating it on first use.
func (r *Resolver) voidType() (uint32, error) {
	void := typedb.Primitive{Base: typedb.BaseVoid}
	entry := &typedb.Entry{Kind: typedb.KindPrimitive, Primitive: void}
	return r.insertUnique(entry, "void", func(existing *typedb.Entry) bool {
		return existing.Kind == typedb.KindPrimitive && existing.Primitive == void
	})
}

// referentOrdinal resolves the node's type attribute, substituting the void
// fallback when the attribute is absent.
func (r *Resolver) referentOrdinal(d *die.DIE) (uint32, error) {
	if !d.HasAttr(dwarf.AttrType) {
		return r.voidType()
	}
	off, err := d.Ref(dwarf.AttrType)
	if err != nil {
		return 0, err
	}
	return r.resolveOffset(off)
}

// processModifier synthesizes a const, volatile or pointer derivation of an
// already-resolved referent, named by suffixing the referent's name.
func (r *Resolver) processModifier(d *die.DIE) error {
	refOrdinal, err := r.referentOrdinal(d)
	if err != nil {
		return err
	}
	referent := r.db.ByOrdinal(refOrdinal)
	if referent == nil {
		return fmt.Errorf("modifier referent ordinal %d: %w", refOrdinal, typedb.ErrNoSuchEntry)
	}

	var mod typedb.Modifier
	switch d.Tag() {
	case dwarf.TagConstType:
		mod = typedb.ModifierConst
	case dwarf.TagVolatileType:
		mod = typedb.ModifierVolatile
	case dwarf.TagPointerType:
		mod = typedb.ModifierPointer
	}

	entry := &typedb.Entry{Kind: typedb.KindModifier, Referent: refOrdinal, Modifier: mod}
	ordinal, err := r.insertUnique(entry, referent.Name+mod.Suffix(), func(existing *typedb.Entry) bool {
		return existing.Kind == typedb.KindModifier &&
			existing.Modifier == mod &&
			existing.Referent == refOrdinal
	})
	if err != nil {
		return err
	}

	r.cache.MarkType(d.Offset(), ordinal, false, refOrdinal)
	return nil
}

// processTypedef creates an alias entry pointing at the referent's ordinal,
// first checking for an existing alias of equal structural content so that
// repeated inclusion of one definition does not multiply entries.
func (r *Resolver) processTypedef(d *die.DIE) error {
	name := d.Name()
	if name == "" {
		return &die.MissingAttributeError{Offset: d.Offset(), Attr: dwarf.AttrName}
	}
	refOrdinal, err := r.referentOrdinal(d)
	if err != nil {
		return err
	}

	if ordinal := r.equivalentTypedef(d, name, refOrdinal); ordinal != typedb.NoType {
		r.cache.MarkType(d.Offset(), ordinal, false, refOrdinal)
		return nil
	}

	entry := &typedb.Entry{Kind: typedb.KindTypedef, Referent: refOrdinal}
	ordinal, err := r.insertUnique(entry, name, func(existing *typedb.Entry) bool {
		return existing.Kind == typedb.KindTypedef && existing.Referent == refOrdinal
	})
	if err != nil {
		return err
	}

	r.cache.MarkType(d.Offset(), ordinal, false, refOrdinal)
	return nil
}

// equivalentTypedef returns the ordinal of an existing typedef with the same
// name whose aliased struct, union or enum is structurally equal to the
// candidate's referent definition, or NoType.
func (r *Resolver) equivalentTypedef(d *die.DIE, name string, refOrdinal uint32) uint32 {
	existing := r.db.ByName(name)
	if existing == nil || existing.Kind != typedb.KindTypedef {
		return typedb.NoType
	}
	aliased := r.db.ByOrdinal(existing.Referent)
	referent := r.db.ByOrdinal(refOrdinal)
	if aliased == nil || referent == nil {
		return typedb.NoType
	}

	// Recover the referent's defining node through the cache reverse index
	// to compare the existing alias target against it structurally.
	refOff, ok := r.cache.OffsetOf(refOrdinal)
	if !ok {
		return typedb.NoType
	}
	refDie, err := die.Load(r.reader, refOff)
	if err != nil {
		return typedb.NoType
	}

	switch {
	case aliased.IsAggregate() && referent.IsAggregate():
		if fp := structFingerprintOf(aliased); fp != nil && fp.equal(refDie) {
			return existing.Ordinal
		}
	case aliased.Kind == typedb.KindEnum && referent.Kind == typedb.KindEnum:
		if fp := enumFingerprintOf(aliased); fp != nil && fp.equal(refDie) {
			return existing.Ordinal
		}
	}
	return typedb.NoType
}

// processArray synthesizes an array of an already-resolved element type.
// The bound comes from the single subrange child; a missing or unreadable
// bound yields an open array.
func (r *Resolver) processArray(d *die.DIE) error {
	refOff, err := d.Ref(dwarf.AttrType)
	if err != nil {
		return err
	}
	elemOrdinal, err := r.resolveOffset(refOff)
	if err != nil {
		return err
	}
	elem := r.db.ByOrdinal(elemOrdinal)
	if elem == nil {
		return fmt.Errorf("array element ordinal %d: %w", elemOrdinal, typedb.ErrNoSuchEntry)
	}

	count := r.arrayBound(d)

	name := elem.Name + "["
	if count > 0 {
		name += strconv.FormatInt(count, 10)
	}
	name += "]"

	entry := &typedb.Entry{Kind: typedb.KindArray, Referent: elemOrdinal, Count: count}
	ordinal, err := r.insertUnique(entry, name, func(existing *typedb.Entry) bool {
		return existing.Kind == typedb.KindArray &&
			existing.Referent == elemOrdinal &&
			existing.Count == count
	})
	if err != nil {
		return err
	}

	r.cache.MarkType(d.Offset(), ordinal, false, elemOrdinal)
	return nil
}

// arrayBound reads the bound-defining subrange child. Zero means open or
// unknown length.
func (r *Resolver) arrayBound(d *die.DIE) int64 {
	sub, err := d.FirstChild(dwarf.TagSubrangeType)
	if err != nil || sub == nil {
		return 0
	}
	if count, err := sub.Signed(dwarf.AttrCount); err == nil && count > 0 {
		return count
	}
	if upper, err := sub.Signed(dwarf.AttrUpperBound); err == nil && upper >= 0 {
		return upper + 1
	}
	return 0
}

// processAggregate creates or reuses a struct/union entry. A forward
// declaration becomes an opaque placeholder. Member types are resolved
// through the cache only; a member whose type is not yet there defers the
// aggregate to the second pass instead of aborting it.
func (r *Resolver) processAggregate(d *die.DIE) error {
	isUnion := d.Tag() == dwarf.TagUnionType
	name := d.Name()
	kindWord := "struct"
	if isUnion {
		kindWord = "union"
	}

	if d.Flag(dwarf.AttrDeclaration) {
		createName := name
		if createName == "" {
			createName = anonName(kindWord, d.Offset())
		}
		entry := &typedb.Entry{Kind: typedb.KindOpaque}
		ordinal, err := r.insertUnique(entry, createName, func(existing *typedb.Entry) bool {
			// Any existing entity of the name satisfies a forward
			// declaration; the definition owns the structure.
			return true
		})
		if err != nil {
			return err
		}
		r.cache.MarkType(d.Offset(), ordinal, false, 0)
		return nil
	}

	var candidate *typedb.Entry
	if name != "" {
		candidate = r.db.ByName(name)
	} else if first, err := d.FirstChild(dwarf.TagMember); err == nil && first != nil {
		candidate = r.db.AggregateByMember(first.Name())
	}
	if fp := structFingerprintOf(candidate); fp != nil && fp.equal(d) {
		r.cache.MarkType(d.Offset(), fp.entry.Ordinal, false, 0)
		return nil
	}

	kind := typedb.KindStruct
	if isUnion {
		kind = typedb.KindUnion
	}
	createName := name
	if createName == "" {
		createName = anonName(kindWord, d.Offset())
	}
	var ordinal uint32
	if existing := r.db.ByName(createName); existing != nil && existing.Kind == typedb.KindOpaque {
		// The definition arrived after its forward declaration: upgrade the
		// opaque placeholder in place, keeping its ordinal.
		existing.Kind = kind
		ordinal = existing.Ordinal
	} else {
		entry := &typedb.Entry{Kind: kind}
		var err error
		ordinal, err = r.insertUnique(entry, createName, func(existing *typedb.Entry) bool {
			fp := structFingerprintOf(existing)
			return fp != nil && fp.equal(d)
		})
		if err != nil {
			return err
		}
	}

	secondPass := false
	err := d.EachChild(dwarf.TagMember, func(child *die.DIE) (bool, error) {
		member, ok := r.buildMember(child, isUnion)
		if !ok {
			secondPass = true
			return true, nil
		}
		if err := r.db.AppendMember(ordinal, member); err != nil {
			r.logger.Warn().
				Err(err).
				Str("member", member.Name).
				Uint64("offset", uint64(child.Offset())).
				Msg("Dropping duplicate member")
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	r.cache.MarkType(d.Offset(), ordinal, secondPass, 0)
	return nil
}

// buildMember assembles one aggregate member from its node, resolving the
// member type through the cache. ok is false when the member must wait for
// the second pass.
func (r *Resolver) buildMember(child *die.DIE, isUnion bool) (typedb.Member, bool) {
	typeOff, err := child.Ref(dwarf.AttrType)
	if err != nil {
		return typedb.Member{}, false
	}
	typeOrdinal, ok := r.cache.TypeOrdinal(typeOff)
	if !ok {
		return typedb.Member{}, false
	}

	var offset uint64
	if !isUnion {
		offset, err = child.MemberOffset()
		if err != nil {
			return typedb.Member{}, false
		}
	}

	member := typedb.Member{
		Name:   child.Name(),
		Offset: offset,
		Type:   typeOrdinal,
	}
	// Scalar members carry their full descriptor inline; enum and aggregate
	// members reference the target entry by id only.
	if target := r.db.ByOrdinal(typeOrdinal); target != nil && target.Kind == typedb.KindPrimitive {
		prim := target.Primitive
		member.Inline = &prim
	}
	return member, true
}

// recordSkip logs a failed node and keeps its diagnostics for the run
// summary.
func (r *Resolver) recordSkip(d *die.DIE, err error) {
	r.skips = append(r.skips, typedb.SkipRecord{
		Offset: uint64(d.Offset()),
		Tag:    d.Tag().String(),
		Reason: err.Error(),
	})
	r.logger.Warn().
		Err(err).
		Uint64("offset", uint64(d.Offset())).
		Str("tag", d.Tag().String()).
		Msg("Cannot process DIE, skipping")
}
