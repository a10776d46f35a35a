package resolve

import (
	"debug/dwarf"

	"github.com/dwarf2db/dwarf2db/internal/die"
	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

// enumFingerprint is the transient structural signature of an existing enum
// entry: its (constant name, value) pairs. Matching consumes the signature;
// build a fresh one per comparison.
type enumFingerprint struct {
	entry  *typedb.Entry
	consts map[string]int64
}

// enumFingerprintOf builds a fingerprint of an existing entry, or nil if the
// entry is not an enum.
func enumFingerprintOf(e *typedb.Entry) *enumFingerprint {
	if e == nil || e.Kind != typedb.KindEnum {
		return nil
	}
	fp := &enumFingerprint{
		entry:  e,
		consts: make(map[string]int64, len(e.Enumerators)),
	}
	for _, c := range e.Enumerators {
		fp.consts[c.Name] = c.Value
	}
	return fp
}

// equal walks the candidate's enumerator children in document order,
// consuming matching (name, value) pairs. A single non-matching child aborts
// the attempt; success requires the fingerprint to be exhausted exactly.
func (fp *enumFingerprint) equal(d *die.DIE) bool {
	matched := true
	err := d.EachChild(dwarf.TagEnumerator, func(child *die.DIE) (bool, error) {
		name := child.Name()
		value, err := child.Signed(dwarf.AttrConstValue)
		if err != nil {
			matched = false
			return false, nil
		}
		want, ok := fp.consts[name]
		if !ok || want != value {
			matched = false
			return false, nil
		}
		delete(fp.consts, name)
		return true, nil
	})
	if err != nil || !matched {
		return false
	}
	return len(fp.consts) == 0
}

// structFingerprint is the transient structural signature of an existing
// struct or union entry: its (member name, byte offset) pairs plus the
// struct/union flag. Union members all fingerprint at offset 0.
type structFingerprint struct {
	entry   *typedb.Entry
	isUnion bool
	members map[string]uint64
}

// structFingerprintOf builds a fingerprint of an existing entry, or nil if
// the entry is not a struct or union.
func structFingerprintOf(e *typedb.Entry) *structFingerprint {
	if e == nil || !e.IsAggregate() {
		return nil
	}
	fp := &structFingerprint{
		entry:   e,
		isUnion: e.Kind == typedb.KindUnion,
		members: make(map[string]uint64, len(e.Members)),
	}
	for _, m := range e.Members {
		if fp.isUnion {
			fp.members[m.Name] = 0
		} else {
			fp.members[m.Name] = m.Offset
		}
	}
	return fp
}

// equal walks the candidate's member children, consuming matching
// (name, offset) pairs. Kind flags must agree and the fingerprint must be
// exhausted exactly. An empty fingerprint never matches: a memberless entry
// carries no structure worth deduplicating against.
func (fp *structFingerprint) equal(d *die.DIE) bool {
	if len(fp.members) == 0 {
		return false
	}
	if fp.isUnion != (d.Tag() == dwarf.TagUnionType) {
		return false
	}
	matched := true
	err := d.EachChild(dwarf.TagMember, func(child *die.DIE) (bool, error) {
		name := child.Name()
		var offset uint64
		if !fp.isUnion {
			var err error
			offset, err = child.MemberOffset()
			if err != nil {
				matched = false
				return false, nil
			}
		}
		want, ok := fp.members[name]
		if !ok || want != offset {
			matched = false
			return false, nil
		}
		delete(fp.members, name)
		return true, nil
	})
	if err != nil || !matched {
		return false
	}
	return len(fp.members) == 0
}
