// Package die provides a lazy, memoized read view over a single DWARF
// debug-information entry. A DIE handle borrows a seekable entry reader,
// fetches each attribute, child and sibling from it at most once, and
// converts decoding problems into typed, recoverable errors that identify
// the offending node and attribute.
package die

import (
	"debug/dwarf"
	"fmt"
)

// DW_OP_plus_uconst is the only location operation supported for member
// placement. Anything richer is an unsupported expression shape.
const opPlusUconst = 0x23

// EntryReader is the minimal seekable view of a DWARF info section that a
// DIE handle needs. *dwarf.Reader satisfies it; tests substitute a synthetic
// entry stream.
type EntryReader interface {
	// Seek positions the reader at the entry with the given offset.
	Seek(off dwarf.Offset)
	// Next reads the next entry in the flattened tree, returning nil at the
	// end of the section. Null entries (Tag 0) terminate sibling lists.
	Next() (*dwarf.Entry, error)
	// SkipChildren skips over the children of the last entry returned by
	// Next; it is a no-op if that entry had no children.
	SkipChildren()
}

// DIE is a borrowed, scope-limited handle on one debug-info node. It is not
// safe for concurrent use, matching the single-threaded resolution model.
type DIE struct {
	r     EntryReader
	entry *dwarf.Entry
	attrs map[dwarf.Attr]*dwarf.Field

	child       *DIE
	childDone   bool
	sibling     *DIE
	siblingDone bool
}

// Load positions the reader at off and returns a handle on the entry there.
func Load(r EntryReader, off dwarf.Offset) (*DIE, error) {
	r.Seek(off)
	entry, err := r.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read DIE at offset 0x%x: %w", uint64(off), err)
	}
	if entry == nil || entry.Tag == 0 {
		return nil, &FormatError{Offset: off, Reason: "no entry at offset"}
	}
	return &DIE{r: r, entry: entry}, nil
}

// wrap builds a handle around an already-read entry.
func wrap(r EntryReader, entry *dwarf.Entry) *DIE {
	return &DIE{r: r, entry: entry}
}

// Offset returns the stable byte offset identifying this node.
func (d *DIE) Offset() dwarf.Offset {
	return d.entry.Offset
}

// Tag returns the node's kind tag.
func (d *DIE) Tag() dwarf.Tag {
	return d.entry.Tag
}

// Name returns the node's name attribute, or "" for anonymous nodes.
func (d *DIE) Name() string {
	name, _ := d.entry.Val(dwarf.AttrName).(string)
	return name
}

// field returns the attribute field for attr, or nil if absent. The field
// table is built once from the underlying entry.
func (d *DIE) field(attr dwarf.Attr) *dwarf.Field {
	if d.attrs == nil {
		d.attrs = make(map[dwarf.Attr]*dwarf.Field, len(d.entry.Field))
		for i := range d.entry.Field {
			f := &d.entry.Field[i]
			if _, ok := d.attrs[f.Attr]; !ok {
				d.attrs[f.Attr] = f
			}
		}
	}
	return d.attrs[attr]
}

// HasAttr reports whether the node carries the given attribute.
func (d *DIE) HasAttr(attr dwarf.Attr) bool {
	return d.field(attr) != nil
}

// Ref resolves a cross-reference attribute to the section-absolute offset of
// the referenced node. Compile-unit-relative forms (ref1..ref_udata) and the
// absolute form (ref_addr) are both normalized to section offsets by the
// underlying reader; any other attribute class is a format error.
func (d *DIE) Ref(attr dwarf.Attr) (dwarf.Offset, error) {
	f := d.field(attr)
	if f == nil {
		return 0, &MissingAttributeError{Offset: d.Offset(), Attr: attr}
	}
	switch f.Class {
	case dwarf.ClassReference:
		off, ok := f.Val.(dwarf.Offset)
		if !ok {
			return 0, &FormatError{Offset: d.Offset(), Attr: attr, Reason: "reference attribute holds no offset"}
		}
		return off, nil
	default:
		return 0, &FormatError{
			Offset: d.Offset(),
			Attr:   attr,
			Reason: fmt.Sprintf("unsupported reference class %s", f.Class),
		}
	}
}

// Signed returns the value of a constant-class attribute, accepting both
// unsigned and signed encodings, mirroring the permissive small-encoding
// read used for enumerator values and bounds.
func (d *DIE) Signed(attr dwarf.Attr) (int64, error) {
	f := d.field(attr)
	if f == nil {
		return 0, &MissingAttributeError{Offset: d.Offset(), Attr: attr}
	}
	switch v := f.Val.(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	default:
		return 0, &FormatError{
			Offset: d.Offset(),
			Attr:   attr,
			Reason: fmt.Sprintf("constant attribute holds %T", f.Val),
		}
	}
}

// ByteSize returns the node's mandatory byte size attribute.
func (d *DIE) ByteSize() (int64, error) {
	return d.Signed(dwarf.AttrByteSize)
}

// Flag returns the value of a flag-class attribute, false if absent.
func (d *DIE) Flag(attr dwarf.Attr) bool {
	f := d.field(attr)
	if f == nil {
		return false
	}
	v, _ := f.Val.(bool)
	return v
}

// MemberOffset returns the byte offset of a member inside its aggregate.
// It accepts a plain constant (DWARF 4 style) or a location expression made
// of exactly one DW_OP_plus_uconst operation; richer expressions are an
// unsupported shape.
func (d *DIE) MemberOffset() (uint64, error) {
	f := d.field(dwarf.AttrDataMemberLoc)
	if f == nil {
		return 0, &MissingAttributeError{Offset: d.Offset(), Attr: dwarf.AttrDataMemberLoc}
	}
	switch f.Class {
	case dwarf.ClassConstant:
		v, ok := f.Val.(int64)
		if !ok || v < 0 {
			return 0, &FormatError{Offset: d.Offset(), Attr: dwarf.AttrDataMemberLoc, Reason: "negative or non-integer member offset"}
		}
		return uint64(v), nil
	case dwarf.ClassExprLoc, dwarf.ClassBlock:
		expr, ok := f.Val.([]byte)
		if !ok || len(expr) == 0 {
			return 0, &FormatError{Offset: d.Offset(), Attr: dwarf.AttrDataMemberLoc, Reason: "empty location expression"}
		}
		if expr[0] != opPlusUconst {
			return 0, &FormatError{
				Offset: d.Offset(),
				Attr:   dwarf.AttrDataMemberLoc,
				Reason: fmt.Sprintf("unsupported location operation 0x%x", expr[0]),
			}
		}
		v, n := decodeULEB128(expr[1:])
		if n == 0 || n != len(expr)-1 {
			return 0, &FormatError{Offset: d.Offset(), Attr: dwarf.AttrDataMemberLoc, Reason: "location expression is not a single constant offset"}
		}
		return v, nil
	default:
		return 0, &FormatError{
			Offset: d.Offset(),
			Attr:   dwarf.AttrDataMemberLoc,
			Reason: fmt.Sprintf("unsupported member location class %s", f.Class),
		}
	}
}

// Child returns the node's first child, or nil if it has none. The result is
// memoized for the handle's lifetime.
func (d *DIE) Child() (*DIE, error) {
	if d.childDone {
		return d.child, nil
	}
	if !d.entry.Children {
		d.childDone = true
		return nil, nil
	}
	d.r.Seek(d.entry.Offset)
	if _, err := d.r.Next(); err != nil {
		return nil, fmt.Errorf("failed to reposition at DIE 0x%x: %w", uint64(d.Offset()), err)
	}
	entry, err := d.r.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read first child of DIE 0x%x: %w", uint64(d.Offset()), err)
	}
	d.childDone = true
	if entry == nil || entry.Tag == 0 {
		return nil, nil
	}
	d.child = wrap(d.r, entry)
	return d.child, nil
}

// Sibling returns the node's next sibling, or nil if it is the last child.
// The result is memoized for the handle's lifetime.
func (d *DIE) Sibling() (*DIE, error) {
	if d.siblingDone {
		return d.sibling, nil
	}
	d.r.Seek(d.entry.Offset)
	if _, err := d.r.Next(); err != nil {
		return nil, fmt.Errorf("failed to reposition at DIE 0x%x: %w", uint64(d.Offset()), err)
	}
	d.r.SkipChildren()
	entry, err := d.r.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read sibling of DIE 0x%x: %w", uint64(d.Offset()), err)
	}
	d.siblingDone = true
	if entry == nil || entry.Tag == 0 {
		return nil, nil
	}
	d.sibling = wrap(d.r, entry)
	return d.sibling, nil
}

// EachChild invokes fn on every direct child carrying the given tag, in
// document order. fn returning false stops the walk early.
func (d *DIE) EachChild(tag dwarf.Tag, fn func(child *DIE) (bool, error)) error {
	child, err := d.Child()
	if err != nil {
		return err
	}
	for child != nil {
		if child.Tag() == tag {
			keep, err := fn(child)
			if err != nil {
				return err
			}
			if !keep {
				return nil
			}
		}
		child, err = child.Sibling()
		if err != nil {
			return err
		}
	}
	return nil
}

// FirstChild returns the first direct child carrying the given tag, or nil.
func (d *DIE) FirstChild(tag dwarf.Tag) (*DIE, error) {
	var found *DIE
	err := d.EachChild(tag, func(child *DIE) (bool, error) {
		found = child
		return false, nil
	})
	return found, err
}

// decodeULEB128 decodes an unsigned little-endian base-128 value, returning
// the value and the number of bytes consumed (0 on truncated input).
func decodeULEB128(buf []byte) (uint64, int) {
	var result uint64
	var shift uint
	for i, b := range buf {
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
	}
	return 0, 0
}
