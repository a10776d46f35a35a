package die

import (
	"debug/dwarf"
)

// StreamReader is an in-memory EntryReader over a flattened entry stream.
// It mirrors the framing of a real info section: children follow their
// parent and every child list is closed by a null (Tag 0) entry. It exists
// so tests can feed synthetic node trees to the resolution pipeline.
type StreamReader struct {
	entries      []*dwarf.Entry
	pos          int
	lastChildren bool
}

// NewStreamReader builds a reader over the given flattened entries.
func NewStreamReader(entries ...*dwarf.Entry) *StreamReader {
	return &StreamReader{entries: entries}
}

// Seek positions the reader at the entry with the given offset. Offset 0
// rewinds to the first entry. An unknown offset positions at the end, so the
// following Next reports no entry.
func (r *StreamReader) Seek(off dwarf.Offset) {
	r.lastChildren = false
	if off == 0 {
		r.pos = 0
		return
	}
	for i, e := range r.entries {
		if e.Offset == off {
			r.pos = i
			return
		}
	}
	r.pos = len(r.entries)
}

// Next returns the next entry in the stream, nil at the end.
func (r *StreamReader) Next() (*dwarf.Entry, error) {
	if r.pos >= len(r.entries) {
		r.lastChildren = false
		return nil, nil
	}
	e := r.entries[r.pos]
	r.pos++
	r.lastChildren = e.Children
	return e, nil
}

// SkipChildren skips past the children of the last entry returned by Next.
func (r *StreamReader) SkipChildren() {
	if !r.lastChildren {
		return
	}
	r.lastChildren = false
	depth := 1
	for depth > 0 && r.pos < len(r.entries) {
		e := r.entries[r.pos]
		r.pos++
		switch {
		case e.Tag == 0:
			depth--
		case e.Children:
			depth++
		}
	}
}
