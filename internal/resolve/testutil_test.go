package resolve

import (
	"debug/dwarf"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dwarf2db/dwarf2db/internal/die"
	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

func entry(off dwarf.Offset, tag dwarf.Tag, children bool, fields ...dwarf.Field) *dwarf.Entry {
	return &dwarf.Entry{Offset: off, Tag: tag, Children: children, Field: fields}
}

func null(off dwarf.Offset) *dwarf.Entry {
	return &dwarf.Entry{Offset: off}
}

func name(s string) dwarf.Field {
	return dwarf.Field{Attr: dwarf.AttrName, Val: s, Class: dwarf.ClassString}
}

func ref(target dwarf.Offset) dwarf.Field {
	return dwarf.Field{Attr: dwarf.AttrType, Val: target, Class: dwarf.ClassReference}
}

func constant(a dwarf.Attr, v int64) dwarf.Field {
	return dwarf.Field{Attr: a, Val: v, Class: dwarf.ClassConstant}
}

func flag(a dwarf.Attr) dwarf.Field {
	return dwarf.Field{Attr: a, Val: true, Class: dwarf.ClassFlag}
}

func exprLoc(expr ...byte) dwarf.Field {
	return dwarf.Field{Attr: dwarf.AttrDataMemberLoc, Val: expr, Class: dwarf.ClassExprLoc}
}

// newTestResolver builds a resolution context over a synthetic entry stream.
func newTestResolver(t *testing.T, entries []*dwarf.Entry, opts ...Option) (*Resolver, *Cache, *typedb.Database) {
	t.Helper()
	logger := zerolog.Nop()
	cache := NewCache()
	db := typedb.New(logger)
	r := NewResolver(die.NewStreamReader(entries...), cache, db, logger, opts...)
	return r, cache, db
}

// loadDIE is a test shortcut for loading one node from a synthetic stream.
func loadDIE(t *testing.T, entries []*dwarf.Entry, off dwarf.Offset) *die.DIE {
	t.Helper()
	d, err := die.Load(die.NewStreamReader(entries...), off)
	if err != nil {
		t.Fatalf("load DIE 0x%x: %v", uint64(off), err)
	}
	return d
}
