package resolve

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunEmptyStream(t *testing.T) {
	r, _, db := newTestResolver(t, nil)

	result, err := r.Run()
	require.NoError(t, err)
	require.Equal(t, 0, result.Units)
	require.Equal(t, 0, result.Visited)
	require.Equal(t, 0, db.Len())
	require.NotEmpty(t, result.RunID)
}

func TestRunUnitWithoutChildren(t *testing.T) {
	r, _, _ := newTestResolver(t, []*dwarf.Entry{
		entry(0xb, dwarf.TagCompileUnit, false),
	})

	result, err := r.Run()
	require.NoError(t, err)
	require.Equal(t, 1, result.Units)
	require.Equal(t, 0, result.Visited)
}

func TestRunVisitsEveryNodeOnce(t *testing.T) {
	r, cache, _ := newTestResolver(t, []*dwarf.Entry{
		entry(0xb, dwarf.TagCompileUnit, true),
		entry(0x10, dwarf.TagSubprogram, true, name("main")),
		entry(0x14, dwarf.TagVariable, false, name("local")),
		null(0x18),
		entry(0x20, dwarf.TagVariable, false, name("global")),
		null(0x28),
	})

	result, err := r.Run()
	require.NoError(t, err)
	require.Equal(t, 3, result.Visited)
	require.Equal(t, 1, result.Functions)
	require.Equal(t, 2, result.Variables)

	ce, ok := cache.Get(0x10)
	require.True(t, ok)
	require.Equal(t, ClassFunction, ce.Class)
	ce, ok = cache.Get(0x14)
	require.True(t, ok)
	require.Equal(t, ClassVariable, ce.Class)
}

func TestRunKeepsUnitsSeparate(t *testing.T) {
	r, _, db := newTestResolver(t, []*dwarf.Entry{
		entry(0xb, dwarf.TagCompileUnit, true),
		entry(0x10, dwarf.TagBaseType, false,
			name("int"), constant(dwarf.AttrByteSize, 4), constant(dwarf.AttrEncoding, 0x05)),
		null(0x18),
		entry(0x100, dwarf.TagCompileUnit, true),
		entry(0x110, dwarf.TagBaseType, false,
			name("int"), constant(dwarf.AttrByteSize, 4), constant(dwarf.AttrEncoding, 0x05)),
		null(0x118),
	})

	result, err := r.Run()
	require.NoError(t, err)
	require.Equal(t, 2, result.Units)
	require.Equal(t, 2, result.Visited)

	// The same definition seen from both units converges on one entry.
	require.Equal(t, 1, db.Len())
}

func TestRunMemberStillUnresolvableIsIncomplete(t *testing.T) {
	// The member's type reference points at nothing resolvable, so the
	// aggregate is deferred and stays incomplete after the second pass.
	r, cache, db := newTestResolver(t, []*dwarf.Entry{
		entry(0xb, dwarf.TagCompileUnit, true),
		entry(0x10, dwarf.TagStructType, true, name("broken")),
		entry(0x14, dwarf.TagMember, false,
			name("x"), ref(0x999), constant(dwarf.AttrDataMemberLoc, 0)),
		null(0x18),
		null(0x19),
	})

	result, err := r.Run()
	require.NoError(t, err)
	require.Equal(t, 0, result.Patched)
	require.Equal(t, 1, result.Incomplete)

	broken := db.ByName("broken")
	require.NotNil(t, broken)
	require.Empty(t, broken.Members)

	ce, ok := cache.Get(0x10)
	require.True(t, ok)
	require.True(t, ce.SecondPass)
}
