package typedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreCreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "storage")

	store, err := OpenStore(dir, "types", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	require.Equal(t, filepath.Join(dir, "types.duckdb"), store.Path())
}

func TestOpenStoreIdempotentSchema(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(dir, "types", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening the same file re-runs the schema without complaint.
	store, err = OpenStore(dir, "types", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestSaveRunRoundTrip(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "types", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	inline := Primitive{Base: BaseSigned, Size: 4}
	entries := []*Entry{
		{
			Ordinal:   1,
			Name:      "int",
			Kind:      KindPrimitive,
			Primitive: inline,
		},
		{
			Ordinal: 2,
			Name:    "Color",
			Kind:    KindEnum,
			Width:   4,
			Enumerators: []Enumerator{
				{Name: "RED", Value: 0},
				{Name: "GREEN", Value: 1},
			},
		},
		{
			Ordinal: 3,
			Name:    "point",
			Kind:    KindStruct,
			Members: []Member{
				{Name: "x", Offset: 0, Type: 1, Inline: &inline},
				{Name: "y", Offset: 4, Type: 1, Inline: &inline},
			},
		},
		{
			Ordinal:  4,
			Name:     "int[10]",
			Kind:     KindArray,
			Referent: 1,
			Count:    10,
		},
	}

	run := RunRecord{
		ID:        "run-1",
		Binary:    "/usr/bin/example",
		StartedAt: time.Now().UTC(),
		Duration:  125 * time.Millisecond,
		Visited:   42,
		Types:     4,
		Functions: 2,
		Variables: 3,
		Useless:   5,
		Skipped:   1,
		Patched:   2,
	}
	skips := []SkipRecord{
		{Offset: 0x1a4, Tag: "StructType", Reason: "boom"},
	}

	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, run, entries, skips))

	stored, err := store.EntriesForRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stored, 4)

	require.Equal(t, uint32(1), stored[0].Ordinal)
	require.Equal(t, "int", stored[0].Name)
	require.Equal(t, "Primitive", stored[0].Kind)

	require.Equal(t, "Color", stored[1].Name)
	require.Equal(t, "Enum", stored[1].Kind)

	require.Equal(t, "point", stored[2].Name)
	require.Equal(t, "Struct", stored[2].Kind)

	require.Equal(t, "int[10]", stored[3].Name)
	require.Equal(t, uint32(1), stored[3].Referent)
	require.Equal(t, int64(10), stored[3].Count)
}

func TestEntriesForUnknownRun(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "types", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	stored, err := store.EntriesForRun(context.Background(), "no-such-run")
	require.NoError(t, err)
	require.Empty(t, stored)
}
