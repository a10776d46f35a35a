// Package objfile opens the binary container that holds the debug section
// and hands out readers over its DWARF data. Failing here is the only thing
// that aborts an import before any node is visited.
package objfile

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
)

// File is an opened ELF binary with usable DWARF debug info.
type File struct {
	path string
	elf  *elf.File
	data *dwarf.Data
}

// Open opens path as an ELF binary and parses its DWARF sections.
func Open(path string) (*File, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary %s: %w", path, err)
	}

	data, err := f.DWARF()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("no usable DWARF debug info in %s: %w", path, err)
	}

	return &File{path: path, elf: f, data: data}, nil
}

// Path returns the path the file was opened from.
func (f *File) Path() string {
	return f.path
}

// DWARF returns the parsed debug data.
func (f *File) DWARF() *dwarf.Data {
	return f.data
}

// Reader returns a fresh entry reader positioned at the first entry.
func (f *File) Reader() *dwarf.Reader {
	return f.data.Reader()
}

// Close releases the underlying file.
func (f *File) Close() error {
	if f.elf == nil {
		return nil
	}
	err := f.elf.Close()
	f.elf = nil
	if err != nil {
		return fmt.Errorf("failed to close binary %s: %w", f.path, err)
	}
	return nil
}
