package die

import (
	"debug/dwarf"
	"fmt"
)

// FormatError reports a malformed or unsupported attribute encoding on a
// debug-info entry: a reference attribute of an unexpected class, or a member
// location expression that is anything other than a single constant offset.
// Callers treat it as recoverable and skip the offending node.
type FormatError struct {
	Offset dwarf.Offset
	Attr   dwarf.Attr
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed DIE at offset 0x%x: attribute %s: %s", uint64(e.Offset), e.Attr, e.Reason)
}

// MissingAttributeError reports that a mandatory attribute is absent from a
// debug-info entry. Callers treat it as recoverable and skip the node.
type MissingAttributeError struct {
	Offset dwarf.Offset
	Attr   dwarf.Attr
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("DIE at offset 0x%x has no %s attribute", uint64(e.Offset), e.Attr)
}
