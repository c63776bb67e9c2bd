// Package itchtypes holds the fixed-precision value types and enum
// taxonomies shared by the decoder and the order book: Symbol, Price4,
// Price8, and the ITCH 5.0 enum byte mappings.
package itchtypes

import "bytes"

// Symbol is the 8-character fixed-width stock symbol ITCH carries on the
// wire, space-padded on the right. Equality compares the raw bytes, so
// two symbols differing only in trailing-space padding are distinct —
// that never happens on a conforming feed, where padding is canonical.
type Symbol [8]byte

// NewSymbol pads s with spaces (or truncates it) to the 8-byte wire width.
func NewSymbol(s string) Symbol {
	var sym Symbol
	copy(sym[:], s)
	for i := len(s); i < len(sym); i++ {
		sym[i] = ' '
	}
	return sym
}

// String trims trailing spaces for display. Wire equality must never use
// this — compare Symbol values directly.
func (s Symbol) String() string {
	return string(bytes.TrimRight(s[:], " "))
}

// Empty reports whether the symbol is all spaces (unset).
func (s Symbol) Empty() bool {
	for _, b := range s {
		if b != ' ' {
			return false
		}
	}
	return true
}
