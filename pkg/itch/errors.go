package itch

import "fmt"

// Truncated means the byte source ended mid-frame: fewer bytes were
// available than the declared message length required. The stream is
// unusable past this point.
type Truncated struct {
	Want int
	Got  int
}

func (e *Truncated) Error() string {
	return fmt.Sprintf("itch: truncated frame: wanted %d bytes, got %d", e.Want, e.Got)
}

// UnknownTag means the message-type byte did not match any of the
// known ITCH 5.0 tags. The frame is skipped; the stream continues.
type UnknownTag struct {
	Tag byte
}

func (e *UnknownTag) Error() string {
	return fmt.Sprintf("itch: unknown message tag %q", e.Tag)
}

// InvalidField means a known message's body contained a byte that
// does not map to any enum variant for that field. The record is
// dropped; the stream continues.
type InvalidField struct {
	Tag   byte
	Field string
	Err   error
}

func (e *InvalidField) Error() string {
	return fmt.Sprintf("itch: invalid field %q in tag %q: %v", e.Field, e.Tag, e.Err)
}

func (e *InvalidField) Unwrap() error { return e.Err }

// MissingOrder means a reference-number message (Execute/Cancel/
// Delete/Replace) named an order reference the book has never seen,
// or has already removed. The book silently ignores the message —
// this is expected when decoding a feed that starts mid-session.
type MissingOrder struct {
	Reference uint64
}

func (e *MissingOrder) Error() string {
	return fmt.Sprintf("itch: reference %d not present in book", e.Reference)
}

// InternalInvariant means the book observed a state it believes is
// impossible given a self-consistent feed — e.g. an execution larger
// than the resting order's remaining shares. It is logged and counted
// but never halts the pipeline: the offending order is dropped rather
// than left in an inconsistent state.
type InternalInvariant struct {
	Reason string
}

func (e *InternalInvariant) Error() string {
	return fmt.Sprintf("itch: internal invariant violated: %s", e.Reason)
}

// IoError wraps a failure from the underlying byte source (a read
// error on the file or socket backing the stream).
type IoError struct {
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("itch: io error: %v", e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }
