package itch

import (
	"errors"
	"io"
)

// defaultBufferSize is comfortably larger than any single ITCH 5.0
// record (the widest body, NOII, is 50 bytes including its header).
const defaultBufferSize = 8192

// ByteSource presents an ordered, unbounded byte stream with a
// refillable backing buffer, per §4.1. Callers pull exact-sized slices
// with Read; the source compacts and refills from the underlying
// io.Reader as needed.
type ByteSource struct {
	r     io.Reader
	buf   []byte
	start int
	end   int
	eof   bool
}

// NewByteSource wraps r with the default buffer size.
func NewByteSource(r io.Reader) *ByteSource {
	return NewByteSourceSize(r, defaultBufferSize)
}

// NewByteSourceSize wraps r with a buffer of at least 64 bytes.
func NewByteSourceSize(r io.Reader, size int) *ByteSource {
	if size < 64 {
		size = 64
	}
	return &ByteSource{r: r, buf: make([]byte, size)}
}

// Read returns exactly n bytes from the stream, blocking on the
// underlying reader until n bytes are available or the stream ends.
// The returned slice aliases the source's internal buffer and is only
// valid until the next call to Read.
//
// If the stream ends with fewer than n bytes remaining, Read returns
// *Truncated with Got set to the number of bytes that were actually
// available. A Got of zero means the stream ended cleanly on a record
// boundary — callers use that to distinguish end-of-stream from a
// truncated record.
func (s *ByteSource) Read(n int) ([]byte, error) {
	if n > len(s.buf) {
		s.grow(n)
	}
	for s.end-s.start < n && !s.eof {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	if got := s.end - s.start; got < n {
		s.start = s.end
		return nil, &Truncated{Want: n, Got: got}
	}
	b := s.buf[s.start : s.start+n]
	s.start += n
	return b, nil
}

// Done reports whether the source has reached a terminal end-of-stream
// state: the underlying reader is exhausted and the buffer is empty.
func (s *ByteSource) Done() bool {
	return s.eof && s.start == s.end
}

func (s *ByteSource) grow(n int) {
	s.compact()
	if n > len(s.buf) {
		bigger := make([]byte, n*2)
		copy(bigger, s.buf[:s.end])
		s.buf = bigger
	}
}

func (s *ByteSource) compact() {
	if s.start == 0 {
		return
	}
	copy(s.buf, s.buf[s.start:s.end])
	s.end -= s.start
	s.start = 0
}

func (s *ByteSource) fill() error {
	s.compact()
	if s.end == len(s.buf) {
		s.grow(len(s.buf) * 2)
	}
	n, err := s.r.Read(s.buf[s.end:])
	s.end += n
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.eof = true
			return nil
		}
		return &IoError{Err: err}
	}
	if n == 0 {
		// A reader that legitimately has no more bytes but isn't ready
		// to report io.EOF would spin here; ITCH sources are files or
		// sockets that always eventually report EOF, so treat a zero
		// read as exhaustion rather than loop.
		s.eof = true
	}
	return nil
}
