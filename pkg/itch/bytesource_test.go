package itch

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteSourceReadExact(t *testing.T) {
	src := NewByteSourceSize(bytes.NewReader([]byte("hello world")), 4)

	b, err := src.Read(5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b)

	b, err = src.Read(6)
	require.NoError(t, err)
	require.Equal(t, []byte(" world"), b)
}

func TestByteSourceCleanEOFHasZeroGot(t *testing.T) {
	src := NewByteSourceSize(bytes.NewReader([]byte("abc")), 8)

	b, err := src.Read(3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), b)

	_, err = src.Read(1)
	var trunc *Truncated
	require.ErrorAs(t, err, &trunc)
	require.Equal(t, 0, trunc.Got)
	require.True(t, src.Done())
}

func TestByteSourceTruncatedMidRecordHasPositiveGot(t *testing.T) {
	src := NewByteSourceSize(bytes.NewReader([]byte("ab")), 8)

	_, err := src.Read(5)
	var trunc *Truncated
	require.ErrorAs(t, err, &trunc)
	require.Equal(t, 2, trunc.Got)
}

func TestByteSourceGrowsPastInitialBuffer(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 1000)
	src := NewByteSourceSize(bytes.NewReader(payload), 64)

	b, err := src.Read(1000)
	require.NoError(t, err)
	require.Equal(t, payload, b)
}

func TestByteSourceWrapsUnderlyingReaderError(t *testing.T) {
	src := NewByteSourceSize(errReader{err: io.ErrClosedPipe}, 8)
	_, err := src.Read(4)
	var ioErr *IoError
	require.ErrorAs(t, err, &ioErr)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
