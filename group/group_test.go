package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnpackSingle(t *testing.T) {
	files, err := Unpack([]byte{0, 1, 2, 3}, []uint32{1})
	require.NoError(t, err)
	require.Equal(t, map[uint32][]byte{1: {0, 1, 2, 3}}, files)
}

func TestUnpackZeroStripes(t *testing.T) {
	files, err := Unpack([]byte{0}, []uint32{0, 1, 3})
	require.NoError(t, err)
	require.Equal(t, map[uint32][]byte{0: {}, 1: {}, 3: {}}, files)
}

func TestUnpackOneStripe(t *testing.T) {
	payload := []byte{
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
		0, 0, 0, 3,
		0, 0, 0, 2,
		0xFF, 0xFF, 0xFF, 0xFD,
		1,
	}
	files, err := Unpack(payload, []uint32{0, 1, 3})
	require.NoError(t, err)
	require.Equal(t, map[uint32][]byte{
		0: {0, 1, 2},
		1: {3, 4, 5, 6, 7},
		3: {8, 9},
	}, files)
}

func TestUnpackMultipleStripes(t *testing.T) {
	payload := []byte{
		0, 1, 3, 4, 8, 9, 2, 5, 6, 7,
		0, 0, 0, 2,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 1,
		0, 0, 0, 2,
		0xFF, 0xFF, 0xFF, 0xFD,
		2,
	}
	files, err := Unpack(payload, []uint32{0, 1, 3})
	require.NoError(t, err)
	require.Equal(t, map[uint32][]byte{
		0: {0, 1, 2},
		1: {3, 4, 5, 6, 7},
		3: {8, 9},
	}, files)
}

func TestUnpackEmpty(t *testing.T) {
	_, err := Unpack([]byte{1}, nil)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestUnpackTrailerUnderflow(t *testing.T) {
	// stripes=1 over 3 files claims a 13-byte trailer but the payload
	// holds only 5 bytes total.
	payload := []byte{0, 0, 0, 0, 1}
	_, err := Unpack(payload, []uint32{0, 1, 3})
	require.ErrorIs(t, err, ErrTrailerUnderflow)
}

func TestUnpackTruncatedStripe(t *testing.T) {
	// One data byte is available, but the first file's stripe delta
	// claims 5 bytes, running past the start of the trailer.
	payload := []byte{
		0xAA,
		0, 0, 0, 5,
		0, 0, 0, 0,
		1,
	}
	_, err := Unpack(payload, []uint32{0, 1})
	require.ErrorIs(t, err, ErrTruncatedStripe)
}
