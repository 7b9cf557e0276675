package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osrs-rs/rs2-cache/js5index"
)

// memStore is a trivial in-memory store.Store used to exercise Archive
// without touching the filesystem.
type memStore struct {
	groups map[uint32][]byte
}

func (m *memStore) List(archive uint8) ([]uint32, error) {
	ids := make([]uint32, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) Read(archive uint8, group uint32) ([]byte, error) {
	buf, ok := m.groups[group]
	if !ok {
		return nil, errNotFound
	}
	return buf, nil
}

func (m *memStore) Close() error { return nil }

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func frameGzipGroup(t *testing.T, plain []byte) []byte {
	t.Helper()
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	compressed := gz.Bytes()
	buf := make([]byte, 5+4+len(compressed))
	buf[0] = 2 // gzip
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(compressed)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(plain)))
	copy(buf[9:], compressed)
	return buf
}

func TestArchiveReadIdempotent(t *testing.T) {
	plain := []byte("OpenRS2")
	framed := frameGzipGroup(t, plain)

	idx := &js5index.Index{
		GroupIDs: []uint32{0},
		Groups: map[uint32]*js5index.Group{
			0: {
				Checksum: crc32.ChecksumIEEE(framed),
				FileIDs:  []uint32{0},
				Files:    map[uint32]*js5index.File{0: {NameHash: -1}},
			},
		},
		NameHashTable: map[uint32]uint32{},
	}

	s := &memStore{groups: map[uint32][]byte{0: framed}}
	a, err := New(255, idx, s, 0)
	require.NoError(t, err)

	got1, err := a.Read(0, 0, nil)
	require.NoError(t, err)
	require.Equal(t, plain, got1)

	got2, err := a.Read(0, 0, nil)
	require.NoError(t, err)
	require.Equal(t, plain, got2)
}

func TestArchiveGroupNotFound(t *testing.T) {
	idx := &js5index.Index{Groups: map[uint32]*js5index.Group{}, NameHashTable: map[uint32]uint32{}}
	s := &memStore{groups: map[uint32][]byte{}}
	a, err := New(0, idx, s, 0)
	require.NoError(t, err)

	_, err = a.Read(5, 0, nil)
	var target *ErrGroupNotFound
	require.ErrorAs(t, err, &target)
}

func TestArchiveFileNotFound(t *testing.T) {
	plain := []byte("x")
	framed := frameGzipGroup(t, plain)
	idx := &js5index.Index{
		Groups: map[uint32]*js5index.Group{
			0: {
				Checksum: crc32.ChecksumIEEE(framed),
				FileIDs:  []uint32{0},
				Files:    map[uint32]*js5index.File{0: {NameHash: -1}},
			},
		},
		NameHashTable: map[uint32]uint32{},
	}
	s := &memStore{groups: map[uint32][]byte{0: framed}}
	a, err := New(0, idx, s, 0)
	require.NoError(t, err)

	_, err = a.Read(0, 9, nil)
	var target *ErrFileNotFound
	require.ErrorAs(t, err, &target)
}

func TestArchiveChecksumMismatch(t *testing.T) {
	plain := []byte("x")
	framed := frameGzipGroup(t, plain)
	idx := &js5index.Index{
		Groups: map[uint32]*js5index.Group{
			0: {
				Checksum: crc32.ChecksumIEEE(framed) + 1,
				FileIDs:  []uint32{0},
				Files:    map[uint32]*js5index.File{0: {NameHash: -1}},
			},
		},
		NameHashTable: map[uint32]uint32{},
	}
	s := &memStore{groups: map[uint32][]byte{0: framed}}
	a, err := New(0, idx, s, 0)
	require.NoError(t, err)

	_, err = a.Read(0, 0, nil)
	var target *ErrChecksumMismatch
	require.ErrorAs(t, err, &target)
}
