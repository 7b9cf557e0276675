package masterindex

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osrs-rs/rs2-cache/store"
)

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
	return m.groups[group], nil
}

func (m *memStore) Close() error { return nil }

var _ store.Store = (*memStore)(nil)

func frameGzip(t *testing.T, plain []byte) []byte {
	t.Helper()
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	compressed := gz.Bytes()
	buf := make([]byte, 5+4+len(compressed))
	buf[0] = 2
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(compressed)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(plain)))
	copy(buf[9:], compressed)
	return buf
}

func emptyIndex(protocol uint8) []byte {
	return []byte{protocol, 0, 0, 0}
}

func TestCreateOriginal(t *testing.T) {
	framed := frameGzip(t, emptyIndex(5))
	s := &memStore{groups: map[uint32][]byte{0: framed}}

	mi, err := Create(s)
	require.NoError(t, err)
	require.Equal(t, FormatOriginal, mi.Format)
	require.Len(t, mi.Entries, 1)
}

func TestCreateVersionedBacksFillsGaps(t *testing.T) {
	framed := frameGzip(t, []byte{6, 0, 0, 0, 0, 0, 0, 0})
	s := &memStore{groups: map[uint32][]byte{2: framed}}

	mi, err := Create(s)
	require.NoError(t, err)
	require.Equal(t, FormatVersioned, mi.Format)
	require.Len(t, mi.Entries, 3)
	require.Equal(t, Entry{}, mi.Entries[0])
	require.Equal(t, Entry{}, mi.Entries[1])
}

func TestWriteOriginal(t *testing.T) {
	mi := &MasterIndex{
		Format: FormatOriginal,
		Entries: []Entry{
			{Checksum: 0xAABBCCDD},
		},
	}
	buf := mi.Write()
	require.Len(t, buf, 4)
	require.Equal(t, uint32(0xAABBCCDD), binary.BigEndian.Uint32(buf))
}
