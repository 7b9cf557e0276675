// Package checksumtable builds the per-archive CRC32 table clients use
// to validate the reference table itself before trusting anything it
// describes.
package checksumtable

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/osrs-rs/rs2-cache/store"
)

// ChecksumTable holds one CRC32 per archive, indexed by archive id.
type ChecksumTable struct {
	Entries []uint32
}

// Create reads archive 0's listing and CRC32s each entry's raw bytes,
// zero-filling any gap in the archive id sequence.
func Create(s store.Store) (*ChecksumTable, error) {
	var entries []uint32
	var nextArchive uint32

	archives, err := s.List(0)
	if err != nil {
		return nil, err
	}

	for _, archiveID := range archives {
		raw, err := s.Read(0, archiveID)
		if err != nil {
			return nil, err
		}

		for a := nextArchive; a < archiveID; a++ {
			entries = append(entries, 0)
		}

		entries = append(entries, crc32.ChecksumIEEE(raw))
		nextArchive = archiveID + 1
	}

	return &ChecksumTable{Entries: entries}, nil
}

// Write serializes the table as big-endian uint32 entries and returns
// both the bytes and the rolling summary checksum computed over them.
// The summary's on-disk persistence format is left open for a future
// revision of the protocol.
func (c *ChecksumTable) Write() (buf []byte, summary uint32) {
	buf = make([]byte, 4*len(c.Entries))
	for i, e := range c.Entries {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], e)
	}

	summary = 1234
	for _, e := range c.Entries {
		summary = (summary << 1) + e
	}

	return buf, summary
}
