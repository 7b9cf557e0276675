// Package masterindex builds and serializes the summary table that
// describes every archive in a cache, as distributed to clients ahead
// of the archives themselves.
package masterindex

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/osrs-rs/rs2-cache/js5comp"
	"github.com/osrs-rs/rs2-cache/js5index"
	"github.com/osrs-rs/rs2-cache/store"
)

// Format identifies which optional fields a master index's entries
// carry, in increasing order of richness.
type Format uint8

const (
	FormatOriginal Format = iota
	FormatVersioned
	FormatDigests
	FormatLengths
)

const digestSize = 32

// Entry summarizes one archive.
type Entry struct {
	Version                 int32
	Checksum                uint32
	Groups                  int
	TotalUncompressedLength uint32
	Digest                  *[digestSize]byte
}

// MasterIndex is the full per-cache summary table.
type MasterIndex struct {
	Format  Format
	Entries []Entry
}

// Create reads archive 255's reference table and summarizes every
// archive it lists, backfilling zero entries for gaps in the archive
// id sequence.
func Create(s store.Store) (*MasterIndex, error) {
	mi := &MasterIndex{Format: FormatOriginal}

	archives, err := s.List(store.ArchiveSet)
	if err != nil {
		return nil, err
	}

	var nextArchive uint32
	for _, archiveID := range archives {
		raw, err := s.Read(store.ArchiveSet, archiveID)
		if err != nil {
			return nil, err
		}

		checksum := crc32.ChecksumIEEE(raw)

		plain, err := js5comp.Uncompress(raw, nil)
		if err != nil {
			return nil, err
		}

		idx, err := js5index.Read(plain)
		if err != nil {
			return nil, err
		}

		switch {
		case idx.HasLengths:
			mi.Format = maxFormat(mi.Format, FormatLengths)
		case idx.HasDigests:
			mi.Format = maxFormat(mi.Format, FormatDigests)
		case idx.Protocol >= js5index.ProtocolVersioned:
			mi.Format = maxFormat(mi.Format, FormatVersioned)
		}

		var totalUncompressedLength uint32
		for _, id := range idx.GroupIDs {
			totalUncompressedLength += idx.Groups[id].UncompressedLength
		}

		for a := nextArchive; a < archiveID; a++ {
			mi.Entries = append(mi.Entries, Entry{})
		}

		mi.Entries = append(mi.Entries, Entry{
			Version:                 idx.Version,
			Checksum:                checksum,
			Groups:                  len(idx.GroupIDs),
			TotalUncompressedLength: totalUncompressedLength,
		})

		nextArchive = archiveID + 1
	}

	return mi, nil
}

func maxFormat(a, b Format) Format {
	if b > a {
		return b
	}
	return a
}

// Write serializes the master index using the field set implied by its
// Format.
func (mi *MasterIndex) Write() []byte {
	var buf bytes.Buffer

	if mi.Format >= FormatDigests {
		buf.WriteByte(byte(len(mi.Entries)))
	}

	for _, e := range mi.Entries {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], e.Checksum)
		buf.Write(tmp[:])

		if mi.Format >= FormatVersioned {
			binary.BigEndian.PutUint32(tmp[:], uint32(e.Version))
			buf.Write(tmp[:])
		}

		if mi.Format >= FormatLengths {
			binary.BigEndian.PutUint32(tmp[:], uint32(e.Groups))
			buf.Write(tmp[:])
			binary.BigEndian.PutUint32(tmp[:], e.TotalUncompressedLength)
			buf.Write(tmp[:])
		}

		if mi.Format >= FormatDigests {
			if e.Digest != nil {
				buf.Write(e.Digest[:])
			} else {
				buf.Write(make([]byte, digestSize))
			}
		}
	}

	return buf.Bytes()
}
