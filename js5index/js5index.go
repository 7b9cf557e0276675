// Package js5index parses the per-archive reference table describing
// every group and file an archive holds, across the three on-wire
// protocol generations.
package js5index

import (
	"encoding/binary"
	"fmt"
)

// Protocol identifies the on-wire JS5 index format.
type Protocol uint8

const (
	ProtocolOriginal  Protocol = 5
	ProtocolVersioned Protocol = 6
	ProtocolSmart     Protocol = 7
)

const (
	flagNames                 = 0x1
	flagDigests               = 0x2
	flagLengths               = 0x4
	flagUncompressedChecksums = 0x8
)

const digestSize = 64

// File describes one file inside a group.
type File struct {
	NameHash int32
}

// Group describes one group inside an archive's index.
type Group struct {
	NameHash              int32
	Version               uint32
	Checksum              uint32
	UncompressedChecksum  uint32
	Length                uint32
	UncompressedLength    uint32
	Digest                []byte
	Capacity              uint32
	FileIDs               []uint32
	Files                 map[uint32]*File
}

// Index is the deserialized reference table for one archive.
type Index struct {
	Protocol                Protocol
	Version                 int32
	HasNames                bool
	HasDigests              bool
	HasLengths              bool
	HasUncompressedChecksums bool

	GroupIDs []uint32
	Groups   map[uint32]*Group

	// NameHashTable maps a group's name hash to its group id.
	NameHashTable map[uint32]uint32
}

// ErrUnsupportedProtocol is returned when the leading protocol byte is
// outside {5,6,7}.
type ErrUnsupportedProtocol struct{ Protocol uint8 }

func (e *ErrUnsupportedProtocol) Error() string {
	return fmt.Sprintf("js5index: unsupported protocol: %d", e.Protocol)
}

// ErrTruncated indicates the buffer ended before the index was fully
// parsed.
var ErrTruncated = fmt.Errorf("js5index: truncated buffer")

// reader is a cursor over the index bytes, carrying the protocol-gated
// variable-width integer reader selected once up front.
type reader struct {
	buf      []byte
	pos      int
	readSize func() (uint32, error)
}

func (r *reader) u8() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, ErrTruncated
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return append([]byte(nil), v...), nil
}

// smartUint32 reads the "smart" variable-width encoding: a leading byte
// whose high bit selects between a 15-bit value (itself and the next
// byte) and a 31-bit value (itself, with the high bit masked off, and
// the next three bytes).
func (r *reader) smartUint32() (uint32, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrTruncated
	}
	if r.buf[r.pos]&0x80 == 0 {
		v, err := r.u16()
		return uint32(v), err
	}
	v, err := r.u32()
	return v & 0x7FFFFFFF, err
}

// Read parses a JS5 index from buf.
func Read(buf []byte) (*Index, error) {
	r := &reader{buf: buf}

	protocolByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	protocol := Protocol(protocolByte)
	if protocol < ProtocolOriginal || protocol > ProtocolSmart {
		return nil, &ErrUnsupportedProtocol{Protocol: protocolByte}
	}

	if protocol >= ProtocolSmart {
		r.readSize = r.smartUint32
	} else {
		r.readSize = func() (uint32, error) {
			v, err := r.u16()
			return uint32(v), err
		}
	}

	var version int32
	if protocol >= ProtocolVersioned {
		version, err = r.i32()
		if err != nil {
			return nil, err
		}
	}

	flags, err := r.u8()
	if err != nil {
		return nil, err
	}

	size, err := r.readSize()
	if err != nil {
		return nil, err
	}

	idx := &Index{
		Protocol:                 protocol,
		Version:                  version,
		HasNames:                 flags&flagNames != 0,
		HasDigests:               flags&flagDigests != 0,
		HasLengths:               flags&flagLengths != 0,
		HasUncompressedChecksums: flags&flagUncompressedChecksums != 0,
		Groups:                   make(map[uint32]*Group, size),
		NameHashTable:            make(map[uint32]uint32),
	}

	var prevGroupID uint32
	for i := uint32(0); i < size; i++ {
		delta, err := r.readSize()
		if err != nil {
			return nil, err
		}
		prevGroupID += delta
		idx.GroupIDs = append(idx.GroupIDs, prevGroupID)
		idx.Groups[prevGroupID] = &Group{NameHash: -1, Files: make(map[uint32]*File)}
	}

	if idx.HasNames {
		for _, id := range idx.GroupIDs {
			g := idx.Groups[id]
			g.NameHash, err = r.i32()
			if err != nil {
				return nil, err
			}
			idx.NameHashTable[uint32(g.NameHash)] = id
		}
	}

	for _, id := range idx.GroupIDs {
		g := idx.Groups[id]
		if g.Checksum, err = r.u32(); err != nil {
			return nil, err
		}
	}

	if idx.HasUncompressedChecksums {
		for _, id := range idx.GroupIDs {
			g := idx.Groups[id]
			if g.UncompressedChecksum, err = r.u32(); err != nil {
				return nil, err
			}
		}
	}

	if idx.HasDigests {
		for _, id := range idx.GroupIDs {
			g := idx.Groups[id]
			if g.Digest, err = r.bytes(digestSize); err != nil {
				return nil, err
			}
		}
	}

	if idx.HasLengths {
		for _, id := range idx.GroupIDs {
			g := idx.Groups[id]
			if g.Length, err = r.u32(); err != nil {
				return nil, err
			}
			if g.UncompressedLength, err = r.u32(); err != nil {
				return nil, err
			}
		}
	}

	for _, id := range idx.GroupIDs {
		g := idx.Groups[id]
		if g.Version, err = r.u32(); err != nil {
			return nil, err
		}
	}

	groupSizes := make([]uint32, size)
	for i := range groupSizes {
		if groupSizes[i], err = r.readSize(); err != nil {
			return nil, err
		}
	}

	for i, id := range idx.GroupIDs {
		g := idx.Groups[id]
		var prevFileID uint32
		for j := uint32(0); j < groupSizes[i]; j++ {
			delta, err := r.readSize()
			if err != nil {
				return nil, err
			}
			prevFileID += delta
			g.FileIDs = append(g.FileIDs, prevFileID)
			g.Files[prevFileID] = &File{NameHash: -1}
		}
	}

	if idx.HasNames {
		for _, id := range idx.GroupIDs {
			g := idx.Groups[id]
			for _, fid := range g.FileIDs {
				f := g.Files[fid]
				if f.NameHash, err = r.i32(); err != nil {
					return nil, err
				}
			}
		}
	}

	return idx, nil
}

// GetNamed resolves a name hash to a group id.
func (idx *Index) GetNamed(nameHash uint32) (uint32, bool) {
	id, ok := idx.NameHashTable[nameHash]
	return id, ok
}
