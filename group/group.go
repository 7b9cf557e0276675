// Package group unpacks a decoded JS5 group payload into the
// individual file byte sequences it contains, reversing the
// stripe-interleaved layout multi-file groups are stored in.
package group

import (
	"encoding/binary"
	"fmt"
)

// ErrEmpty is returned when a group has no files to unpack into, or when
// a multi-file group's payload is empty.
var ErrEmpty = fmt.Errorf("group: group is empty")

// ErrTrailerUnderflow is returned when a multi-file group's payload is
// too short to hold the stripe trailer its own stripe count implies.
var ErrTrailerUnderflow = fmt.Errorf("group: trailer underflow")

// ErrTruncatedStripe is returned when a stripe's claimed length would
// read past the start of the trailer.
var ErrTruncatedStripe = fmt.Errorf("group: truncated stripe")

// Unpack splits payload into per-file byte sequences according to
// fileIDs, the group's file ids in ascending order.
//
// A single-file group's payload is returned verbatim. A multi-file
// group ends with a trailer: its last byte is the stripe count, and the
// preceding stripes*len(fileIDs)*4 bytes hold per-file signed length
// deltas, one stripe at a time, in file-id order.
func Unpack(payload []byte, fileIDs []uint32) (map[uint32][]byte, error) {
	if len(fileIDs) == 0 {
		return nil, ErrEmpty
	}

	if len(fileIDs) == 1 {
		out := make([]byte, len(payload))
		copy(out, payload)
		return map[uint32][]byte{fileIDs[0]: out}, nil
	}

	if len(payload) == 0 {
		return nil, ErrEmpty
	}

	stripes := int(payload[len(payload)-1])
	trailerSize := stripes*len(fileIDs)*4 + 1
	trailerStart := len(payload) - trailerSize
	if trailerStart < 0 {
		return nil, ErrTrailerUnderflow
	}

	lens := make([]int32, len(fileIDs))
	pos := trailerStart
	for s := 0; s < stripes; s++ {
		var prevLen int32
		for i := range fileIDs {
			prevLen += int32(binary.BigEndian.Uint32(payload[pos : pos+4]))
			pos += 4
			lens[i] += prevLen
		}
	}

	files := make(map[uint32][]byte, len(fileIDs))
	for i, id := range fileIDs {
		files[id] = make([]byte, 0, lens[i])
	}

	dataIndex := 0
	pos = trailerStart
	for s := 0; s < stripes; s++ {
		var prevLen int32
		for _, id := range fileIDs {
			prevLen += int32(binary.BigEndian.Uint32(payload[pos : pos+4]))
			pos += 4

			end := dataIndex + int(prevLen)
			if prevLen < 0 || end > trailerStart {
				return nil, ErrTruncatedStripe
			}

			dst := files[id]
			capBefore := cap(dst)
			dst = append(dst, payload[dataIndex:end]...)
			// The OpenRS2 client enforces this as a hard cap; truncate
			// here instead since Go slices have no such limit.
			if len(dst) > capBefore {
				dst = dst[:capBefore]
			}
			files[id] = dst

			dataIndex = end
		}
	}

	return files, nil
}
