// Package js5comp implements the JS5 compression/encryption framing used
// to store archive groups on disk: a small header describing the codec
// and lengths, an optionally XTEA-enciphered payload, and an optional
// trailing version that is ignored on decode.
package js5comp

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz/lzma"

	"github.com/osrs-rs/rs2-cache/xtea"
)

// Type identifies the codec a framed payload was compressed with.
type Type uint8

const (
	TypeNone  Type = 0
	TypeBzip2 Type = 1
	TypeGzip  Type = 2
	TypeLzma  Type = 3
)

var (
	// ErrMissingHeader is returned when the buffer is too short to hold
	// even the fixed-size frame header.
	ErrMissingHeader = errors.New("js5comp: missing header")
	// ErrDataTruncated is returned when the buffer does not contain as
	// many bytes as the frame header promises.
	ErrDataTruncated = errors.New("js5comp: data truncated")
)

// ErrNegativeLength is returned when the frame's compressed length is
// negative.
type ErrNegativeLength struct{ Length int32 }

func (e *ErrNegativeLength) Error() string {
	return fmt.Sprintf("js5comp: negative length: %d", e.Length)
}

// ErrUncompressedLengthNegative is returned when the frame's plaintext
// uncompressed-length field is negative.
type ErrUncompressedLengthNegative struct{ Length int32 }

func (e *ErrUncompressedLengthNegative) Error() string {
	return fmt.Sprintf("js5comp: uncompressed length is negative: %d", e.Length)
}

// ErrUnknownCompressionType is returned for a type byte outside
// {NONE, BZIP2, GZIP, LZMA}.
type ErrUnknownCompressionType struct{ Type uint8 }

func (e *ErrUnknownCompressionType) Error() string {
	return fmt.Sprintf("js5comp: unknown compression type: %d", e.Type)
}

// Key is a 128-bit XTEA key used to decipher a group's payload.
type Key = [4]uint32

// Uncompress decodes a framed JS5 payload, optionally deciphering it
// with key first. It returns the plaintext, uncompressed bytes. For an
// uncompressed (TypeNone) frame with a key, everything after the header
// is deciphered and returned, including any trailing version.
func Uncompress(buf []byte, key *Key) ([]byte, error) {
	if len(buf) < 5 {
		return nil, ErrMissingHeader
	}

	typ := Type(buf[0])
	length := int32(binary.BigEndian.Uint32(buf[1:5]))
	if length < 0 {
		return nil, &ErrNegativeLength{Length: length}
	}
	rest := buf[5:]

	if typ == TypeNone {
		if int32(len(rest)) < length {
			return nil, ErrDataTruncated
		}
		if key != nil {
			return xtea.New(*key).DecipherBytes(rest), nil
		}
		return append([]byte(nil), rest[:length]...), nil
	}

	lenWithUncompressedLen := length + 4
	if int32(len(rest)) < lenWithUncompressedLen {
		return nil, ErrDataTruncated
	}

	var plain []byte
	if key != nil {
		plain = xtea.New(*key).DecipherBytes(rest[:lenWithUncompressedLen])
	} else {
		plain = rest[:lenWithUncompressedLen]
	}

	uncompressedLength := int32(binary.BigEndian.Uint32(plain[:4]))
	if uncompressedLength < 0 {
		return nil, &ErrUncompressedLengthNegative{Length: uncompressedLength}
	}

	payload := plain[4 : 4+length]

	switch typ {
	case TypeBzip2:
		return decompressBzip2(payload, uncompressedLength)
	case TypeGzip:
		return decompressGzip(payload, uncompressedLength)
	case TypeLzma:
		return decompressLzma(payload, uncompressedLength)
	default:
		return nil, &ErrUnknownCompressionType{Type: uint8(typ)}
	}
}

// bzMagic is the standard bzip2 stream magic ("BZh" + block size digit).
// JS5's BZIP2 frames omit it to save four bytes per group.
var bzMagic = []byte("BZh1")

func decompressBzip2(payload []byte, uncompressedLength int32) ([]byte, error) {
	framed := make([]byte, 0, len(bzMagic)+len(payload))
	framed = append(framed, bzMagic...)
	framed = append(framed, payload...)

	out := make([]byte, uncompressedLength)
	r := bzip2.NewReader(bytes.NewReader(framed))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "js5comp: bzip2")
	}
	return out, nil
}

func decompressGzip(payload []byte, uncompressedLength int32) ([]byte, error) {
	r, err := pgzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "js5comp: gzip")
	}
	defer r.Close()

	out := make([]byte, uncompressedLength)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "js5comp: gzip")
	}
	return out, nil
}

// lzmaAloneHeader builds the classic 13-byte LZMA "alone" format header
// (properties byte, little-endian dictionary size, little-endian
// uncompressed size) so ulikunitz/xz/lzma can decode a raw LZMA1 stream
// whose uncompressed size is supplied out of band by the frame header.
func lzmaAloneHeader(uncompressedLength int32) []byte {
	const propsByte = 0x5D // lc=3, lp=0, pb=2
	const dictSize = uint32(1) << 16

	header := make([]byte, 13)
	header[0] = propsByte
	binary.LittleEndian.PutUint32(header[1:5], dictSize)
	binary.LittleEndian.PutUint64(header[5:13], uint64(uint32(uncompressedLength)))
	return header
}

func decompressLzma(payload []byte, uncompressedLength int32) ([]byte, error) {
	framed := append(lzmaAloneHeader(uncompressedLength), payload...)

	r, err := lzma.NewReader(bytes.NewReader(framed))
	if err != nil {
		return nil, errors.Wrap(err, "js5comp: lzma")
	}

	out := make([]byte, uncompressedLength)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "js5comp: lzma")
	}
	return out, nil
}
