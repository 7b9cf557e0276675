// Package xtea implements the 64-bit XTEA block cipher in ECB mode over
// 8-byte-aligned segments, as used to encrypt JS5 group payloads.
package xtea

import "encoding/binary"

// delta is the XTEA round constant, derived from the golden ratio.
const delta = 0x9E3779B9

const rounds = 32

// Cipher holds a 128-bit XTEA key as four 32-bit words.
type Cipher struct {
	Key [4]uint32
}

// New returns a Cipher for the given 128-bit key.
func New(key [4]uint32) Cipher {
	return Cipher{Key: key}
}

// Encipher encrypts a single 8-byte block, given as its two big-endian
// 32-bit halves, and returns the enciphered halves.
func (c Cipher) Encipher(v0, v1 uint32) (uint32, uint32) {
	var sum uint32
	for i := 0; i < rounds; i++ {
		v0 += ((v1<<4 ^ v1>>5) + v1) ^ (sum + c.Key[sum&3])
		sum += delta
		v1 += ((v0<<4 ^ v0>>5) + v0) ^ (sum + c.Key[(sum>>11)&3])
	}
	return v0, v1
}

// Decipher reverses Encipher for a single 8-byte big-endian block.
func (c Cipher) Decipher(v0, v1 uint32) (uint32, uint32) {
	sum := uint32(rounds) * delta
	for i := 0; i < rounds; i++ {
		v1 -= ((v0<<4 ^ v0>>5) + v0) ^ (sum + c.Key[(sum>>11)&3])
		sum -= delta
		v0 -= ((v1<<4 ^ v1>>5) + v1) ^ (sum + c.Key[sum&3])
	}
	return v0, v1
}

// DecipherBytes deciphers buf in 8-byte big-endian blocks, rounding the
// processed length down to a multiple of 8. Any trailing bytes that do
// not fill a full block are copied through unchanged. The returned slice
// has the same length as buf.
func (c Cipher) DecipherBytes(buf []byte) []byte {
	return c.transform(buf, c.Decipher)
}

// EncipherBytes enciphers buf using the same block/remainder rule as
// DecipherBytes.
func (c Cipher) EncipherBytes(buf []byte) []byte {
	return c.transform(buf, c.Encipher)
}

func (c Cipher) transform(buf []byte, block func(uint32, uint32) (uint32, uint32)) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)

	aligned := len(buf) - len(buf)%8
	for off := 0; off < aligned; off += 8 {
		v0 := binary.BigEndian.Uint32(out[off : off+4])
		v1 := binary.BigEndian.Uint32(out[off+4 : off+8])
		v0, v1 = block(v0, v1)
		binary.BigEndian.PutUint32(out[off:off+4], v0)
		binary.BigEndian.PutUint32(out[off+4:off+8], v1)
	}

	return out
}
