// Package archive composes a JS5 index with a bounded cache of decoded
// groups, decoding payloads from a Store on demand and verifying their
// checksums, lengths, and digests against the index metadata.
package archive

import (
	"bytes"
	"crypto/sha512"
	"fmt"
	"hash/crc32"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/osrs-rs/rs2-cache/group"
	"github.com/osrs-rs/rs2-cache/js5comp"
	"github.com/osrs-rs/rs2-cache/js5index"
	"github.com/osrs-rs/rs2-cache/store"
)

// DefaultUnpackedCacheCapacity is the default number of decoded groups
// kept resident per archive.
const DefaultUnpackedCacheCapacity = 1024

// UnpackedGroup holds one group's decoded file contents.
type UnpackedGroup struct {
	Dirty bool
	Key   *js5comp.Key
	Files map[uint32][]byte
}

// ErrGroupNotFound indicates the requested group id is absent from the
// archive's index.
type ErrGroupNotFound struct{ Group uint32 }

func (e *ErrGroupNotFound) Error() string {
	return fmt.Sprintf("archive: group %d not found", e.Group)
}

// ErrFileNotFound indicates the requested file id is absent from an
// otherwise-valid group.
type ErrFileNotFound struct{ Group, File uint32 }

func (e *ErrFileNotFound) Error() string {
	return fmt.Sprintf("archive: file %d not found in group %d", e.File, e.Group)
}

// ErrNameNotFound indicates a named-group lookup had no entry in the
// index's name hash table.
type ErrNameNotFound struct{ NameHash uint32 }

func (e *ErrNameNotFound) Error() string {
	return fmt.Sprintf("archive: no group named with hash %d", e.NameHash)
}

// ErrChecksumMismatch indicates a CRC32 check against index metadata
// failed.
type ErrChecksumMismatch struct{ Expected, Actual uint32 }

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("archive: checksum mismatch: expected %08x, got %08x", e.Expected, e.Actual)
}

// ErrLengthMismatch indicates a compressed or uncompressed length check
// against index metadata failed.
type ErrLengthMismatch struct{ Expected, Actual int }

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("archive: length mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDigestMismatch indicates the 64-byte digest stored in the index
// did not match the decoded group's hash.
var ErrDigestMismatch = fmt.Errorf("archive: digest mismatch")

// Archive caches decoded groups for a single archive id, backed by a
// Store and the archive's JS5 index.
type Archive struct {
	ID    uint8
	Index *js5index.Index
	Dirty bool

	store store.Store
	mu    sync.RWMutex
	cache *lru.Cache[uint32, *UnpackedGroup]
}

// New constructs an Archive over idx, fetching and decoding packed
// groups from s on demand, with a bounded unpacked-group cache.
func New(id uint8, idx *js5index.Index, s store.Store, cacheCapacity int) (*Archive, error) {
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultUnpackedCacheCapacity
	}
	c, err := lru.New[uint32, *UnpackedGroup](cacheCapacity)
	if err != nil {
		return nil, err
	}
	return &Archive{ID: id, Index: idx, store: s, cache: c}, nil
}

// Read returns a fresh copy of file's bytes inside group, decoding and
// caching the group if necessary.
func (a *Archive) Read(groupID uint32, fileID uint32, key *js5comp.Key) ([]byte, error) {
	unpacked, err := a.GetUnpacked(groupID, key)
	if err != nil {
		return nil, err
	}
	data, ok := unpacked.Files[fileID]
	if !ok {
		return nil, &ErrFileNotFound{Group: groupID, File: fileID}
	}
	return append([]byte(nil), data...), nil
}

// ReadNamedGroup resolves nameHash through the index's name table and
// otherwise behaves like Read.
func (a *Archive) ReadNamedGroup(nameHash uint32, fileID uint32, key *js5comp.Key) ([]byte, error) {
	groupID, ok := a.Index.GetNamed(nameHash)
	if !ok {
		return nil, &ErrNameNotFound{NameHash: nameHash}
	}
	return a.Read(groupID, fileID, key)
}

// GetUnpacked returns the decoded contents of groupID, consulting the
// unpacked cache first.
func (a *Archive) GetUnpacked(groupID uint32, key *js5comp.Key) (*UnpackedGroup, error) {
	a.mu.RLock()
	if u, ok := a.cache.Get(groupID); ok {
		a.mu.RUnlock()
		return u, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Re-check: another writer may have populated the entry while this
	// goroutine waited for the write lock.
	if u, ok := a.cache.Get(groupID); ok {
		return u, nil
	}

	desc, ok := a.Index.Groups[groupID]
	if !ok {
		return nil, &ErrGroupNotFound{Group: groupID}
	}

	compressed, err := a.store.Read(a.ID, groupID)
	if err != nil {
		return nil, err
	}

	if err := verifyCompressed(compressed, desc, a.Index.HasLengths); err != nil {
		return nil, err
	}

	plain, err := js5comp.Uncompress(compressed, key)
	if err != nil {
		return nil, err
	}

	if err := verifyUncompressed(plain, desc, a.Index); err != nil {
		return nil, err
	}

	files, err := group.Unpack(plain, desc.FileIDs)
	if err != nil {
		return nil, err
	}

	unpacked := &UnpackedGroup{Key: key, Files: files}
	a.cache.Add(groupID, unpacked)

	return unpacked, nil
}

func verifyCompressed(buf []byte, desc *js5index.Group, hasLengths bool) error {
	if hasLengths && len(buf) != int(desc.Length) {
		return &ErrLengthMismatch{Expected: int(desc.Length), Actual: len(buf)}
	}
	if got := crc32.ChecksumIEEE(buf); got != desc.Checksum {
		return &ErrChecksumMismatch{Expected: desc.Checksum, Actual: got}
	}
	return nil
}

func verifyUncompressed(buf []byte, desc *js5index.Group, idx *js5index.Index) error {
	if idx.HasLengths && len(buf) != int(desc.UncompressedLength) {
		return &ErrLengthMismatch{Expected: int(desc.UncompressedLength), Actual: len(buf)}
	}
	if idx.HasUncompressedChecksums {
		if got := crc32.ChecksumIEEE(buf); got != desc.UncompressedChecksum {
			return &ErrChecksumMismatch{Expected: desc.UncompressedChecksum, Actual: got}
		}
	}
	if idx.HasDigests {
		sum := sha512.Sum512(buf)
		if !bytes.Equal(sum[:], desc.Digest) {
			return ErrDigestMismatch
		}
	}
	return nil
}
