// Package rs2cache is a read-only client for the JS5 on-disk asset
// cache: a content-addressed, block-chained store organized as
// archives of groups of files, indexed by a per-archive reference
// table and optionally XTEA-encrypted.
package rs2cache

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/osrs-rs/rs2-cache/archive"
	"github.com/osrs-rs/rs2-cache/djb2"
	"github.com/osrs-rs/rs2-cache/js5comp"
	"github.com/osrs-rs/rs2-cache/js5index"
	"github.com/osrs-rs/rs2-cache/store"
)

// OpenDiagnostic records an archive that failed to parse during Open;
// the rest of the cache remains usable.
type OpenDiagnostic struct {
	Archive uint8
	Err     error
}

func (d OpenDiagnostic) String() string {
	return fmt.Sprintf("archive %d: %v", d.Archive, d.Err)
}

// ErrArchiveNotFound indicates the requested archive was never
// successfully loaded.
type ErrArchiveNotFound struct{ Archive uint8 }

func (e *ErrArchiveNotFound) Error() string {
	return fmt.Sprintf("rs2cache: archive %d not found", e.Archive)
}

// Cache is a read handle onto a JS5 cache directory: a Store plus one
// Archive per successfully parsed reference-table entry.
type Cache struct {
	store                 store.Store
	archives              map[uint8]*archive.Archive
	unpackedCacheCapacity int
	logger                *logrus.Logger
	diagnostics           []OpenDiagnostic
}

// Option configures a Cache at Open time.
type Option func(*config)

type config struct {
	unpackedCacheCapacity int
	logger                *logrus.Logger
}

// WithUnpackedCacheCapacity overrides the default per-archive unpacked
// group cache size (1024).
func WithUnpackedCacheCapacity(n int) Option {
	return func(c *config) { c.unpackedCacheCapacity = n }
}

// WithLogger overrides the logger used to report per-archive open
// diagnostics. The default is logrus's standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Open opens a DiskStore or FlatFileStore rooted at path, whichever its
// layout indicates, and loads every archive listed in the reference
// table.
func Open(path string, opts ...Option) (*Cache, error) {
	s, err := store.OpenAny(path)
	if err != nil {
		return nil, err
	}
	return OpenWithStore(s, opts...)
}

// OpenWithStore builds a Cache over an already-open Store, useful for
// test doubles or stores opened with custom settings.
func OpenWithStore(s store.Store, opts ...Option) (*Cache, error) {
	cfg := config{
		unpackedCacheCapacity: archive.DefaultUnpackedCacheCapacity,
		logger:                logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache{
		store:                 s,
		archives:              make(map[uint8]*archive.Archive),
		unpackedCacheCapacity: cfg.unpackedCacheCapacity,
		logger:                cfg.logger,
	}

	if err := c.init(); err != nil {
		s.Close()
		return nil, err
	}

	return c, nil
}

func (c *Cache) init() error {
	archiveIDs, err := c.store.List(store.ArchiveSet)
	if err != nil {
		return err
	}

	for _, id := range archiveIDs {
		archiveID := uint8(id)

		compressed, err := c.store.Read(store.ArchiveSet, id)
		if err != nil {
			c.recordDiagnostic(archiveID, err)
			continue
		}

		plain, err := js5comp.Uncompress(compressed, nil)
		if err != nil {
			c.recordDiagnostic(archiveID, err)
			continue
		}

		idx, err := js5index.Read(plain)
		if err != nil {
			c.recordDiagnostic(archiveID, err)
			continue
		}

		a, err := archive.New(archiveID, idx, c.store, c.unpackedCacheCapacity)
		if err != nil {
			c.recordDiagnostic(archiveID, err)
			continue
		}

		c.archives[archiveID] = a
	}

	return nil
}

func (c *Cache) recordDiagnostic(archiveID uint8, err error) {
	c.diagnostics = append(c.diagnostics, OpenDiagnostic{Archive: archiveID, Err: err})
	c.logger.WithFields(logrus.Fields{"archive": archiveID}).Warnf("skipping archive: %v", err)
}

// Diagnostics returns the archives that failed to load during Open,
// along with their errors. An empty result means every listed archive
// loaded successfully.
func (c *Cache) Diagnostics() []OpenDiagnostic {
	return c.diagnostics
}

// Read returns a copy of file's bytes inside (archive, group),
// deciphering with key if non-nil.
func (c *Cache) Read(archiveID uint8, group uint32, file uint32, key *js5comp.Key) ([]byte, error) {
	a, ok := c.archives[archiveID]
	if !ok {
		return nil, &ErrArchiveNotFound{Archive: archiveID}
	}
	return a.Read(group, file, key)
}

// ReadNamedGroup resolves groupName through djb2 hashing before
// otherwise behaving like Read.
func (c *Cache) ReadNamedGroup(archiveID uint8, groupName string, file uint32, key *js5comp.Key) ([]byte, error) {
	a, ok := c.archives[archiveID]
	if !ok {
		return nil, &ErrArchiveNotFound{Archive: archiveID}
	}
	return a.ReadNamedGroup(djb2.Hash(groupName), file, key)
}

// Close releases the underlying store's resources.
func (c *Cache) Close() error {
	return c.store.Close()
}
