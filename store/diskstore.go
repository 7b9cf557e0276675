package store

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

const (
	extendedBlockHeaderSize = 10
	blockHeaderSize         = 8
	extendedBlockDataSize   = 510
	blockDataSize           = 512
	blockSize               = blockHeaderSize + blockDataSize
	indexEntrySize          = 6
	musicArchive            = 40
	maxArchive              = 255
)

const (
	dataFileName      = "main_file_cache.dat2"
	legacyDataName    = "main_file_cache.dat"
	musicDataFileName = "main_file_cache.dat2m"
	indexFilePrefix   = "main_file_cache.idx"
)

// indexEntry is the 6-byte directory record for one group: its byte
// size and the block at which its chain begins.
type indexEntry struct {
	size  uint32
	block uint32
}

// DiskStore reads groups out of the classic chained-block cache
// layout: a primary data file, an optional per-archive music data
// file, and up to 256 index files memory-mapped read-only.
type DiskStore struct {
	root       string
	data       mmap.MMap
	dataFile   *os.File
	musicData  mmap.MMap
	musicFile  *os.File
	indexes    map[uint8]mmap.MMap
	indexFiles map[uint8]*os.File
	legacy     bool
}

// Open memory-maps the data, optional music-data, and index files
// found under root.
func Open(root string) (*DiskStore, error) {
	js5DataPath := filepath.Join(root, dataFileName)
	legacyDataPath := filepath.Join(root, legacyDataName)

	legacy := !fileExists(js5DataPath)
	dataPath := js5DataPath
	if legacy {
		dataPath = legacyDataPath
	}

	dataFile, data, err := mapFile(dataPath)
	if err != nil {
		return nil, errors.Wrap(err, "store: open data file")
	}

	ds := &DiskStore{
		root:       root,
		data:       data,
		dataFile:   dataFile,
		indexes:    make(map[uint8]mmap.MMap),
		indexFiles: make(map[uint8]*os.File),
		legacy:     legacy,
	}

	musicPath := filepath.Join(root, musicDataFileName)
	if fileExists(musicPath) {
		musicFile, musicData, err := mapFile(musicPath)
		if err != nil {
			ds.Close()
			return nil, errors.Wrap(err, "store: open music data file")
		}
		ds.musicFile = musicFile
		ds.musicData = musicData
	}

	for i := 0; i <= maxArchive; i++ {
		path := filepath.Join(root, indexFileName(uint8(i)))
		if !fileExists(path) {
			continue
		}
		f, m, err := mapFile(path)
		if err != nil {
			ds.Close()
			return nil, errors.Wrapf(err, "store: open index file for archive %d", i)
		}
		ds.indexFiles[uint8(i)] = f
		ds.indexes[uint8(i)] = m
	}

	return ds, nil
}

func indexFileName(archive uint8) string {
	return indexFilePrefix + itoa(archive)
}

func itoa(v uint8) string {
	if v == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mapFile(path string) (*os.File, mmap.MMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, m, nil
}

func (d *DiskStore) dataFor(archive uint8) mmap.MMap {
	if archive == musicArchive && d.musicData != nil {
		return d.musicData
	}
	return d.data
}

func (d *DiskStore) readIndexEntry(archive uint8, group uint32) (indexEntry, error) {
	idx, ok := d.indexes[archive]
	if !ok {
		return indexEntry{}, ErrNotFound
	}

	pos := int(group) * indexEntrySize
	if pos+indexEntrySize > len(idx) {
		return indexEntry{}, ErrNotFound
	}

	return indexEntry{
		size:  readUint24(idx[pos : pos+3]),
		block: readUint24(idx[pos+3 : pos+6]),
	}, nil
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// List returns the group ids present in archive in ascending order.
func (d *DiskStore) List(archive uint8) ([]uint32, error) {
	idx, ok := d.indexes[archive]
	if !ok {
		return nil, ErrNotFound
	}

	var groups []uint32
	count := len(idx) / indexEntrySize
	for group := 0; group < count; group++ {
		pos := group * indexEntrySize
		block := readUint24(idx[pos+3 : pos+6])
		if block != 0 {
			groups = append(groups, uint32(group))
		}
	}
	return groups, nil
}

// Read follows a group's block chain and returns its raw bytes.
func (d *DiskStore) Read(archive uint8, group uint32) ([]byte, error) {
	entry, err := d.readIndexEntry(archive, group)
	if err != nil {
		return nil, err
	}
	if entry.block == 0 {
		return nil, ErrNotFound
	}

	data := d.dataFor(archive)

	extended := group >= 65536
	headerSize := blockHeaderSize
	dataSize := blockDataSize
	if extended {
		headerSize = extendedBlockHeaderSize
		dataSize = extendedBlockDataSize
	}

	buf := make([]byte, 0, entry.size)
	block := entry.block
	var num uint16

	for uint32(len(buf)) < entry.size {
		if block == 0 {
			return nil, ErrGroupTooShort
		}

		pos := int(block) * blockSize
		if pos+headerSize > len(data) {
			return nil, ErrNextBlockOutsideDataFile
		}

		var actualGroup uint32
		var off int
		if extended {
			actualGroup = binary.BigEndian.Uint32(data[pos : pos+4])
			off = pos + 4
		} else {
			actualGroup = uint32(binary.BigEndian.Uint16(data[pos : pos+2]))
			off = pos + 2
		}
		actualNum := binary.BigEndian.Uint16(data[off : off+2])
		nextBlock := readUint24(data[off+2 : off+5])
		actualArchive := data[off+5]
		if d.legacy {
			actualArchive--
		}

		if actualGroup != group {
			return nil, &ErrGroupMismatch{Expected: group, Actual: actualGroup}
		}
		if actualNum != num {
			return nil, &ErrBlockMismatch{Expected: num, Actual: actualNum}
		}
		if actualArchive != archive {
			return nil, &ErrArchiveMismatch{Expected: archive, Actual: actualArchive}
		}

		remaining := int(entry.size) - len(buf)
		n := dataSize
		if remaining < n {
			n = remaining
		}
		buf = append(buf, data[pos+headerSize:pos+headerSize+n]...)

		block = nextBlock
		num++
	}

	return buf, nil
}

// Close unmaps every mapped file and closes the underlying handles.
func (d *DiskStore) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if d.data != nil {
		record(d.data.Unmap())
	}
	if d.dataFile != nil {
		record(d.dataFile.Close())
	}
	if d.musicData != nil {
		record(d.musicData.Unmap())
	}
	if d.musicFile != nil {
		record(d.musicFile.Close())
	}
	for _, m := range d.indexes {
		record(m.Unmap())
	}
	for _, f := range d.indexFiles {
		record(f.Close())
	}

	return firstErr
}
