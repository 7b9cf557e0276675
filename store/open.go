package store

import "path/filepath"

// OpenAny opens the store found at root: a DiskStore if a JS5 or legacy
// data file is present, otherwise a FlatFileStore.
func OpenAny(root string) (Store, error) {
	if fileExists(filepath.Join(root, dataFileName)) || fileExists(filepath.Join(root, legacyDataName)) {
		return Open(root)
	}
	return OpenFlatFileStore(root)
}
