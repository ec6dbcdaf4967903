package store

import "errors"

var (
	// ErrNotFound indicates the requested block or state was not stored
	ErrNotFound = errors.New("not found")

	// ErrClosed indicates the store was already closed
	ErrClosed = errors.New("store closed")

	// ErrNilBlock indicates a nil block was submitted
	ErrNilBlock = errors.New("block cannot be nil")

	// ErrNonContiguous indicates a block put would leave a height gap
	ErrNonContiguous = errors.New("block height not contiguous")

	// ErrEmptyPath indicates a missing database path
	ErrEmptyPath = errors.New("database path cannot be empty")

	// ErrRocksDBDisabled indicates RocksDB support was not compiled in
	ErrRocksDBDisabled = errors.New("RocksDB support not compiled in - use build tag 'rocksdb' to enable")
)
