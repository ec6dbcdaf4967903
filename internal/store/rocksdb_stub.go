//go:build !rocksdb
// +build !rocksdb

package store

import (
	"context"

	"github.com/equiflux/node/internal/consensus"
	"github.com/equiflux/node/internal/types"
)

// RocksDBStore stub implementation when RocksDB is disabled
type RocksDBStore struct{}

func NewRocksDBStore(config *Config) (*RocksDBStore, error) {
	return nil, ErrRocksDBDisabled
}

func (s *RocksDBStore) Put(ctx context.Context, block *types.Block) error {
	return ErrRocksDBDisabled
}

func (s *RocksDBStore) GetByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	return nil, ErrRocksDBDisabled
}

func (s *RocksDBStore) GetByHash(ctx context.Context, hash []byte) (*types.Block, error) {
	return nil, ErrRocksDBDisabled
}

func (s *RocksDBStore) CurrentHeight(ctx context.Context) (uint64, error) {
	return 0, ErrRocksDBDisabled
}

func (s *RocksDBStore) HasGenesis(ctx context.Context) (bool, error) {
	return false, ErrRocksDBDisabled
}

func (s *RocksDBStore) Apply(ctx context.Context, delta *types.StateDelta) error {
	return ErrRocksDBDisabled
}

func (s *RocksDBStore) SnapshotAt(ctx context.Context, height uint64) (consensus.StateSnapshot, error) {
	return nil, ErrRocksDBDisabled
}

func (s *RocksDBStore) Current(ctx context.Context) (consensus.StateSnapshot, error) {
	return nil, ErrRocksDBDisabled
}

func (s *RocksDBStore) Close() error {
	return nil
}
