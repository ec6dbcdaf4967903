//go:build rocksdb
// +build rocksdb

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/linxGnu/grocksdb"

	"github.com/equiflux/node/internal/consensus"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/types"
)

// Column family names
const (
	CFDefault = "default"
	CFBlocks  = "blocks"
	CFIndex   = "index"
	CFState   = "state"
)

// Key prefixes for different data types
const (
	PrefixBlock = "blk:"
	PrefixHash  = "idx:hash:"
	PrefixState = "state:"
	KeyTip      = "meta:tip"
)

// RocksDBStore implements the block and state stores on RocksDB
type RocksDBStore struct {
	config *Config
	db     *grocksdb.DB
	opts   *grocksdb.Options

	cfs map[string]*grocksdb.ColumnFamilyHandle

	readOpts  *grocksdb.ReadOptions
	writeOpts *grocksdb.WriteOptions

	mu     sync.RWMutex
	closed bool
}

// NewRocksDBStore creates a new RocksDB-backed store
func NewRocksDBStore(config *Config) (*RocksDBStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store := &RocksDBStore{
		config: config,
		cfs:    make(map[string]*grocksdb.ColumnFamilyHandle),
	}

	if err := store.open(); err != nil {
		return nil, err
	}

	return store, nil
}

// open initializes the RocksDB database
func (s *RocksDBStore) open() error {
	s.opts = grocksdb.NewDefaultOptions()
	s.opts.SetCreateIfMissing(true)
	s.opts.SetCreateIfMissingColumnFamilies(true)
	s.opts.SetMaxOpenFiles(s.config.RocksDB.MaxOpenFiles)
	s.opts.SetWriteBufferSize(uint64(s.config.RocksDB.WriteBufferSize) * 1024 * 1024)
	s.opts.SetMaxWriteBufferNumber(s.config.RocksDB.MaxWriteBufferNumber)

	switch s.config.RocksDB.CompressionType {
	case "snappy":
		s.opts.SetCompression(grocksdb.SnappyCompression)
	case "lz4":
		s.opts.SetCompression(grocksdb.LZ4Compression)
	case "zstd":
		s.opts.SetCompression(grocksdb.ZSTDCompression)
	default:
		s.opts.SetCompression(grocksdb.NoCompression)
	}

	cfNames := []string{CFDefault, CFBlocks, CFIndex, CFState}
	cfOpts := make([]*grocksdb.Options, len(cfNames))
	for i := range cfNames {
		cfOpts[i] = s.opts
	}

	db, handles, err := grocksdb.OpenDbColumnFamilies(s.opts, s.config.RocksDB.Path, cfNames, cfOpts)
	if err != nil {
		return fmt.Errorf("failed to open RocksDB at %s: %w", s.config.RocksDB.Path, err)
	}

	s.db = db
	for i, name := range cfNames {
		s.cfs[name] = handles[i]
	}

	s.readOpts = grocksdb.NewDefaultReadOptions()
	s.writeOpts = grocksdb.NewDefaultWriteOptions()
	s.writeOpts.SetSync(s.config.RocksDB.SyncWrites)

	return nil
}

// Put persists a block and its hash index entry
func (s *RocksDBStore) Put(ctx context.Context, block *types.Block) error {
	if block == nil {
		return ErrNilBlock
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	batch := grocksdb.NewWriteBatch()
	defer batch.Destroy()

	encoded := block.Encode()
	batch.PutCF(s.cfs[CFBlocks], blockKey(block.Height), encoded)
	batch.PutCF(s.cfs[CFIndex], hashKey(block.Hash()), heightValue(block.Height))
	batch.PutCF(s.cfs[CFDefault], []byte(KeyTip), heightValue(block.Height))

	if err := s.db.Write(s.writeOpts, batch); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Height, err)
	}
	return nil
}

// GetByHeight retrieves a block by height
func (s *RocksDBStore) GetByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	value, err := s.db.GetCF(s.readOpts, s.cfs[CFBlocks], blockKey(height))
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", height, err)
	}
	defer value.Free()

	if !value.Exists() {
		return nil, ErrNotFound
	}
	return types.DecodeBlock(value.Data())
}

// GetByHash retrieves a block by its hash via the index column family
func (s *RocksDBStore) GetByHash(ctx context.Context, hash []byte) (*types.Block, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}

	value, err := s.db.GetCF(s.readOpts, s.cfs[CFIndex], hashKey(hash))
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("failed to read hash index: %w", err)
	}
	exists := value.Exists()
	var height uint64
	if exists {
		height = binary.BigEndian.Uint64(value.Data())
	}
	value.Free()
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	return s.GetByHeight(ctx, height)
}

// CurrentHeight returns the height of the latest stored block
func (s *RocksDBStore) CurrentHeight(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	value, err := s.db.GetCF(s.readOpts, s.cfs[CFDefault], []byte(KeyTip))
	if err != nil {
		return 0, fmt.Errorf("failed to read tip: %w", err)
	}
	defer value.Free()

	if !value.Exists() {
		return 0, ErrNotFound
	}
	return binary.BigEndian.Uint64(value.Data()), nil
}

// HasGenesis reports whether a genesis block is stored
func (s *RocksDBStore) HasGenesis(ctx context.Context) (bool, error) {
	_, err := s.GetByHeight(ctx, 0)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Apply writes the full account snapshot for the delta's height
func (s *RocksDBStore) Apply(ctx context.Context, delta *types.StateDelta) error {
	base := make(map[string]types.Account)
	if delta.Height > 0 {
		snapshot, err := s.SnapshotAt(ctx, delta.Height-1)
		if err != nil && err != ErrNotFound {
			return err
		}
		if rocksSnap, ok := snapshot.(*rocksSnapshot); ok {
			base = rocksSnap.accounts
		}
	} else {
		// Merge over any seeded genesis allocation
		if snapshot, err := s.SnapshotAt(ctx, 0); err == nil {
			if rocksSnap, ok := snapshot.(*rocksSnapshot); ok {
				base = rocksSnap.accounts
			}
		}
	}

	for key, account := range delta.Accounts {
		base[key] = account
	}

	encoded, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("failed to encode state at %d: %w", delta.Height, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.db.PutCF(s.writeOpts, s.cfs[CFState], stateKey(delta.Height), encoded); err != nil {
		return fmt.Errorf("failed to write state at %d: %w", delta.Height, err)
	}
	return nil
}

// SnapshotAt returns a consistent snapshot at the given height
func (s *RocksDBStore) SnapshotAt(ctx context.Context, height uint64) (consensus.StateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	value, err := s.db.GetCF(s.readOpts, s.cfs[CFState], stateKey(height))
	if err != nil {
		return nil, fmt.Errorf("failed to read state at %d: %w", height, err)
	}
	defer value.Free()

	if !value.Exists() {
		return nil, ErrNotFound
	}

	accounts := make(map[string]types.Account)
	if err := json.Unmarshal(value.Data(), &accounts); err != nil {
		return nil, fmt.Errorf("corrupt state at %d: %w", height, err)
	}
	return &rocksSnapshot{height: height, accounts: accounts}, nil
}

// Current returns a snapshot at the latest applied height
func (s *RocksDBStore) Current(ctx context.Context) (consensus.StateSnapshot, error) {
	height, err := s.CurrentHeight(ctx)
	if err != nil {
		return nil, err
	}
	return s.SnapshotAt(ctx, height)
}

// Close cleanly shuts down the store
func (s *RocksDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for _, cf := range s.cfs {
		cf.Destroy()
	}
	s.readOpts.Destroy()
	s.writeOpts.Destroy()
	s.db.Close()
	s.opts.Destroy()
	return nil
}

// rocksSnapshot is a decoded account view at one height
type rocksSnapshot struct {
	height   uint64
	accounts map[string]types.Account
}

func (s *rocksSnapshot) Height() uint64 {
	return s.height
}

func (s *rocksSnapshot) Account(publicKeyHex string) (types.Account, bool) {
	account, ok := s.accounts[publicKeyHex]
	return account, ok
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], height)
	return key
}

func hashKey(hash []byte) []byte {
	return []byte(PrefixHash + crypto.EncodeHex(hash))
}

func stateKey(height uint64) []byte {
	key := make([]byte, len(PrefixState)+8)
	copy(key, PrefixState)
	binary.BigEndian.PutUint64(key[len(PrefixState):], height)
	return key
}

func heightValue(height uint64) []byte {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, height)
	return value
}
