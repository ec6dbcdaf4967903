package consensus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/equiflux/node/internal/config"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/score"
	"github.com/equiflux/node/internal/types"
)

// testNode bundles a keypair with its super-node standing
type testNode struct {
	keyPair *crypto.Ed25519KeyPair
	signer  *crypto.Ed25519Signer
	node    *score.SuperNode
}

func testConfig(n int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.SuperNodeCount = n
	cfg.CoreNodeCount = n
	cfg.RotateNodeCount = 0
	if cfg.RewardedTopX > n {
		cfg.RewardedTopX = n
	}
	// Keep mining instant and the round timers short for tests
	cfg.PoWBaseDifficulty = cfg.PoWBaseDifficulty.Lsh(cfg.PoWBaseDifficulty, 18) // 2^250
	cfg.BlockTimeMs = 1000
	cfg.VRFCollectionTimeoutMs = 200
	cfg.BlockProductionTimeoutMs = 500
	return cfg
}

func makeTestNodes(t *testing.T, n int) []*testNode {
	t.Helper()

	nodes := make([]*testNode, n)
	for i := 0; i < n; i++ {
		seed := make([]byte, 32)
		seed[0] = byte(i + 1)
		keyPair, err := crypto.NewEd25519KeyPairFromSeed(seed)
		require.NoError(t, err)

		nodes[i] = &testNode{
			keyPair: keyPair,
			signer:  crypto.NewEd25519Signer(keyPair),
			node: &score.SuperNode{
				PublicKey:     []byte(keyPair.PublicKey),
				Stake:         100_000,
				Core:          true,
				ElectedAtMs:   0,
				UptimePercent: 100,
			},
		}
	}
	return nodes
}

func makeRegistry(nodes []*testNode) *Registry {
	profiles := make([]*score.SuperNode, len(nodes))
	for i, n := range nodes {
		profiles[i] = n.node
	}
	return NewRegistry(profiles)
}

func testCalculator(cfg *config.Config) *score.Calculator {
	return score.NewCalculator(&score.Config{DecayHalfLifeDays: cfg.DecayHalfLifeDays}, score.NewExponentialDecayFunction())
}

// signedAnnouncement builds one node's fully valid announcement for a seed
func signedAnnouncement(t *testing.T, tn *testNode, calc *score.Calculator, registry *Registry, seed []byte, round uint64, scoreTimeMs uint64) *types.VRFAnnouncement {
	t.Helper()

	vrf := crypto.NewVRF()
	output, proof, err := vrf.Evaluate(tn.keyPair.PrivateKey, seed)
	require.NoError(t, err)

	a := &types.VRFAnnouncement{
		Round:     round,
		PublicKey: []byte(tn.keyPair.PublicKey),
		VRFOutput: output,
		VRFProof:  proof,
		Score:     calc.Score(output, tn.node, registry.AverageStake(), scoreTimeMs),
	}
	signature, err := tn.signer.Sign(a.SigningBytes())
	require.NoError(t, err)
	a.Signature = signature
	return a
}

// buildBlock assembles a fully valid block at prev.Height+1 signed by the
// round winner, with announcements from every node
func buildBlock(t *testing.T, cfg *config.Config, nodes []*testNode, registry *Registry, store BlockStore, prev *types.Block, round uint32, txs []*types.Transaction) *types.Block {
	t.Helper()

	calc := testCalculator(cfg)
	epoch := EpochForTimestamp(prev.Timestamp, cfg.EpochLengthMs)
	seed := ComputeSeed(prev.Hash(), uint64(round), epoch)

	announcements := make([]*types.VRFAnnouncement, len(nodes))
	for i, tn := range nodes {
		announcements[i] = signedAnnouncement(t, tn, calc, registry, seed, uint64(round), prev.Timestamp)
	}
	sorted := calc.Rank(announcements)

	winner := sorted[0]
	var winnerNode *testNode
	for _, tn := range nodes {
		if tn.signer.PublicKeyHex() == winner.PublicKeyHex() {
			winnerNode = tn
		}
	}
	require.NotNil(t, winnerNode)

	x := cfg.RewardedTopX
	if x > len(sorted) {
		x = len(sorted)
	}
	rewarded := make([][]byte, x)
	for i := 0; i < x; i++ {
		rewarded[i] = sorted[i].PublicKey
	}

	block := &types.Block{
		Height:              prev.Height + 1,
		Round:               round,
		Timestamp:           uint64(time.Now().UnixMilli()),
		PreviousHash:        prev.Hash(),
		Proposer:            winner.PublicKey,
		VRFOutput:           winner.VRFOutput,
		VRFProof:            winner.VRFProof,
		AllVRFAnnouncements: sorted,
		RewardedNodes:       rewarded,
		Transactions:        txs,
		MerkleRoot:          types.MerkleRoot(txs),
		Signatures:          make(map[string][]byte),
	}

	difficulty := NewDifficultyCalculator(cfg.PoWBaseDifficulty, cfg.PoWTargetTimeMs(), cfg.PoWRetargetWindow)
	target, err := difficulty.RequiredTarget(context.Background(), store, prev)
	require.NoError(t, err)
	block.DifficultyTarget = target

	mined, err := NewPoWEngine().Mine(context.Background(), block, target, 5*time.Second)
	require.NoError(t, err)
	block.Nonce = mined.Nonce

	signature, err := winnerNode.signer.Sign(block.Hash())
	require.NoError(t, err)
	block.Signatures[winner.PublicKeyHex()] = signature

	return block
}

// In-package fakes for the external collaborators. The real store package
// sits above this one, so tests carry their own minimal implementations.

type memBlockStore struct {
	mu     sync.RWMutex
	blocks []*types.Block
	byHash map[string]*types.Block
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{byHash: make(map[string]*types.Block)}
}

func (s *memBlockStore) Put(ctx context.Context, block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block.Height != uint64(len(s.blocks)) {
		return fmt.Errorf("non-contiguous height %d", block.Height)
	}
	s.blocks = append(s.blocks, block)
	s.byHash[block.HashHex()] = block
	return nil
}

func (s *memBlockStore) GetByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if height >= uint64(len(s.blocks)) {
		return nil, fmt.Errorf("block %d not found", height)
	}
	return s.blocks[height], nil
}

func (s *memBlockStore) GetByHash(ctx context.Context, hash []byte) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.byHash[crypto.EncodeHex(hash)]
	if !ok {
		return nil, fmt.Errorf("block not found")
	}
	return block, nil
}

func (s *memBlockStore) CurrentHeight(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return 0, fmt.Errorf("empty store")
	}
	return uint64(len(s.blocks) - 1), nil
}

func (s *memBlockStore) HasGenesis(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks) > 0, nil
}

type memSnapshot struct {
	height   uint64
	accounts map[string]types.Account
}

func (s *memSnapshot) Height() uint64 { return s.height }

func (s *memSnapshot) Account(publicKeyHex string) (types.Account, bool) {
	account, ok := s.accounts[publicKeyHex]
	return account, ok
}

type memStateStore struct {
	mu       sync.RWMutex
	accounts map[string]types.Account
	height   uint64
}

func newMemStateStore() *memStateStore {
	return &memStateStore{accounts: make(map[string]types.Account)}
}

func (s *memStateStore) fund(pkHex string, account types.Account) {
	s.mu.Lock()
	s.accounts[pkHex] = account
	s.mu.Unlock()
}

func (s *memStateStore) SnapshotAt(ctx context.Context, height uint64) (StateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]types.Account, len(s.accounts))
	for key, account := range s.accounts {
		copied[key] = account
	}
	return &memSnapshot{height: height, accounts: copied}, nil
}

func (s *memStateStore) Apply(ctx context.Context, delta *types.StateDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, account := range delta.Accounts {
		s.accounts[key] = account
	}
	s.height = delta.Height
	return nil
}

func (s *memStateStore) Current(ctx context.Context) (StateSnapshot, error) {
	return s.SnapshotAt(ctx, s.height)
}

// fakeNetwork is a loopback transport: broadcasts invoke nothing, handlers
// are invocable from tests
type fakeNetwork struct {
	mu           sync.Mutex
	annHandler   func(*types.VRFAnnouncement)
	blockHandler func(*types.Block)
	sentBlocks   []*types.Block
}

func (n *fakeNetwork) BroadcastAnnouncement(ctx context.Context, a *types.VRFAnnouncement) error {
	return nil
}

func (n *fakeNetwork) BroadcastBlock(ctx context.Context, block *types.Block) error {
	n.mu.Lock()
	n.sentBlocks = append(n.sentBlocks, block)
	n.mu.Unlock()
	return nil
}

func (n *fakeNetwork) OnAnnouncement(handler func(*types.VRFAnnouncement)) {
	n.mu.Lock()
	n.annHandler = handler
	n.mu.Unlock()
}

func (n *fakeNetwork) OnBlock(handler func(*types.Block)) {
	n.mu.Lock()
	n.blockHandler = handler
	n.mu.Unlock()
}

type fakeMempool struct {
	mu  sync.Mutex
	txs []*types.Transaction
}

func (m *fakeMempool) Add(tx *types.Transaction) error {
	m.mu.Lock()
	m.txs = append(m.txs, tx)
	m.mu.Unlock()
	return nil
}

func (m *fakeMempool) Snapshot() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Transaction, len(m.txs))
	copy(out, m.txs)
	return out
}

func (m *fakeMempool) Remove(hashes [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]struct{}, len(hashes))
	for _, hash := range hashes {
		drop[crypto.EncodeHex(hash)] = struct{}{}
	}
	kept := m.txs[:0]
	for _, tx := range m.txs {
		if _, gone := drop[crypto.EncodeHex(tx.Hash())]; !gone {
			kept = append(kept, tx)
		}
	}
	m.txs = kept
}

func (m *fakeMempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}
