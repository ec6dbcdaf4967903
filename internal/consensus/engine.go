package consensus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/equiflux/node/internal/config"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/score"
	"github.com/equiflux/node/internal/types"
)

// Engine drives the per-height agreement cycle. All consensus state
// transitions serialize through a single round-driver goroutine; network
// ingress only feeds the bounded queues, and mining runs as a cancellable
// task the driver awaits.
type Engine struct {
	config   *config.Config
	logger   *Logger
	keyPair  *crypto.Ed25519KeyPair
	signer   *crypto.Ed25519Signer
	vrf      crypto.VRFProvider
	verifier crypto.Verifier

	calc       *score.Calculator
	registry   *Registry
	collector  *Collector
	difficulty *DifficultyCalculator
	pow        *PoWEngine
	proposer   *Proposer
	validator  *Validator

	blockStore BlockStore
	stateStore StateStore
	network    Network
	mempool    Mempool

	mu      sync.RWMutex
	running bool
	state   *types.ChainState

	blockCh chan *types.Block
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine wires the consensus core around external collaborators. The
// pure components (crypto, scoring, collector, difficulty, PoW, proposer,
// validator) are constructed here; stores, network, and mempool are
// injected.
func NewEngine(
	cfg *config.Config,
	keyPair *crypto.Ed25519KeyPair,
	registry *Registry,
	blockStore BlockStore,
	stateStore StateStore,
	network Network,
	mempool Mempool,
) *Engine {
	signer := crypto.NewEd25519Signer(keyPair)
	verifier := crypto.NewEd25519Verifier()
	vrf := crypto.NewVRF()
	calc := score.NewCalculator(&score.Config{DecayHalfLifeDays: cfg.DecayHalfLifeDays}, score.NewExponentialDecayFunction())
	pow := NewPoWEngine()
	difficulty := NewDifficultyCalculator(cfg.PoWBaseDifficulty, cfg.PoWTargetTimeMs(), cfg.PoWRetargetWindow)
	collector := NewCollector(calc, vrf, verifier, registry, cfg.RewardedTopX, cfg.AnnouncementQueueSize)
	proposer := NewProposer(cfg, signer, verifier, pow, difficulty, blockStore, mempool)
	validator := NewValidator(cfg, calc, vrf, verifier, pow, difficulty, registry, blockStore, stateStore)

	return &Engine{
		config:     cfg,
		logger:     NewLogger("Consensus", LogLevelInfo),
		keyPair:    keyPair,
		signer:     signer,
		vrf:        vrf,
		verifier:   verifier,
		calc:       calc,
		registry:   registry,
		collector:  collector,
		difficulty: difficulty,
		pow:        pow,
		proposer:   proposer,
		validator:  validator,
		blockStore: blockStore,
		stateStore: stateStore,
		network:    network,
		mempool:    mempool,
		blockCh:    make(chan *types.Block, cfg.BlockQueueSize),
		stopCh:     make(chan struct{}),
	}
}

// Validator exposes the block validation pipeline for catch-up sync and the
// query surface
func (e *Engine) Validator() *Validator {
	return e.validator
}

// ChainState returns a copy of the engine's current chain state
func (e *Engine) ChainState() *types.ChainState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Start bootstraps genesis if needed, registers network ingress, and
// launches the round driver
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrEngineRunning
	}
	e.running = true
	e.mu.Unlock()

	if err := e.ensureGenesis(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	if err := e.loadChainState(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	// Ingress: never mutate consensus state here, only enqueue
	e.network.OnAnnouncement(func(a *types.VRFAnnouncement) {
		if err := e.collector.Submit(a); err != nil && !errors.Is(err, ErrCollectorClosed) {
			e.logger.Debug("dropped announcement", map[string]interface{}{"error": err})
		}
	})
	e.network.OnBlock(func(b *types.Block) {
		select {
		case e.blockCh <- b:
		default:
			e.logger.Debug("dropped block, ingress queue full", map[string]interface{}{"height": b.Height})
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.runRoundDriver(runCtx)

	e.logger.Info("consensus engine started", map[string]interface{}{
		"node":        e.signer.PublicKeyHex(),
		"super_nodes": e.registry.Count(),
	})
	return nil
}

// Stop halts the round driver and waits for it to exit
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()
	e.collector.ForceClose()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureGenesis writes the deterministic genesis block on first boot
func (e *Engine) ensureGenesis(ctx context.Context) error {
	has, err := e.blockStore.HasGenesis(ctx)
	if err != nil {
		return fmt.Errorf("genesis check failed: %w", err)
	}
	if has {
		return nil
	}

	genesis := GenesisBlock(e.config)
	if err := e.blockStore.Put(ctx, genesis); err != nil {
		return fmt.Errorf("failed to store genesis: %w", err)
	}
	if err := e.stateStore.Apply(ctx, &types.StateDelta{Height: 0, Accounts: map[string]types.Account{}}); err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}

	e.logger.Info("genesis block stored", map[string]interface{}{"hash": genesis.HashHex()})
	return nil
}

func (e *Engine) loadChainState(ctx context.Context) error {
	height, err := e.blockStore.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain height: %w", err)
	}
	tip, err := e.blockStore.GetByHeight(ctx, height)
	if err != nil {
		return fmt.Errorf("failed to load tip block: %w", err)
	}

	e.mu.Lock()
	e.state = &types.ChainState{
		CurrentHeight:     height,
		CurrentRound:      0,
		SuperNodeCount:    e.registry.Count(),
		CurrentDifficulty: tip.DifficultyTarget,
		LastUpdateMs:      uint64(time.Now().UnixMilli()),
	}
	e.mu.Unlock()
	return nil
}

// runRoundDriver owns the state machine: it is the only writer of the chain
// state, the active round, and the collector
func (e *Engine) runRoundDriver(ctx context.Context) {
	defer e.wg.Done()

	round := uint32(0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		prev, err := e.tipBlock(ctx)
		if err != nil {
			e.logger.Error("cannot load tip, retrying", map[string]interface{}{"error": err})
			if !e.sleep(ctx, time.Second) {
				return
			}
			continue
		}

		block, err := e.runRound(ctx, prev, round)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrCryptoFailure) {
				// Own-key failure: halt rather than sign garbage
				e.logger.Error("fatal crypto failure, halting round driver", map[string]interface{}{"error": err})
				return
			}
			round++
			e.setRound(round)
			e.logger.Warn("round failed, retrying height", map[string]interface{}{
				"height": prev.Height + 1,
				"round":  round,
				"error":  err,
			})
			continue
		}

		if err := e.commit(ctx, block); err != nil {
			// Storage failure: abort the commit, retry the height
			e.logger.Error("commit failed", map[string]interface{}{"height": block.Height, "error": err})
			continue
		}

		round = 0
		e.setRound(0)
	}
}

// runRound executes one (height, round) attempt and returns the block to
// commit
func (e *Engine) runRound(ctx context.Context, prev *types.Block, round uint32) (*types.Block, error) {
	epoch := EpochForTimestamp(prev.Timestamp, e.config.EpochLengthMs)
	seed := ComputeSeed(prev.Hash(), uint64(round), epoch)

	local, err := e.ownAnnouncement(ctx, seed, round, prev)
	if err != nil {
		return nil, err
	}

	defer e.collector.Reset()
	result, err := e.collector.Collect(
		ctx,
		seed,
		uint64(round),
		prev.Timestamp,
		e.config.SuperNodeCount,
		time.Duration(e.config.VRFCollectionTimeoutMs)*time.Millisecond,
		local,
	)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("round closed", map[string]interface{}{
		"height": prev.Height + 1,
		"round":  round,
		"valid":  len(result.AllValid),
		"winner": result.Winner.PublicKeyHex(),
	})

	if local != nil && bytes.Equal(result.Winner.PublicKey, local.PublicKey) {
		return e.produceBlock(ctx, prev, result, round)
	}
	return e.awaitBlock(ctx, prev)
}

// ownAnnouncement evaluates, scores, signs, and gossips this node's VRF
// announcement. Nil when the node is not in the super-node set (observer).
func (e *Engine) ownAnnouncement(ctx context.Context, seed []byte, round uint32, prev *types.Block) (*types.VRFAnnouncement, error) {
	node, ok := e.registry.Get(e.signer.PublicKey())
	if !ok {
		return nil, nil
	}

	output, proof, err := e.vrf.Evaluate(e.keyPair.PrivateKey, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: own VRF evaluation: %v", ErrCryptoFailure, err)
	}

	a := &types.VRFAnnouncement{
		Round:     uint64(round),
		PublicKey: []byte(e.keyPair.PublicKey),
		VRFOutput: output,
		VRFProof:  proof,
		Score:     e.calc.Score(output, node, e.registry.AverageStake(), prev.Timestamp),
	}

	signature, err := e.signer.Sign(a.SigningBytes())
	if err != nil {
		return nil, fmt.Errorf("%w: signing own announcement: %v", ErrCryptoFailure, err)
	}
	a.Signature = signature

	if err := e.network.BroadcastAnnouncement(ctx, a); err != nil {
		e.logger.Warn("announcement broadcast failed", map[string]interface{}{"error": err})
	}
	return a, nil
}

// produceBlock runs the proposer as a cancellable task and awaits its
// single result
func (e *Engine) produceBlock(ctx context.Context, prev *types.Block, result *types.RoundResult, round uint32) (*types.Block, error) {
	mineCtx, cancel := context.WithTimeout(ctx, time.Duration(e.config.BlockProductionTimeoutMs)*time.Millisecond)
	defer cancel()

	type proposal struct {
		block *types.Block
		err   error
	}
	resultCh := make(chan proposal, 1)
	go func() {
		block, err := e.proposer.Propose(mineCtx, prev, result, round)
		resultCh <- proposal{block: block, err: err}
	}()

	var p proposal
	select {
	case p = <-resultCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}

	if ve := e.validator.Validate(ctx, p.block, prev, uint64(time.Now().UnixMilli()), ModeLive); ve != nil {
		return nil, fmt.Errorf("own block failed validation: %w", ve)
	}

	if err := e.network.BroadcastBlock(ctx, p.block); err != nil {
		e.logger.Warn("block broadcast failed", map[string]interface{}{"error": err})
	}
	return p.block, nil
}

// awaitBlock waits for the round winner's block, validating candidates as
// they arrive
func (e *Engine) awaitBlock(ctx context.Context, prev *types.Block) (*types.Block, error) {
	timer := time.NewTimer(time.Duration(e.config.BlockProductionTimeoutMs) * time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrConsensusTimeout
		case candidate := <-e.blockCh:
			ve := e.validator.Validate(ctx, candidate, prev, uint64(time.Now().UnixMilli()), ModeLive)
			if ve == nil {
				return candidate, nil
			}
			e.logger.Warn("rejected candidate block", map[string]interface{}{
				"height": candidate.Height,
				"kind":   ve.Kind,
				"detail": ve.Detail,
			})
		}
	}
}

// commit makes a validated block canonical: block first, then the state
// delta, then the chain state. Strictly monotonic, height + 1 only.
func (e *Engine) commit(ctx context.Context, block *types.Block) error {
	delta, err := e.computeDelta(ctx, block)
	if err != nil {
		return err
	}

	if err := e.blockStore.Put(ctx, block); err != nil {
		return fmt.Errorf("block store put failed: %w", err)
	}
	if err := e.stateStore.Apply(ctx, delta); err != nil {
		return fmt.Errorf("state apply failed: %w", err)
	}

	e.mu.Lock()
	e.state.CurrentHeight = block.Height
	e.state.CurrentRound = 0
	e.state.TotalSupply += delta.SupplyChange
	e.state.CurrentDifficulty = block.DifficultyTarget
	e.state.LastUpdateMs = uint64(time.Now().UnixMilli())
	e.mu.Unlock()

	hashes := make([][]byte, len(block.Transactions))
	for i, tx := range block.Transactions {
		hashes[i] = tx.Hash()
	}
	e.mempool.Remove(hashes)

	e.logger.Info("block committed", map[string]interface{}{
		"height": block.Height,
		"round":  block.Round,
		"txs":    len(block.Transactions),
		"hash":   block.HashHex(),
	})
	return nil
}

// computeDelta derives the account mutations a block applies: transfers,
// fees to the proposer, and fixed rewards minted to the top-X set
func (e *Engine) computeDelta(ctx context.Context, block *types.Block) (*types.StateDelta, error) {
	snapshot, err := e.stateStore.SnapshotAt(ctx, block.Height-1)
	if err != nil {
		return nil, fmt.Errorf("state snapshot unavailable: %w", err)
	}

	accounts := make(map[string]types.Account)
	load := func(pkHex string) types.Account {
		if account, ok := accounts[pkHex]; ok {
			return account
		}
		account, _ := snapshot.Account(pkHex)
		return account
	}

	var fees uint64
	for _, tx := range block.Transactions {
		sender := load(tx.SenderHex())
		sender.Balance -= tx.Amount + tx.Fee
		sender.Nonce = tx.Nonce
		accounts[tx.SenderHex()] = sender

		recipientKey := crypto.EncodeHex(tx.Recipient)
		recipient := load(recipientKey)
		recipient.Balance += tx.Amount
		accounts[recipientKey] = recipient

		fees += tx.Fee
	}

	if len(block.Proposer) > 0 && fees > 0 {
		proposerKey := crypto.EncodeHex(block.Proposer)
		proposer := load(proposerKey)
		proposer.Balance += fees
		accounts[proposerKey] = proposer
	}

	var minted uint64
	for _, pk := range block.RewardedNodes {
		rewardKey := crypto.EncodeHex(pk)
		rewarded := load(rewardKey)
		rewarded.Balance += e.config.BlockReward
		accounts[rewardKey] = rewarded
		minted += e.config.BlockReward
	}

	return &types.StateDelta{
		Height:       block.Height,
		Accounts:     accounts,
		SupplyChange: minted,
	}, nil
}

func (e *Engine) tipBlock(ctx context.Context) (*types.Block, error) {
	height, err := e.blockStore.CurrentHeight(ctx)
	if err != nil {
		return nil, err
	}
	return e.blockStore.GetByHeight(ctx, height)
}

func (e *Engine) setRound(round uint32) {
	e.mu.Lock()
	e.state.CurrentRound = round
	e.mu.Unlock()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
