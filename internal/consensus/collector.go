package consensus

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/score"
	"github.com/equiflux/node/internal/types"
)

// scoreTolerance bounds the difference between an announced score and the
// locally recomputed one. The recomputed score always wins; the announced
// value is only cross-checked.
const scoreTolerance = 1e-9

// collectorState tracks the per-round state machine:
// Idle -> Collecting -> Closed
type collectorState int

const (
	collectorIdle collectorState = iota
	collectorCollecting
	collectorClosed
)

// Collector gathers VRF announcements for one (height, round) at a time.
// Network ingress enqueues via Submit; the round driver owns Collect.
type Collector struct {
	calc     *score.Calculator
	vrf      crypto.VRFProvider
	verifier crypto.Verifier
	registry *Registry
	topX     int

	mu          sync.Mutex
	state       collectorState
	seed        []byte
	round       uint64
	scoreTimeMs uint64
	admitted    map[string]*types.VRFAnnouncement
	order       []*types.VRFAnnouncement

	subCh   chan *types.VRFAnnouncement
	forceCh chan struct{}
}

// NewCollector creates a VRF announcement collector. queueSize bounds the
// ingress queue; topX is the reward set size used for round results.
func NewCollector(calc *score.Calculator, vrf crypto.VRFProvider, verifier crypto.Verifier, registry *Registry, topX, queueSize int) *Collector {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Collector{
		calc:     calc,
		vrf:      vrf,
		verifier: verifier,
		registry: registry,
		topX:     topX,
		state:    collectorIdle,
		subCh:    make(chan *types.VRFAnnouncement, queueSize),
		forceCh:  make(chan struct{}, 1),
	}
}

// Submit enqueues a received announcement for admission. Non-blocking;
// returns ErrQueueFull when the bounded queue is saturated and
// ErrCollectorClosed when no round is collecting.
func (c *Collector) Submit(a *types.VRFAnnouncement) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != collectorCollecting {
		return ErrCollectorClosed
	}

	select {
	case c.subCh <- a:
		return nil
	default:
		return ErrQueueFull
	}
}

// ForceClose aborts the in-flight round, dropping pending admissions
func (c *Collector) ForceClose() {
	select {
	case c.forceCh <- struct{}{}:
	default:
	}
}

// Collect runs one collection round: it admits announcements for the given
// seed until all expected super nodes replied, the timeout elapsed with at
// least a quorum, or a forced close occurred. scoreTimeMs is the score
// evaluation time (the previous block's timestamp) so every node recomputes
// identical scores. local, when non-nil, is this node's own announcement
// and is admitted before any gossip.
func (c *Collector) Collect(ctx context.Context, seed []byte, round uint64, scoreTimeMs uint64, expected int, timeout time.Duration, local *types.VRFAnnouncement) (*types.RoundResult, error) {
	c.mu.Lock()
	if c.state == collectorCollecting {
		c.mu.Unlock()
		return nil, ErrCollectorBusy
	}
	c.state = collectorCollecting
	c.seed = seed
	c.round = round
	c.scoreTimeMs = scoreTimeMs
	c.admitted = make(map[string]*types.VRFAnnouncement, expected)
	c.order = c.order[:0]
	c.mu.Unlock()

	// Drop anything left over from a previous round
	c.drain()

	if local != nil {
		c.admit(local)
		c.mu.Lock()
		size := len(c.order)
		c.mu.Unlock()
		if size >= expected {
			return c.closeWithResult()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, c.closeWith(ErrRoundAborted)

		case <-c.forceCh:
			return nil, c.closeWith(ErrRoundAborted)

		case <-timer.C:
			c.mu.Lock()
			size := len(c.order)
			c.mu.Unlock()
			if size >= QuorumSize(expected) {
				return c.closeWithResult()
			}
			return nil, c.closeWith(ErrInsufficientQuorum)

		case a := <-c.subCh:
			if a == nil {
				continue
			}
			c.admit(a)
			c.mu.Lock()
			size := len(c.order)
			c.mu.Unlock()
			if size >= expected {
				return c.closeWithResult()
			}
		}
	}
}

// Size returns the number of announcements admitted so far
func (c *Collector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Reset returns a closed collector to Idle for the next round
func (c *Collector) Reset() {
	c.mu.Lock()
	c.state = collectorIdle
	c.mu.Unlock()
	c.drain()
}

// admit applies the admission rules to one announcement. Invalid entries
// are dropped silently; the caller cannot distinguish adversarial input
// from stale gossip.
func (c *Collector) admit(a *types.VRFAnnouncement) bool {
	if a.Round != c.round {
		return false
	}

	node, ok := c.registry.Get(a.PublicKey)
	if !ok {
		return false
	}

	// Announcer signature over the wire content
	if len(a.Signature) != types.SignatureSize ||
		!c.verifier.Verify(a.PublicKey, a.SigningBytes(), a.Signature) {
		return false
	}

	if !c.vrf.Verify(a.PublicKey, c.seed, a.VRFOutput, a.VRFProof) {
		return false
	}

	recomputed := c.calc.Score(a.VRFOutput, node, c.registry.AverageStake(), c.scoreTimeMs)
	if math.Abs(recomputed-a.Score) > scoreTolerance {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// First writer wins per public key
	key := a.PublicKeyHex()
	if _, dup := c.admitted[key]; dup {
		return false
	}

	accepted := &types.VRFAnnouncement{
		Round:     a.Round,
		PublicKey: a.PublicKey,
		VRFOutput: a.VRFOutput,
		VRFProof:  a.VRFProof,
		Score:     recomputed,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
	c.admitted[key] = accepted
	c.order = append(c.order, accepted)
	return true
}

func (c *Collector) closeWith(err error) error {
	c.mu.Lock()
	c.state = collectorClosed
	c.mu.Unlock()
	return err
}

func (c *Collector) closeWithResult() (*types.RoundResult, error) {
	c.mu.Lock()
	valid := make([]*types.VRFAnnouncement, len(c.order))
	copy(valid, c.order)
	c.state = collectorClosed
	c.mu.Unlock()

	sorted := c.calc.Rank(valid)
	return &types.RoundResult{
		Winner:   c.calc.SelectProposer(sorted),
		TopX:     c.calc.SelectTopX(sorted, c.topX),
		AllValid: sorted,
	}, nil
}

func (c *Collector) drain() {
	for {
		select {
		case <-c.subCh:
		case <-c.forceCh:
		default:
			return
		}
	}
}
