package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/types"
)

// trySubmit retries until the announcement is enqueued, bounded so a round
// that closed early cannot wedge the submitter
func trySubmit(c *Collector, a *types.VRFAnnouncement) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Submit(a) == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCollectThreeNodeQuorum(t *testing.T) {
	cfg := testConfig(3)
	nodes := makeTestNodes(t, 3)
	registry := makeRegistry(nodes)
	calc := testCalculator(cfg)
	vrf := crypto.NewVRF()
	verifier := crypto.NewEd25519Verifier()

	collector := NewCollector(calc, vrf, verifier, registry, 3, 16)

	prevHash := make([]byte, 32)
	seed := ComputeSeed(prevHash, 0, 1)

	announcements := make([]*types.VRFAnnouncement, 3)
	for i, tn := range nodes {
		announcements[i] = signedAnnouncement(t, tn, calc, registry, seed, 0, 0)
	}

	go func() {
		for _, a := range announcements[1:] {
			trySubmit(collector, a)
		}
	}()

	result, err := collector.Collect(context.Background(), seed, 0, 0, 3, time.Second, announcements[0])
	require.NoError(t, err)
	require.Len(t, result.AllValid, 3)
	require.Len(t, result.TopX, 3)

	// Winner carries the highest score; ordering is strict
	assert.Equal(t, result.AllValid[0], result.Winner)
	assert.GreaterOrEqual(t, result.AllValid[0].Score, result.AllValid[1].Score)
	assert.GreaterOrEqual(t, result.AllValid[1].Score, result.AllValid[2].Score)

	// Top-X mirrors the sorted set when X equals N
	for i := range result.TopX {
		assert.Equal(t, result.AllValid[i].PublicKey, result.TopX[i].PublicKey)
	}
}

func TestCollectInsufficientQuorum(t *testing.T) {
	cfg := testConfig(50)
	nodes := makeTestNodes(t, 50)
	registry := makeRegistry(nodes)
	calc := testCalculator(cfg)

	collector := NewCollector(calc, crypto.NewVRF(), crypto.NewEd25519Verifier(), registry, cfg.RewardedTopX, 64)

	prevHash := make([]byte, 32)
	seed := ComputeSeed(prevHash, 0, 1)

	// Only 30 of 50 announce; the threshold is ceil(2*50/3) = 34
	announcements := make([]*types.VRFAnnouncement, 30)
	for i, tn := range nodes[:30] {
		announcements[i] = signedAnnouncement(t, tn, calc, registry, seed, 0, 0)
	}
	go func() {
		for _, a := range announcements {
			trySubmit(collector, a)
		}
	}()

	_, err := collector.Collect(context.Background(), seed, 0, 0, 50, 300*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrInsufficientQuorum)
	assert.Equal(t, 30, collector.Size())
}

func TestCollectTimeoutWithQuorumCloses(t *testing.T) {
	cfg := testConfig(3)
	nodes := makeTestNodes(t, 3)
	registry := makeRegistry(nodes)
	calc := testCalculator(cfg)

	collector := NewCollector(calc, crypto.NewVRF(), crypto.NewEd25519Verifier(), registry, 3, 16)
	seed := ComputeSeed(make([]byte, 32), 0, 1)

	// Two of three reach the collector: quorum is 2, so the timeout closes
	// the round with a result
	second := signedAnnouncement(t, nodes[1], calc, registry, seed, 0, 0)
	go trySubmit(collector, second)

	local := signedAnnouncement(t, nodes[0], calc, registry, seed, 0, 0)
	result, err := collector.Collect(context.Background(), seed, 0, 0, 3, 200*time.Millisecond, local)
	require.NoError(t, err)
	assert.Len(t, result.AllValid, 2)
}

func TestCollectRejectsInvalidSubmissions(t *testing.T) {
	cfg := testConfig(3)
	nodes := makeTestNodes(t, 3)
	registry := makeRegistry(nodes)
	calc := testCalculator(cfg)

	collector := NewCollector(calc, crypto.NewVRF(), crypto.NewEd25519Verifier(), registry, 3, 16)
	seed := ComputeSeed(make([]byte, 32), 0, 1)

	valid := signedAnnouncement(t, nodes[0], calc, registry, seed, 0, 0)

	// Wrong round
	wrongRound := signedAnnouncement(t, nodes[1], calc, registry, seed, 5, 0)

	// Outsider not in the registry
	outsider := makeTestNodes(t, 5)[4]
	outsiderAnn := signedAnnouncement(t, outsider, calc, registry, seed, 0, 0)

	// Tampered score
	badScore := signedAnnouncement(t, nodes[1], calc, registry, seed, 0, 0)
	badScore.Score += 0.1

	// Duplicate of the local announcement
	duplicate := signedAnnouncement(t, nodes[0], calc, registry, seed, 0, 0)

	go func() {
		for _, a := range []*types.VRFAnnouncement{wrongRound, outsiderAnn, badScore, duplicate} {
			trySubmit(collector, a)
		}
	}()

	result, err := collector.Collect(context.Background(), seed, 0, 0, 3, 250*time.Millisecond, valid)
	// Only the local announcement survives admission; quorum of 2 unmet
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientQuorum)
	assert.Equal(t, 1, collector.Size())
	assert.Nil(t, result)
}

func TestCollectForceClose(t *testing.T) {
	cfg := testConfig(3)
	nodes := makeTestNodes(t, 3)
	registry := makeRegistry(nodes)
	calc := testCalculator(cfg)

	collector := NewCollector(calc, crypto.NewVRF(), crypto.NewEd25519Verifier(), registry, 3, 16)
	seed := ComputeSeed(make([]byte, 32), 0, 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		collector.ForceClose()
	}()

	_, err := collector.Collect(context.Background(), seed, 0, 0, 3, 5*time.Second, nil)
	assert.ErrorIs(t, err, ErrRoundAborted)
}

func TestSubmitWhenIdle(t *testing.T) {
	cfg := testConfig(3)
	nodes := makeTestNodes(t, 3)
	registry := makeRegistry(nodes)
	calc := testCalculator(cfg)

	collector := NewCollector(calc, crypto.NewVRF(), crypto.NewEd25519Verifier(), registry, 3, 16)
	seed := ComputeSeed(make([]byte, 32), 0, 1)

	a := signedAnnouncement(t, nodes[0], calc, registry, seed, 0, 0)
	assert.ErrorIs(t, collector.Submit(a), ErrCollectorClosed)
}
