package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equiflux/node/internal/types"
)

func testCalculator() *Calculator {
	return NewCalculator(DefaultConfig(), NewExponentialDecayFunction())
}

func TestVRFFraction(t *testing.T) {
	calc := testCalculator()

	assert.Equal(t, 0.0, calc.VRFFraction(nil))
	assert.Equal(t, 0.0, calc.VRFFraction(make([]byte, 32)))

	// All-ones output approaches 1 from below
	ones := make([]byte, 32)
	for i := range ones {
		ones[i] = 0xff
	}
	fraction := calc.VRFFraction(ones)
	assert.Greater(t, fraction, 0.999999)
	assert.LessOrEqual(t, fraction, 1.0)

	// 0x80... is one half
	half := make([]byte, 32)
	half[0] = 0x80
	assert.InDelta(t, 0.5, calc.VRFFraction(half), 1e-12)
}

func TestStakeWeightBoundaries(t *testing.T) {
	calc := testCalculator()

	// Zero stake produces zero weight and therefore zero score
	assert.Equal(t, 0.0, calc.StakeWeight(0, 100_000))

	// Average stake gives half weight
	assert.InDelta(t, 0.5, calc.StakeWeight(100_000, 100_000), 1e-12)

	// Saturates at twice the average
	assert.Equal(t, 1.0, calc.StakeWeight(200_000, 100_000))
	assert.Equal(t, 1.0, calc.StakeWeight(10_000_000, 100_000))

	// Degenerate average
	assert.Equal(t, 0.0, calc.StakeWeight(100_000, 0))
}

func TestPerformanceFactorClamping(t *testing.T) {
	calc := testCalculator()

	assert.Equal(t, 1.0, calc.PerformanceFactor(100))
	assert.InDelta(t, 0.85, calc.PerformanceFactor(85), 1e-12)
	assert.Equal(t, 0.7, calc.PerformanceFactor(70))
	assert.Equal(t, 0.7, calc.PerformanceFactor(10), "uptime below 70%% clamps to the floor")
	assert.Equal(t, 1.0, calc.PerformanceFactor(150), "uptime above 100%% clamps to the ceiling")
}

func TestScoreZeroStake(t *testing.T) {
	calc := testCalculator()

	output := make([]byte, 32)
	output[0] = 0xff
	node := &SuperNode{Stake: 0, UptimePercent: 100}

	assert.Equal(t, 0.0, calc.Score(output, node, 100_000, 0), "zero stake must zero the score")
}

func TestScoreWithinUnitInterval(t *testing.T) {
	calc := testCalculator()

	output := make([]byte, 32)
	for i := range output {
		output[i] = 0xff
	}
	node := &SuperNode{Stake: 10_000_000, UptimePercent: 100}

	score := calc.Score(output, node, 100_000, 0)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func makeAnnouncement(score float64, firstByte byte) *types.VRFAnnouncement {
	pk := make([]byte, 32)
	pk[0] = firstByte
	return &types.VRFAnnouncement{
		PublicKey: pk,
		VRFOutput: make([]byte, 32),
		VRFProof:  make([]byte, 64),
		Score:     score,
	}
}

func TestRankDescendingByScore(t *testing.T) {
	calc := testCalculator()

	a := makeAnnouncement(0.82, 0x0a)
	b := makeAnnouncement(0.64, 0x0b)
	c := makeAnnouncement(0.55, 0x0c)

	sorted := calc.Rank([]*types.VRFAnnouncement{c, a, b})
	require.Len(t, sorted, 3)
	assert.Equal(t, a, sorted[0])
	assert.Equal(t, b, sorted[1])
	assert.Equal(t, c, sorted[2])
	assert.True(t, calc.IsSorted(sorted))
}

func TestRankTieBreakByPublicKey(t *testing.T) {
	calc := testCalculator()

	// Equal scores: the lexicographically smaller public key wins
	pk1 := makeAnnouncement(0.50, 0x01)
	pk2 := makeAnnouncement(0.50, 0x02)

	sorted := calc.Rank([]*types.VRFAnnouncement{pk2, pk1})
	require.Len(t, sorted, 2)
	assert.Equal(t, pk1, sorted[0], "owner of 0x01... must win the tie")
	assert.Equal(t, pk1, calc.SelectProposer(sorted))

	// Both orders of submission agree
	sorted2 := calc.Rank([]*types.VRFAnnouncement{pk1, pk2})
	assert.Equal(t, sorted[0].PublicKey, sorted2[0].PublicKey)
}

func TestSelectTopX(t *testing.T) {
	calc := testCalculator()

	a := makeAnnouncement(0.82, 0x0a)
	b := makeAnnouncement(0.64, 0x0b)
	c := makeAnnouncement(0.55, 0x0c)
	sorted := calc.Rank([]*types.VRFAnnouncement{a, b, c})

	top2 := calc.SelectTopX(sorted, 2)
	require.Len(t, top2, 2)
	assert.Equal(t, a, top2[0])
	assert.Equal(t, b, top2[1])

	// X beyond the set clamps
	assert.Len(t, calc.SelectTopX(sorted, 10), 3)
	assert.Empty(t, calc.SelectTopX(sorted, 0))

	assert.True(t, calc.IsTopX(a.PublicKey, sorted, 2))
	assert.True(t, calc.IsTopX(b.PublicKey, sorted, 2))
	assert.False(t, calc.IsTopX(c.PublicKey, sorted, 2))
}

func TestSelectProposerEmpty(t *testing.T) {
	calc := testCalculator()
	assert.Nil(t, calc.SelectProposer(nil))
}
