package score

import (
	"bytes"
	"math"
	"math/big"
	"sort"

	"github.com/equiflux/node/internal/types"
)

// Performance factor bounds: 100% uptime maps to 1.0, 70% and below to 0.7.
const (
	perfCeiling = 1.0
	perfFloor   = 0.7
)

// msPerDay converts election age from wall-clock milliseconds to days
const msPerDay = 24 * 60 * 60 * 1000

// maxVRFValue is 2^256, the denominator for the VRF output fraction
var maxVRFValue = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 256))

// Calculator converts VRF outputs and node standing into scalar scores and
// ranks announcements deterministically. Pure; safe for concurrent use.
type Calculator struct {
	config *Config
	decay  DecayFunction
}

// NewCalculator creates a score calculator
func NewCalculator(config *Config, decay DecayFunction) *Calculator {
	if config == nil {
		config = DefaultConfig()
	}
	if decay == nil {
		decay = NewExponentialDecayFunction()
	}
	return &Calculator{
		config: config,
		decay:  decay,
	}
}

// VRFFraction interprets a VRF output as a big-endian fraction in [0, 1)
func (c *Calculator) VRFFraction(output []byte) float64 {
	if len(output) == 0 {
		return 0
	}

	value := new(big.Float).SetInt(new(big.Int).SetBytes(output))
	fraction, _ := new(big.Float).Quo(value, maxVRFValue).Float64()
	return fraction
}

// StakeWeight returns min(stake / (2 * averageStake), 1)
func (c *Calculator) StakeWeight(stake uint64, averageStake float64) float64 {
	if averageStake <= 0 {
		return 0
	}

	weight := float64(stake) / (2.0 * averageStake)
	if weight > 1.0 {
		return 1.0
	}
	return weight
}

// DecayFactor returns the post-election decay factor in [0.5, 1.0]
func (c *Calculator) DecayFactor(electedAtMs, nowMs uint64) float64 {
	if nowMs <= electedAtMs {
		return 1.0
	}
	ageDays := float64(nowMs-electedAtMs) / msPerDay
	return c.decay.Factor(ageDays, c.config.DecayHalfLifeDays)
}

// PerformanceFactor maps reported uptime percentage into [0.7, 1.0]
func (c *Calculator) PerformanceFactor(uptimePercent float64) float64 {
	factor := uptimePercent / 100.0
	if factor > perfCeiling {
		return perfCeiling
	}
	if factor < perfFloor {
		return perfFloor
	}
	return factor
}

// Score computes the full selection score for a node:
// sVRF * sqrt(wStake) * fDecay * fPerf, clamped into [0, 1]
func (c *Calculator) Score(vrfOutput []byte, node *SuperNode, averageStake float64, nowMs uint64) float64 {
	sVRF := c.VRFFraction(vrfOutput)
	wStake := c.StakeWeight(node.Stake, averageStake)
	fDecay := c.DecayFactor(node.ElectedAtMs, nowMs)
	fPerf := c.PerformanceFactor(node.UptimePercent)

	score := sVRF * math.Sqrt(wStake) * fDecay * fPerf

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Rank returns the announcements sorted by descending score, ties broken by
// ascending public-key bytes. The input is not modified. The tie-break is a
// correctness requirement: every honest node must produce the same order.
func (c *Calculator) Rank(announcements []*types.VRFAnnouncement) []*types.VRFAnnouncement {
	sorted := make([]*types.VRFAnnouncement, len(announcements))
	copy(sorted, announcements)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return bytes.Compare(sorted[i].PublicKey, sorted[j].PublicKey) < 0
	})

	return sorted
}

// IsSorted reports whether announcements already follow the ranking order
func (c *Calculator) IsSorted(announcements []*types.VRFAnnouncement) bool {
	for i := 1; i < len(announcements); i++ {
		prev, cur := announcements[i-1], announcements[i]
		if prev.Score < cur.Score {
			return false
		}
		if prev.Score == cur.Score && bytes.Compare(prev.PublicKey, cur.PublicKey) > 0 {
			return false
		}
	}
	return true
}

// SelectProposer returns the first entry of a ranked announcement list
func (c *Calculator) SelectProposer(sorted []*types.VRFAnnouncement) *types.VRFAnnouncement {
	if len(sorted) == 0 {
		return nil
	}
	return sorted[0]
}

// SelectTopX returns the first x entries of a ranked announcement list
func (c *Calculator) SelectTopX(sorted []*types.VRFAnnouncement, x int) []*types.VRFAnnouncement {
	if x > len(sorted) {
		x = len(sorted)
	}
	if x < 0 {
		x = 0
	}
	top := make([]*types.VRFAnnouncement, x)
	copy(top, sorted[:x])
	return top
}

// IsTopX reports whether the given public key is within the first x entries
func (c *Calculator) IsTopX(publicKey []byte, sorted []*types.VRFAnnouncement, x int) bool {
	if x > len(sorted) {
		x = len(sorted)
	}
	for i := 0; i < x; i++ {
		if bytes.Equal(sorted[i].PublicKey, publicKey) {
			return true
		}
	}
	return false
}
