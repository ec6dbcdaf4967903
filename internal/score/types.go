package score

// SuperNode describes one eligible node's standing as used by scoring:
// bonded stake, the time it was last elected into the set, and its reported
// uptime.
type SuperNode struct {
	PublicKey     []byte  `json:"public_key" validate:"required"`
	Stake         uint64  `json:"stake"`
	Core          bool    `json:"core"`
	ElectedAtMs   uint64  `json:"elected_at_ms"`
	UptimePercent float64 `json:"uptime_percent" validate:"min=0,max=100"`
}

// Config holds scoring parameters
type Config struct {
	// Half-life of the post-election decay factor, in days
	DecayHalfLifeDays float64 `json:"decay_half_life_days" validate:"gt=0"`
}

// DefaultConfig returns default scoring parameters
func DefaultConfig() *Config {
	return &Config{
		DecayHalfLifeDays: 30,
	}
}
