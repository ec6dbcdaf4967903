package p2p

import (
	"time"

	"github.com/multiformats/go-multiaddr"
)

// Config represents P2P node configuration
type Config struct {
	// Host configuration
	ListenAddrs    []multiaddr.Multiaddr `json:"listen_addrs"`
	BootstrapPeers []multiaddr.Multiaddr `json:"bootstrap_peers"`

	// Gossipsub parameters (v1.1)
	GossipsubConfig GossipsubConfig `json:"gossipsub"`

	// DHT configuration
	DHTConfig DHTConfig `json:"dht"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// GossipsubConfig contains gossipsub-specific settings
type GossipsubConfig struct {
	// Mesh parameters
	MeshN     int `json:"mesh_n"`      // Target mesh size (default: 8)
	MeshNLow  int `json:"mesh_n_low"`  // Low watermark (default: 5)
	MeshNHigh int `json:"mesh_n_high"` // High watermark (default: 12)

	// Timing parameters
	HeartbeatInterval time.Duration `json:"heartbeat_interval"` // default: 1s
}

// DHTConfig contains DHT-specific settings
type DHTConfig struct {
	BootstrapTimeout time.Duration `json:"bootstrap_timeout"` // default: 30s
	Mode             string        `json:"mode"`              // "client", "server", "auto"
	ProtocolPrefix   string        `json:"protocol_prefix"`   // default: "/equiflux"
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	// Per-peer limits
	PeerMsgPerMin int `json:"peer_msg_per_min"` // default: 600

	// Message validation
	MaxMessageSize int `json:"max_message_size"` // default: 4MB, must admit a full block
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddrs:    []multiaddr.Multiaddr{},
		BootstrapPeers: []multiaddr.Multiaddr{},

		GossipsubConfig: GossipsubConfig{
			MeshN:             8,
			MeshNLow:          5,
			MeshNHigh:         12,
			HeartbeatInterval: time.Second,
		},

		DHTConfig: DHTConfig{
			BootstrapTimeout: 30 * time.Second,
			Mode:             "auto",
			ProtocolPrefix:   "/equiflux",
		},

		RateLimit: RateLimitConfig{
			PeerMsgPerMin:  600,
			MaxMessageSize: 4 * 1024 * 1024,
		},
	}
}
