package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	assert.Equal(t, 8, config.GossipsubConfig.MeshN)
	assert.Equal(t, 5, config.GossipsubConfig.MeshNLow)
	assert.Equal(t, 12, config.GossipsubConfig.MeshNHigh)
	assert.Equal(t, time.Second, config.GossipsubConfig.HeartbeatInterval)

	assert.Equal(t, "/equiflux", config.DHTConfig.ProtocolPrefix)
	assert.Equal(t, "auto", config.DHTConfig.Mode)

	// A full block at the configured max size must fit a gossip message
	assert.GreaterOrEqual(t, config.RateLimit.MaxMessageSize, 2*1024*1024)
}

func TestNewHostDefaults(t *testing.T) {
	host := NewHost(nil)
	require.NotNil(t, host)
	assert.Equal(t, "", host.PeerID(), "peer identity exists only after Start")

	// Publishing before Start is refused
	err := host.publish(context.Background(), TopicBlocks, []byte("data"))
	assert.ErrorIs(t, err, ErrNodeNotStarted)

	// Oversized payloads are refused before reaching the router
	huge := make([]byte, DefaultConfig().RateLimit.MaxMessageSize+1)
	err = host.publish(context.Background(), TopicBlocks, huge)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
