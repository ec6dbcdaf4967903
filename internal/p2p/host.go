package p2p

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/equiflux/node/internal/types"
)

// Host manages the libp2p host and gossip topics for the consensus
// protocol. It implements the consensus engine's Network contract:
// broadcasts publish to gossipsub, receive callbacks run on the reader
// goroutines and must only enqueue.
type Host struct {
	config *Config
	logger *Logger

	// Core libp2p components
	host   host.Host
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub

	// Topic management
	topics        map[string]*pubsub.Topic
	subscriptions map[string]*pubsub.Subscription

	// Receive callbacks
	handlerMu    sync.RWMutex
	annHandler   func(*types.VRFAnnouncement)
	blockHandler func(*types.Block)

	// State management
	started bool
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHost creates a new P2P host
func NewHost(config *Config) *Host {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Host{
		config:        config,
		logger:        NewLogger("P2PHost", LogLevelInfo),
		topics:        make(map[string]*pubsub.Topic),
		subscriptions: make(map[string]*pubsub.Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start initializes the libp2p host, DHT, and gossip subscriptions
func (p *Host) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started {
		return ErrNodeAlreadyStarted
	}

	p.logger.Info("Starting P2P host", map[string]interface{}{
		"listen_addrs": len(p.config.ListenAddrs),
		"dht_mode":     p.config.DHTConfig.Mode,
	})

	opts := []libp2p.Option{
		libp2p.ListenAddrs(p.config.ListenAddrs...),
		libp2p.EnableNATService(),
		libp2p.EnableRelay(),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		p.logger.Error("Failed to create libp2p host", map[string]interface{}{"error": err})
		return NewP2PError("create_host", err)
	}
	p.host = h

	if err := p.initDHT(ctx); err != nil {
		h.Close()
		return NewP2PError("init_dht", err)
	}

	if err := p.initPubSub(ctx); err != nil {
		h.Close()
		return NewP2PError("init_pubsub", err)
	}

	if err := p.bootstrap(ctx); err != nil {
		// Bootstrap failure is not fatal; the node can be dialed directly
		p.logger.Warn("Failed to bootstrap", map[string]interface{}{"error": err})
	}

	if err := p.subscribeToTopics(); err != nil {
		h.Close()
		return NewP2PError("subscribe_topics", err)
	}

	p.started = true
	p.logger.Info("P2P host started", map[string]interface{}{
		"peer_id":      p.host.ID().String(),
		"listen_addrs": len(p.host.Addrs()),
		"topics":       len(p.subscriptions),
	})
	return nil
}

// Stop shuts down the host and its subscriptions
func (p *Host) Stop() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.started {
		return nil
	}

	p.cancel()
	for _, sub := range p.subscriptions {
		sub.Cancel()
	}
	for _, topic := range p.topics {
		topic.Close()
	}
	if p.dht != nil {
		p.dht.Close()
	}
	if p.host != nil {
		p.host.Close()
	}

	p.started = false
	return nil
}

// PeerID returns the libp2p peer identity, empty before Start
func (p *Host) PeerID() string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if p.host == nil {
		return ""
	}
	return p.host.ID().String()
}

// BroadcastAnnouncement publishes a signed VRF announcement
func (p *Host) BroadcastAnnouncement(ctx context.Context, a *types.VRFAnnouncement) error {
	return p.publish(ctx, TopicAnnouncements, a.EncodeWire())
}

// BroadcastBlock publishes a block
func (p *Host) BroadcastBlock(ctx context.Context, block *types.Block) error {
	return p.publish(ctx, TopicBlocks, block.Encode())
}

// OnAnnouncement registers the announcement receive callback
func (p *Host) OnAnnouncement(handler func(*types.VRFAnnouncement)) {
	p.handlerMu.Lock()
	p.annHandler = handler
	p.handlerMu.Unlock()
}

// OnBlock registers the block receive callback
func (p *Host) OnBlock(handler func(*types.Block)) {
	p.handlerMu.Lock()
	p.blockHandler = handler
	p.handlerMu.Unlock()
}

func (p *Host) publish(ctx context.Context, topicName string, data []byte) error {
	if len(data) > p.config.RateLimit.MaxMessageSize {
		return ErrMessageTooLarge
	}

	p.mutex.RLock()
	topic, ok := p.topics[topicName]
	started := p.started
	p.mutex.RUnlock()

	if !started {
		return ErrNodeNotStarted
	}
	if !ok {
		return ErrUnknownTopic
	}
	return topic.Publish(ctx, data)
}

// initDHT initializes the Kademlia DHT
func (p *Host) initDHT(ctx context.Context) error {
	var mode dht.Option
	switch p.config.DHTConfig.Mode {
	case "client":
		mode = dht.Mode(dht.ModeClient)
	case "server":
		mode = dht.Mode(dht.ModeServer)
	default:
		mode = dht.Mode(dht.ModeAuto)
	}

	kadDHT, err := dht.New(ctx, p.host,
		mode,
		dht.ProtocolPrefix(protocol.ID(p.config.DHTConfig.ProtocolPrefix)),
	)
	if err != nil {
		return err
	}
	p.dht = kadDHT
	return nil
}

// initPubSub initializes gossipsub over the host
func (p *Host) initPubSub(ctx context.Context) error {
	params := pubsub.DefaultGossipSubParams()
	params.D = p.config.GossipsubConfig.MeshN
	params.Dlo = p.config.GossipsubConfig.MeshNLow
	params.Dhi = p.config.GossipsubConfig.MeshNHigh
	params.HeartbeatInterval = p.config.GossipsubConfig.HeartbeatInterval

	ps, err := pubsub.NewGossipSub(ctx, p.host,
		pubsub.WithGossipSubParams(params),
		pubsub.WithMaxMessageSize(p.config.RateLimit.MaxMessageSize),
	)
	if err != nil {
		return err
	}
	p.pubsub = ps
	return nil
}

// bootstrap connects to the configured bootstrap peers and seeds the DHT
func (p *Host) bootstrap(ctx context.Context) error {
	bootCtx, cancel := context.WithTimeout(ctx, p.config.DHTConfig.BootstrapTimeout)
	defer cancel()

	for _, addr := range p.config.BootstrapPeers {
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			p.logger.Warn("Invalid bootstrap address", map[string]interface{}{"addr": addr.String()})
			continue
		}
		if err := p.host.Connect(bootCtx, *info); err != nil {
			p.logger.Warn("Failed to connect to bootstrap peer", map[string]interface{}{
				"peer":  info.ID.String(),
				"error": err,
			})
		}
	}

	return p.dht.Bootstrap(bootCtx)
}

// subscribeToTopics joins the consensus topics and launches the readers
func (p *Host) subscribeToTopics() error {
	for _, name := range Topics() {
		topic, err := p.pubsub.Join(name)
		if err != nil {
			return err
		}
		sub, err := topic.Subscribe()
		if err != nil {
			return err
		}
		p.topics[name] = topic
		p.subscriptions[name] = sub

		go p.readLoop(name, sub)
	}
	return nil
}

// readLoop decodes messages from one subscription and dispatches them to
// the registered callback. Own messages are skipped; malformed payloads are
// dropped and logged at debug.
func (p *Host) readLoop(topicName string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(p.ctx)
		if err != nil {
			// Subscription cancelled or host stopping
			return
		}
		if msg.ReceivedFrom == p.host.ID() {
			continue
		}

		switch topicName {
		case TopicAnnouncements:
			a, err := types.DecodeAnnouncement(msg.Data)
			if err != nil {
				p.logger.Debug("Dropped malformed announcement", map[string]interface{}{"error": err})
				continue
			}
			p.handlerMu.RLock()
			handler := p.annHandler
			p.handlerMu.RUnlock()
			if handler != nil {
				handler(a)
			}

		case TopicBlocks:
			block, err := types.DecodeBlock(msg.Data)
			if err != nil {
				p.logger.Debug("Dropped malformed block", map[string]interface{}{"error": err})
				continue
			}
			p.handlerMu.RLock()
			handler := p.blockHandler
			p.handlerMu.RUnlock()
			if handler != nil {
				handler(block)
			}
		}
	}
}
