package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/equiflux/node/cmd/node/server"
	"github.com/equiflux/node/internal/config"
	"github.com/equiflux/node/internal/consensus"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/mempool"
	"github.com/equiflux/node/internal/p2p"
	"github.com/equiflux/node/internal/score"
	"github.com/equiflux/node/internal/store"
)

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Node identity
	keyPair, err := loadKeyPair()
	if err != nil {
		log.Fatalf("Failed to load node key: %v", err)
	}

	// Super-node set
	nodes, err := loadSuperNodes()
	if err != nil {
		log.Fatalf("Failed to load super-node set: %v", err)
	}
	registry := consensus.NewRegistry(nodes)

	// Storage: RocksDB when compiled in and configured, memory otherwise
	blockStore, stateStore := buildStores()

	// Gossip transport
	p2pConfig := p2p.DefaultConfig()
	if listen := os.Getenv("P2P_LISTEN"); listen != "" {
		addr, err := multiaddr.NewMultiaddr(listen)
		if err != nil {
			log.Fatalf("Invalid P2P_LISTEN address: %v", err)
		}
		p2pConfig.ListenAddrs = append(p2pConfig.ListenAddrs, addr)
	}
	for _, raw := range splitEnvList("P2P_BOOTSTRAP") {
		addr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			log.Fatalf("Invalid bootstrap address %q: %v", raw, err)
		}
		p2pConfig.BootstrapPeers = append(p2pConfig.BootstrapPeers, addr)
	}
	network := p2p.NewHost(p2pConfig)

	pool := mempool.New(10_000)
	engine := consensus.NewEngine(cfg, keyPair, registry, blockStore, stateStore, network, pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := network.Start(ctx); err != nil {
		log.Fatalf("Failed to start P2P host: %v", err)
	}
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start consensus engine: %v", err)
	}

	// HTTP query surface
	serverConfig := server.DefaultConfig()
	if portStr := os.Getenv("RPC_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}
	querySrv := server.New(serverConfig, engine, blockStore, pool)
	if err := querySrv.Start(); err != nil {
		log.Fatalf("Failed to start query server: %v", err)
	}

	log.Printf("Node started: peer=%s rpc=:%d", network.PeerID(), serverConfig.Port)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := querySrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Query server shutdown error: %v", err)
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		log.Printf("Engine shutdown error: %v", err)
	}
	if err := network.Stop(); err != nil {
		log.Printf("P2P shutdown error: %v", err)
	}
}

// loadKeyPair reads the node's Ed25519 seed from NODE_KEY_SEED (hex), or
// generates an ephemeral identity when unset
func loadKeyPair() (*crypto.Ed25519KeyPair, error) {
	if seedHex := os.Getenv("NODE_KEY_SEED"); seedHex != "" {
		seed, err := crypto.DecodeHex(seedHex)
		if err != nil {
			return nil, err
		}
		return crypto.NewEd25519KeyPairFromSeed(seed)
	}
	return crypto.NewEd25519KeyPair()
}

// loadSuperNodes reads the super-node set from the JSON file at NODES_FILE.
// An empty set makes this node a passive observer.
func loadSuperNodes() ([]*score.SuperNode, error) {
	path := os.Getenv("NODES_FILE")
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var nodes []*score.SuperNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func buildStores() (consensus.BlockStore, consensus.StateStore) {
	if dbPath := os.Getenv("ROCKSDB_PATH"); dbPath != "" {
		storeConfig := store.DefaultConfig()
		storeConfig.RocksDB.Path = dbPath
		rocks, err := store.NewRocksDBStore(storeConfig)
		if err != nil {
			log.Printf("RocksDB unavailable (%v), falling back to memory stores", err)
		} else {
			return rocks, rocks
		}
	}
	return store.NewMemoryBlockStore(), store.NewMemoryStateStore()
}

func splitEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, value[start:i])
			}
			start = i + 1
		}
	}
	return out
}
