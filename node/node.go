// Package node wires every component into a running daemon: storage,
// mining, the p2p client/syncer, and the HTTP API, sharing one injected
// config.Config and one Store. It is the composition root — only the
// cmd/boocoin entrypoint imports it.
package node

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/boocoin/boocoin/api"
	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/config"
	"github.com/boocoin/boocoin/log"
	"github.com/boocoin/boocoin/miner"
	"github.com/boocoin/boocoin/nat"
	"github.com/boocoin/boocoin/p2p"
	"github.com/boocoin/boocoin/storage"
)

// syncAllInterval is how often the node re-syncs against every configured
// peer in the background, independent of the inbound-block-triggered syncs.
const syncAllInterval = time.Minute

// Node owns the full lifecycle of a running boocoin instance.
type Node struct {
	cfg   config.Config
	store *storage.Store

	miner     *miner.Miner
	scheduler *miner.Scheduler
	client    *p2p.Client
	syncer    *p2p.Syncer

	httpServer *http.Server

	logger log.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New opens storage and wires every component together from cfg. It does
// not yet listen or start background work; call Start for that.
func New(cfg config.Config) (*Node, error) {
	logger := log.New("module", "node")

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	selfEndpoint := cfg.MinerIP
	client := p2p.NewClient(selfEndpoint)

	blockExtraData, err := cfg.BlockExtraDataBytes()
	if err != nil {
		store.Close()
		return nil, err
	}

	broadcaster := &peerBroadcaster{client: client, peers: cfg.Nodes}
	m := miner.New(store, broadcaster, cfg.MinerPublicKey, cfg.MinerPrivateKey, cfg.WalletPublicKey, blockExtraData)
	syncer := p2p.NewSyncer(client, store, m, cfg.Nodes)

	router := api.NewRouter(api.Deps{
		Store:       store,
		Broadcaster: client,
		Syncer:      syncer,
		MineTrigger: m,
		Peers:       cfg.Nodes,
		Logger:      log.New("module", "api"),
	})

	return &Node{
		cfg:       cfg,
		store:     store,
		miner:     m,
		scheduler: miner.NewScheduler(m),
		client:    client,
		syncer:    syncer,
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: router,
		},
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Start brings the node fully online: best-effort NAT traversal, the HTTP
// listener, the mining scheduler, and the periodic background sync loop.
// It returns once the HTTP listener is accepting connections; everything
// else runs in background goroutines until Stop is called.
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	if n.cfg.P2PAddr != "" {
		nat.MapPort(n.cfg.P2PAddr)
	}

	go n.scheduler.Start(ctx)
	go n.syncLoop(ctx)

	ln, err := newListener(n.cfg.HTTPAddr)
	if err != nil {
		cancel()
		return err
	}
	go func() {
		defer close(n.done)
		if err := n.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			n.logger.Error("http server stopped unexpectedly", "err", err)
		}
	}()
	n.logger.Info("node started", "http_addr", n.cfg.HTTPAddr, "peers", n.cfg.Nodes)
	return nil
}

// Stop shuts the node down: stops accepting new work, cancels background
// loops, and waits for the HTTP server to drain in-flight requests.
func (n *Node) Stop(ctx context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}
	err := n.httpServer.Shutdown(ctx)
	<-n.done
	n.scheduler.Wait()
	if closeErr := n.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (n *Node) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(syncAllInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.syncer.SyncAll()
		}
	}
}

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// peerBroadcaster adapts p2p.Client (which takes an explicit peer list) to
// miner.Broadcaster (which does not), binding it to the node's configured
// peer list.
type peerBroadcaster struct {
	client *p2p.Client
	peers  []string
}

func (b *peerBroadcaster) BroadcastBlock(block *chain.Block) {
	b.client.BroadcastBlock(b.peers, block)
}
