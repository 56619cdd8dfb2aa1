// Package api exposes the node's HTTP surface, an external collaborator of
// the core components.
// User-facing endpoints (balances, submission, lookups) and peer-facing
// endpoints (gossip, history, sync) share one router but are otherwise
// independent — neither trusts the other's input any less.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/log"
)

// Store is the narrow storage surface the HTTP layer needs.
type Store interface {
	GetBlock(id string) (*chain.Block, error)
	GetActiveBlock() (*chain.Block, error)
	GetGenesis() (*chain.Block, error)
	GetTransaction(hash string) (*chain.Transaction, error)
	InsertUnconfirmed(tx chain.UnconfirmedTransaction) error
	BlockHistory(before string, limit int) ([]string, error)
	HasTransactionInChain(startBlockID string, txHash string) (bool, error)
	CommitBlock(block *chain.Block) error
}

// TransactionBroadcaster fans a newly-accepted transaction out to peers.
type TransactionBroadcaster interface {
	BroadcastTransaction(peers []string, tx chain.UnconfirmedTransaction)
}

// BlockSyncer triggers an on-demand sync with one peer, used when an
// inbound block names a parent this node doesn't have yet.
type BlockSyncer interface {
	Sync(peer string)
}

// MineTrigger lets the HTTP layer ask for an immediate mine attempt once a
// transaction submission crosses the mempool count threshold, rather than
// waiting for the background scheduler's next tick.
type MineTrigger interface {
	IsTimeToMine() (bool, error)
	MineBlock() error
}

// Deps bundles everything the handlers need, explicitly injected — no
// package-level state, matching the rest of the module.
type Deps struct {
	Store       Store
	Broadcaster TransactionBroadcaster
	Syncer      BlockSyncer
	MineTrigger MineTrigger
	Peers       []string
	Logger      log.Logger
}

// NewRouter builds the full httprouter.Router for both the user and peer
// surfaces. Per spec.md §6, the user-facing surface lives under /api/ —
// not /user/, despite the internal handler naming.
func NewRouter(deps Deps) *httprouter.Router {
	r := httprouter.New()

	h := &handlers{deps: deps}

	r.GET("/api/block_count/", h.blockCount)
	r.GET("/api/block/:id/", h.getBlock)
	r.GET("/api/transaction/:hash/", h.getTransaction)
	r.POST("/api/submit_transaction/", h.submitTransaction)

	r.POST("/p2p/transmit_transaction/", h.transmitTransaction)
	r.POST("/p2p/transmit_block/", h.transmitBlock)
	r.GET("/p2p/blockchain_history/", h.blockchainHistory)
	r.POST("/p2p/blocks/", h.blocks)

	return r
}

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
