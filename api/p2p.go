package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/metrics"
	"github.com/boocoin/boocoin/validation"
)

const historyPageSize = 100

// transmitTransaction answers POST /p2p/transmit_transaction/: a peer is
// gossiping a transaction it just accepted. Validated the same way a
// user-submitted one is, but never re-broadcast — every peer already
// broadcasts directly to the full node list, so relaying would only
// duplicate traffic.
func (h *handlers) transmitTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var wire chain.WireTransaction
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	utx, err := wire.ToUnconfirmed()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validateAgainstActive(utx); err != nil {
		writeValidationError(w, err)
		return
	}
	if err := h.deps.Store.InsertUnconfirmed(utx); err != nil {
		writeStorageError(w, err)
		return
	}
	metrics.TransactionsSubmitted.Inc()
	h.maybeTriggerMine()
	writeJSON(w, http.StatusOK, map[string]string{"hash": utx.Hash})
}

type transmitBlockRequest struct {
	Block chain.WireBlock `json:"block"`
	Node  string          `json:"node"`
}

// transmitBlock answers POST /p2p/transmit_block/. An unknown parent is not
// rejected outright: it is the signal to launch a catch-up sync against the
// sending peer, per spec.md §7's "200 + sync" rule. The sync itself runs in
// the background so the sender is never kept waiting on it.
func (h *handlers) transmitBlock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req transmitBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if !isConfiguredPeer(req.Node, h.deps.Peers) {
		writeError(w, http.StatusBadRequest, "sender is not a configured peer")
		return
	}
	block, txs, err := req.Block.ToBlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	block.Transactions = txs

	genesis, err := h.deps.Store.GetGenesis()
	if err != nil {
		writeStorageError(w, err)
		return
	}

	if genesis == nil {
		if err := validation.ValidateGenesis(block); err != nil {
			writeValidationError(w, err)
			return
		}
	} else {
		if err := validation.ValidateBlock(storeReader{h.deps.Store}, genesis, block); err != nil {
			if _, ok := err.(*common.UnknownParentError); ok {
				h.deps.Logger.Info("unknown parent on inbound block; launching sync", "peer", req.Node, "block", block.ID)
				if h.deps.Syncer != nil && req.Node != "" {
					go h.deps.Syncer.Sync(req.Node)
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "syncing"})
				return
			}
			writeValidationError(w, err)
			metrics.BlocksReceived.WithLabelValues("invalid").Inc()
			return
		}
	}

	if err := h.deps.Store.CommitBlock(block); err != nil {
		writeStorageError(w, err)
		return
	}
	metrics.BlocksReceived.WithLabelValues("committed").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

// blockchainHistory answers GET /p2p/blockchain_history/?before=<id>.
func (h *handlers) blockchainHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	before := r.URL.Query().Get("before")
	ids, err := h.deps.Store.BlockHistory(before, historyPageSize)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"blocks": ids})
}

type blocksRequest struct {
	Blocks []string `json:"blocks"`
}

// blocks answers POST /p2p/blocks/: a peer asks for the full bodies of a set
// of ids it has seen only through blockchain_history. Ids we don't have are
// silently omitted from the response rather than causing a partial failure.
func (h *handlers) blocks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req blocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	out := make(map[string]chain.WireBlock, len(req.Blocks))
	for _, id := range req.Blocks {
		block, err := h.deps.Store.GetBlock(id)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		if block == nil {
			continue
		}
		out[id] = chain.ToWireBlock(block)
	}
	writeJSON(w, http.StatusOK, out)
}

// isConfiguredPeer reports whether node is in the configured peer list,
// the source-identity authentication spec.md §4.6 requires before a block
// is accepted (and before its unknown-parent path is allowed to launch an
// outbound sync against it).
func isConfiguredPeer(node string, peers []string) bool {
	if node == "" {
		return false
	}
	for _, p := range peers {
		if p == node {
			return true
		}
	}
	return false
}

// storeReader adapts Store to validation.ChainReader.
type storeReader struct {
	Store
}
