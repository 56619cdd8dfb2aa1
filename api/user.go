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

// blockCount answers GET /api/block_count/: the active chain's length
// (depth of the tip, plus one for the genesis block itself).
func (h *handlers) blockCount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	active, err := h.deps.Store.GetActiveBlock()
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if active == nil {
		writeJSON(w, http.StatusOK, map[string]uint64{"block_count": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block_count": active.Depth + 1})
}

// getBlock answers GET /api/block/:id/. The special id "active" resolves
// to the current chain tip, letting a client fetch the latest balances
// without first calling block_count.
func (h *handlers) getBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	var block *chain.Block
	var err error
	if id == "active" {
		block, err = h.deps.Store.GetActiveBlock()
	} else {
		block, err = h.deps.Store.GetBlock(id)
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if block == nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, chain.ToWireBlock(block))
}

// getTransaction answers GET /api/transaction/:hash/.
func (h *handlers) getTransaction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tx, err := h.deps.Store.GetTransaction(ps.ByName("hash"))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, chain.ToWireTransaction(*tx))
}

// submitTransaction answers POST /api/submit_transaction/: a wallet has
// already built, hashed, and signed the transaction client-side; this
// endpoint only validates and admits it to the mempool, then fans it out to
// every peer.
func (h *handlers) submitTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

	if h.deps.Broadcaster != nil {
		h.deps.Broadcaster.BroadcastTransaction(h.deps.Peers, utx)
	}
	h.maybeTriggerMine()
	writeJSON(w, http.StatusOK, map[string]string{"hash": utx.Hash})
}

// maybeTriggerMine asks the miner whether the mempool has crossed the
// count (or age) threshold and, if so, mines immediately rather than
// waiting for the background scheduler's next tick (spec.md §6/§8.2: "the
// 10th submission triggers mining"). MineBlock itself checks the sync lock
// before doing any work, so a sync in flight still safely no-ops here.
func (h *handlers) maybeTriggerMine() {
	if h.deps.MineTrigger == nil {
		return
	}
	shouldMine, err := h.deps.MineTrigger.IsTimeToMine()
	if err != nil {
		h.deps.Logger.Warn("failed to check mining condition after submission", "err", err)
		return
	}
	if !shouldMine {
		return
	}
	if err := h.deps.MineTrigger.MineBlock(); err != nil {
		h.deps.Logger.Warn("mine attempt after submission failed", "err", err)
	}
}

func (h *handlers) validateAgainstActive(utx chain.UnconfirmedTransaction) error {
	active, err := h.deps.Store.GetActiveBlock()
	if err != nil {
		return err
	}
	balances := chain.NewBalances()
	if active != nil {
		balances = active.Balances
	}
	return validation.ValidateTransaction(balances, utx.Content, utx.Hash, utx.Signature, false)
}

func writeStorageError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeValidationError maps the error taxonomy to HTTP status per spec.md
// §7: invalid transactions and blocks are 400, a StorageError is 500, and
// any other error is also reported as 400. An unknown parent is not an
// error at all (handled separately by the block endpoints).
func writeValidationError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *common.InvalidTransactionError, *common.InvalidBlockError:
		writeError(w, http.StatusBadRequest, err.Error())
	case *common.StorageError:
		writeStorageError(w, err)
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
