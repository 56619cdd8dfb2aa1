package p2p

import (
	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/log"
	"github.com/boocoin/boocoin/metrics"
	"github.com/boocoin/boocoin/validation"
)

// maxHistoryIDs bounds a single ancestry-scan page, matching the peer-side
// page size enforced by the history endpoint.
const maxHistoryIDs = 100

// Store is the narrow storage surface the sync protocol needs.
type Store interface {
	GetBlock(id string) (*chain.Block, error)
	GetGenesis() (*chain.Block, error)
	CommitBlocks(blocks []*chain.Block) error
	SyncLocksCount() (int, error)
	WithSyncLock(peer string, fn func() error) error
	HasTransactionInChain(startBlockID string, txHash string) (bool, error)
}

// MineTrigger is satisfied by *miner.Miner; Syncer calls it once a sync
// settles so that a node which just caught up can immediately check
// whether it owes the network a block.
type MineTrigger interface {
	IsTimeToMine() (bool, error)
	MineBlock() error
}

// Syncer runs the pull-based ancestry-scan protocol of spec.md §4.6: for
// each configured peer, walk backward from its tip looking for the first
// block id already known locally, then fetch and commit every block between
// that point and the peer's tip, oldest first.
type Syncer struct {
	client *Client
	store  Store
	miner  MineTrigger
	peers  []string
	logger log.Logger
}

// NewSyncer builds a Syncer bound to the given peer list.
func NewSyncer(client *Client, store Store, miner MineTrigger, peers []string) *Syncer {
	return &Syncer{
		client: client,
		store:  store,
		miner:  miner,
		peers:  peers,
		logger: log.New("module", "sync"),
	}
}

// SyncAll runs a sync against every configured peer, one at a time — never
// in parallel, since concurrent syncs could race on fork-choice (spec.md
// §4.6).
func (s *Syncer) SyncAll() {
	for _, peer := range s.peers {
		s.Sync(peer)
	}
}

// Sync syncs against a single peer under a persisted sync lock, then — if
// no other sync is in flight and it is now time to mine — triggers a mine
// attempt. Both the lock and the mine-check failure paths are logged and
// swallowed: a bad peer must never take down the node.
func (s *Syncer) Sync(peer string) {
	err := s.store.WithSyncLock(peer, func() error {
		return s.syncOnce(peer)
	})
	if err != nil {
		s.logger.Warn("sync failed", "peer", peer, "err", err)
		metrics.SyncAttempts.WithLabelValues(peer, "error").Inc()
		return
	}
	metrics.SyncAttempts.WithLabelValues(peer, "ok").Inc()

	if s.miner == nil {
		return
	}
	locks, err := s.store.SyncLocksCount()
	if err != nil {
		s.logger.Warn("failed to check sync locks after sync", "err", err)
		return
	}
	if locks > 0 {
		return
	}
	shouldMine, err := s.miner.IsTimeToMine()
	if err != nil {
		s.logger.Warn("failed to check mining condition after sync", "err", err)
		return
	}
	if shouldMine {
		if err := s.miner.MineBlock(); err != nil {
			s.logger.Warn("post-sync mine attempt failed", "err", err)
		}
	}
}

// syncOnce runs passes of the ancestry scan against peer, repeating
// syncPass until a pass makes no progress,
// matching the original "restart to double check" behavior: a peer that is
// still extending its own chain while we sync can hand us a longer tail on
// the next pass.
func (s *Syncer) syncOnce(peer string) error {
	for {
		progressed, err := s.syncPass(peer)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// syncPass walks the peer's history backward from its tip, looking for the
// first ancestor id already present locally. It then fetches and commits
// every block between that ancestor (exclusive) and the peer's tip
// (inclusive), oldest to newest. Returns whether any block was committed.
func (s *Syncer) syncPass(peer string) (bool, error) {
	var before string
	var frontier []string

	for {
		page, err := s.client.FetchHistory(peer, before)
		if err != nil {
			return false, err
		}
		if len(page) == 0 {
			break
		}
		overlapIndex := -1
		for i, id := range page {
			known, err := s.localBlockKnown(id)
			if err != nil {
				return false, err
			}
			if known {
				overlapIndex = i
				break
			}
		}
		if overlapIndex >= 0 {
			frontier = append(frontier, page[:overlapIndex]...)
			break
		}
		frontier = append(frontier, page...)
		if len(page) < maxHistoryIDs {
			// peer has no more ancestors; frontier runs back to its genesis
			break
		}
		before = page[len(page)-1]
	}

	if len(frontier) == 0 {
		return false, nil
	}

	// frontier is newest-first (peer tip ... oldest missing ancestor);
	// commit oldest-to-newest so each block's parent is already known.
	reverse(frontier)

	bodies, err := s.client.FetchBlocks(peer, frontier)
	if err != nil {
		return false, err
	}

	genesis, err := s.store.GetGenesis()
	if err != nil {
		return false, err
	}

	// Each block is validated against the ones already accepted earlier in
	// this same run, via overlay, before any of them hit the database. The
	// whole accepted run is then committed in a single store transaction,
	// so a mid-run storage failure never leaves a partial prefix behind
	// (spec.md §4.6: "partial chain ingestion must not persist").
	overlay := &overlayReader{base: s.store}
	var accepted []*chain.Block
	for _, id := range frontier {
		wire, ok := bodies[id]
		if !ok {
			s.logger.Warn("peer history referenced a block it did not return", "peer", peer, "block", id)
			continue
		}
		block, txs, err := wire.ToBlock()
		if err != nil {
			s.logger.Warn("discarding malformed block from peer", "peer", peer, "block", id, "err", err)
			metrics.BlocksReceived.WithLabelValues("malformed").Inc()
			continue
		}
		block.Transactions = txs

		if genesis == nil {
			if err := validation.ValidateGenesis(block); err != nil {
				s.logger.Warn("rejecting peer genesis", "peer", peer, "block", id, "err", err)
				metrics.BlocksReceived.WithLabelValues("invalid").Inc()
				continue
			}
			genesis = block
		} else if err := validation.ValidateBlock(overlay, genesis, block); err != nil {
			s.logger.Warn("rejecting invalid block from peer", "peer", peer, "block", id, "err", err)
			metrics.BlocksReceived.WithLabelValues("invalid").Inc()
			continue
		}

		overlay.add(block)
		accepted = append(accepted, block)
	}

	if len(accepted) == 0 {
		return false, nil
	}
	if err := s.store.CommitBlocks(accepted); err != nil {
		return false, err
	}
	for range accepted {
		metrics.BlocksReceived.WithLabelValues("committed").Inc()
	}
	return true, nil
}

func (s *Syncer) localBlockKnown(id string) (bool, error) {
	block, err := s.store.GetBlock(id)
	if err != nil {
		return false, err
	}
	return block != nil, nil
}

func reverse(ids []string) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// overlayReader adapts Store to validation.ChainReader while layering a run
// of not-yet-committed blocks on top of it, newest added last, so each
// block in a sync run can be validated against its predecessors before any
// of them have actually landed in the database.
type overlayReader struct {
	base    Store
	pending []*chain.Block
}

func (o *overlayReader) add(block *chain.Block) {
	o.pending = append(o.pending, block)
}

func (o *overlayReader) GetBlock(id string) (*chain.Block, error) {
	for i := len(o.pending) - 1; i >= 0; i-- {
		if o.pending[i].ID == id {
			return o.pending[i], nil
		}
	}
	return o.base.GetBlock(id)
}

func (o *overlayReader) HasTransactionInChain(startBlockID, txHash string) (bool, error) {
	blockID := startBlockID
	for i := 0; i < maxAncestorWalk; i++ {
		if blockID == "" {
			return false, nil
		}
		block, err := o.GetBlock(blockID)
		if err != nil {
			return false, err
		}
		if block == nil {
			return false, nil
		}
		for _, tx := range block.Transactions {
			if tx.Hash == txHash {
				return true, nil
			}
		}
		if block.PreviousBlock == nil {
			return false, nil
		}
		blockID = *block.PreviousBlock
	}
	return false, nil
}

// maxAncestorWalk bounds HasTransactionInChain the same way storage.Store
// does, so an overlay-backed lookup can't walk further than a
// database-backed one would.
const maxAncestorWalk = 100
