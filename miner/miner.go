// Package miner assembles, validates, and persists new blocks: C5 in the
// component table. It also prunes unconfirmable transactions out of the
// mempool as an opportunistic side effect of assembling a block.
package miner

import (
	"errors"
	"time"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/crypto"
	"github.com/boocoin/boocoin/ledger"
	"github.com/boocoin/boocoin/log"
	"github.com/boocoin/boocoin/metrics"
	"github.com/boocoin/boocoin/validation"
)

// rewardAmount is the fixed payout of the block-reward transaction.
var rewardAmount = common.MustParseAmount("100.00000000")

var errNoActiveBlock = errors.New("no active block: genesis has not been imported")

// unconfirmedCountThreshold and unconfirmedAgeThreshold are the two
// independent conditions that make it "time to mine" (spec.md §4.5/§4.7).
const (
	unconfirmedCountThreshold = 10
	unconfirmedAgeThreshold   = 10 * time.Minute
)

// Store is the narrow storage surface mining needs.
type Store interface {
	SyncLocksCount() (int, error)
	GetActiveBlock() (*chain.Block, error)
	GetGenesis() (*chain.Block, error)
	GetBlock(id string) (*chain.Block, error)
	HasTransactionInChain(startBlockID string, txHash string) (bool, error)
	CountUnconfirmed() (int, error)
	AllUnconfirmed() ([]chain.UnconfirmedTransaction, error)
	DeleteUnconfirmed(hashes []string) error
	DeleteAllUnconfirmed() error
	CommitBlock(block *chain.Block) error
}

// Broadcaster is implemented by the p2p package; the miner depends only on
// this narrow interface to avoid an import cycle with p2p (which in turn
// depends on a MineTrigger implemented by Miner).
type Broadcaster interface {
	BroadcastBlock(block *chain.Block)
}

// Miner holds everything needed to assemble and publish a block.
type Miner struct {
	store       Store
	broadcaster Broadcaster

	minerPublicKey  string
	minerPrivateKey string
	walletPublicKey string
	blockExtraData  []byte

	logger log.Logger
}

// New constructs a Miner. walletPublicKey receives the reward of every
// block this node successfully mines.
func New(store Store, broadcaster Broadcaster, minerPublicKey, minerPrivateKey, walletPublicKey string, blockExtraData []byte) *Miner {
	return &Miner{
		store:           store,
		broadcaster:     broadcaster,
		minerPublicKey:  minerPublicKey,
		minerPrivateKey: minerPrivateKey,
		walletPublicKey: walletPublicKey,
		blockExtraData:  blockExtraData,
		logger:          log.New("module", "miner"),
	}
}

// IsTimeToMine reports whether the mempool has crossed the count threshold
// or the active block is old enough, per spec.md §4.5.
func (m *Miner) IsTimeToMine() (bool, error) {
	count, err := m.store.CountUnconfirmed()
	if err != nil {
		return false, err
	}
	if count >= unconfirmedCountThreshold {
		return true, nil
	}
	active, err := m.store.GetActiveBlock()
	if err != nil {
		return false, err
	}
	if active == nil {
		return false, nil
	}
	return time.Since(active.Time) >= unconfirmedAgeThreshold, nil
}

// MineBlock runs the full assemble/validate/commit/broadcast protocol from
// spec.md §4.5. It aborts silently (no error) if a sync is in flight, since
// mining must never race with sync-driven commits.
func (m *Miner) MineBlock() error {
	locks, err := m.store.SyncLocksCount()
	if err != nil {
		return err
	}
	if locks > 0 {
		m.logger.Debug("skipping mine: sync in flight")
		return nil
	}

	active, err := m.store.GetActiveBlock()
	if err != nil {
		return err
	}
	if active == nil {
		return &common.StorageError{Op: "mine_block", Err: errNoActiveBlock}
	}
	genesis, err := m.store.GetGenesis()
	if err != nil {
		return err
	}

	unconfirmed, err := m.store.AllUnconfirmed()
	if err != nil {
		return err
	}

	survivors, _, err := m.pruneInvalid(active.Balances, unconfirmed)
	if err != nil {
		return err
	}

	reward := m.buildReward()
	rewardHash, err := reward.ComputeHash(crypto.HHex)
	if err != nil {
		return err
	}
	txs := make([]chain.Transaction, 0, len(survivors)+1)
	txs = append(txs, chain.Transaction{Hash: rewardHash, Content: reward, Signature: chain.RewardSignature})
	for _, u := range survivors {
		txs = append(txs, u.Materialize(""))
	}

	finalBalances, err := ledger.ApplyTx(active.Balances, reward)
	if err != nil {
		return err
	}
	for i := 1; i < len(txs); i++ {
		finalBalances, err = ledger.ApplyTx(finalBalances, txs[i].Content)
		if err != nil {
			return err
		}
	}

	root, err := crypto.MerkleRoot(hashesOf(txs))
	if err != nil {
		return err
	}

	block := &chain.Block{
		PreviousBlock: &active.ID,
		Depth:         active.Depth + 1,
		Miner:         m.minerPublicKey,
		Balances:      finalBalances,
		MerkleRoot:    root,
		ExtraData:     m.blockExtraData,
		Time:          time.Now().UTC(),
	}
	pre, err := block.Preimage()
	if err != nil {
		return err
	}
	block.ID = crypto.HHex(pre)
	sig, err := crypto.Sign(block.ID, m.minerPrivateKey)
	if err != nil {
		return err
	}
	block.Signature = sig
	for i := range txs {
		txs[i].Block = block.ID
	}
	block.Transactions = txs

	if err := validation.ValidateBlock(&storeReader{m.store}, genesis, block); err != nil {
		m.logger.Error("assembled block failed its own validation; aborting mine", "err", err)
		return err
	}

	if err := m.store.CommitBlock(block); err != nil {
		return err
	}
	if err := m.store.DeleteAllUnconfirmed(); err != nil {
		m.logger.Error("failed to clear mempool after mining", "err", err)
	}
	metrics.BlocksMined.Inc()
	m.logger.Info("mined block", "id", block.ID, "depth", block.Depth, "transactions", len(txs))

	if m.broadcaster != nil {
		m.broadcaster.BroadcastBlock(block)
	}
	return nil
}

// pruneInvalid iterates unconfirmed transactions in stable order, replaying
// each against a running balances map starting from base. Failing
// transactions are dropped from the mempool and from the returned slice;
// passing ones are folded into the running balances and kept. Per the
// spec's Open Questions: every candidate is validated with
// first_in_block=false (a user-submitted transaction is never a reward,
// regardless of its position in the unconfirmed pool), and it is this
// pruned slice — never the original unpruned one — that the caller must use
// downstream.
func (m *Miner) pruneInvalid(base *chain.Balances, unconfirmed []chain.UnconfirmedTransaction) ([]chain.UnconfirmedTransaction, *chain.Balances, error) {
	running := base
	survivors := make([]chain.UnconfirmedTransaction, 0, len(unconfirmed))
	var toDelete []string
	for _, u := range unconfirmed {
		if err := validation.ValidateTransaction(running, u.Content, u.Hash, u.Signature, false); err != nil {
			m.logger.Debug("pruning invalid unconfirmed transaction", "hash", u.Hash, "reason", err)
			toDelete = append(toDelete, u.Hash)
			metrics.TransactionsPruned.Inc()
			continue
		}
		next, err := ledger.ApplyTx(running, u.Content)
		if err != nil {
			toDelete = append(toDelete, u.Hash)
			metrics.TransactionsPruned.Inc()
			continue
		}
		running = next
		survivors = append(survivors, u)
	}
	if len(toDelete) > 0 {
		if err := m.store.DeleteUnconfirmed(toDelete); err != nil {
			return nil, nil, err
		}
	}
	return survivors, running, nil
}

func (m *Miner) buildReward() chain.TxContent {
	return chain.TxContent{
		From:  nil,
		To:    m.walletPublicKey,
		Coins: rewardAmount,
		Time:  time.Now().UTC(),
	}
}

func hashesOf(txs []chain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Hash
	}
	return out
}

// storeReader adapts Store to validation.ChainReader.
type storeReader struct {
	Store
}
