package storage

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/ledger"
	"github.com/boocoin/boocoin/log"
)

// maxAncestorWalk bounds HasTransactionInChain per spec.md §4.2: ancestor
// walks go back at most 100 blocks.
const maxAncestorWalk = 100

var logger = log.New("module", "storage")

// Store is the node's exclusive owner of persistence. Every other
// component reaches the database only through these narrow operations.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a sqlite3-backed store at path. Pass
// ":memory:" for an ephemeral in-process database, used by tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, &common.StorageError{Op: "open", Err: errors.WithStack(err)}
	}
	db.LogMode(false)
	if err := db.AutoMigrate(&blockRow{}, &transactionRow{}, &unconfirmedRow{}, &syncLockRow{}).Error; err != nil {
		return nil, &common.StorageError{Op: "migrate", Err: errors.WithStack(err)}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- reads ---

// GetBlock returns the block with the given id, with its transactions
// populated in order, or (nil, nil) if it does not exist.
func (s *Store) GetBlock(id string) (*chain.Block, error) {
	var row blockRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &common.StorageError{Op: "get_block", Err: errors.WithStack(err)}
	}
	return s.hydrateBlock(row)
}

func (s *Store) hydrateBlock(row blockRow) (*chain.Block, error) {
	var txRows []transactionRow
	if err := s.db.Where("block_id = ?", row.ID).Order("seq asc").Find(&txRows).Error; err != nil {
		return nil, &common.StorageError{Op: "get_block_transactions", Err: errors.WithStack(err)}
	}
	balances := chain.NewBalances()
	if row.BalancesJSON != "" {
		if err := balances.UnmarshalJSON([]byte(row.BalancesJSON)); err != nil {
			return nil, &common.StorageError{Op: "decode_balances", Err: errors.WithStack(err)}
		}
	}
	b := &chain.Block{
		ID:            row.ID,
		PreviousBlock: row.PreviousBlock,
		Depth:         row.Depth,
		Miner:         row.Miner,
		Balances:      balances,
		MerkleRoot:    row.MerkleRoot,
		ExtraData:     row.ExtraData,
		Time:          row.Time.UTC(),
		Signature:     row.Signature,
	}
	for _, tr := range txRows {
		b.Transactions = append(b.Transactions, transactionFromRow(tr))
	}
	return b, nil
}

func transactionFromRow(tr transactionRow) chain.Transaction {
	return chain.Transaction{
		Hash:    tr.Hash,
		Block:   tr.BlockID,
		Content: chain.TxContent{
			From:      tr.FromAccount,
			To:        tr.ToAccount,
			Coins:     tr.Coins,
			ExtraData: tr.ExtraData,
			Time:      tr.Time.UTC(),
		},
		Signature: tr.Signature,
	}
}

// GetTransaction returns the committed transaction with the given hash, or
// (nil, nil) if none exists.
func (s *Store) GetTransaction(hash string) (*chain.Transaction, error) {
	var row transactionRow
	err := s.db.Where("hash = ?", hash).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &common.StorageError{Op: "get_transaction", Err: errors.WithStack(err)}
	}
	tx := transactionFromRow(row)
	return &tx, nil
}

// GetGenesis returns the depth-0 block.
func (s *Store) GetGenesis() (*chain.Block, error) {
	var row blockRow
	err := s.db.Where("depth = 0").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &common.StorageError{Op: "get_genesis", Err: errors.WithStack(err)}
	}
	return s.hydrateBlock(row)
}

// GetActiveBlock returns the current chain tip per the fork-choice rule:
// greatest depth, ties broken by smallest id. Every call re-reads the
// database — no in-memory caching, so the result always reflects the
// latest committed set (spec.md §5).
func (s *Store) GetActiveBlock() (*chain.Block, error) {
	var total int
	if err := s.db.Model(&blockRow{}).Count(&total).Error; err != nil {
		return nil, &common.StorageError{Op: "get_active_block_count", Err: errors.WithStack(err)}
	}
	if total == 0 {
		return nil, nil
	}
	var tip blockRow
	if err := s.db.Order("depth desc").Limit(1).First(&tip).Error; err != nil {
		return nil, &common.StorageError{Op: "get_active_block_depth", Err: errors.WithStack(err)}
	}
	var rows []blockRow
	if err := s.db.Where("depth = ?", tip.Depth).Find(&rows).Error; err != nil {
		return nil, &common.StorageError{Op: "get_active_block_candidates", Err: errors.WithStack(err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	candidates := make([]ledger.TipCandidate, len(rows))
	byID := make(map[string]blockRow, len(rows))
	for i, r := range rows {
		candidates[i] = ledger.TipCandidate{ID: r.ID, Depth: r.Depth}
		byID[r.ID] = r
	}
	winner, _ := ledger.ChooseActive(candidates)
	return s.hydrateBlock(byID[winner.ID])
}

// --- commit ---

// CommitBlock writes block and all of its transactions as a single atomic
// unit: either every row lands or none do. Re-committing an already-known
// block id is a no-op that returns successfully (idempotent ingestion,
// spec.md §8).
func (s *Store) CommitBlock(block *chain.Block) error {
	var existing blockRow
	err := s.db.Where("id = ?", block.ID).First(&existing).Error
	if err == nil {
		return nil // already committed; idempotent
	}
	if err != gorm.ErrRecordNotFound {
		return &common.StorageError{Op: "commit_block_check", Err: errors.WithStack(err)}
	}

	balJSON, err := block.Balances.MarshalJSON()
	if err != nil {
		return &common.StorageError{Op: "commit_block_encode_balances", Err: errors.WithStack(err)}
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return &common.StorageError{Op: "commit_block_begin", Err: tx.Error}
	}
	row := blockRow{
		ID:            block.ID,
		PreviousBlock: block.PreviousBlock,
		Depth:         block.Depth,
		Miner:         block.Miner,
		BalancesJSON:  string(balJSON),
		MerkleRoot:    block.MerkleRoot,
		ExtraData:     block.ExtraData,
		Time:          block.Time.UTC(),
		Signature:     block.Signature,
	}
	if err := tx.Create(&row).Error; err != nil {
		tx.Rollback()
		return &common.StorageError{Op: "commit_block_insert", Err: errors.WithStack(err)}
	}
	for i, t := range block.Transactions {
		tr := transactionRow{
			Hash:        t.Hash,
			BlockID:     block.ID,
			FromAccount: t.Content.From,
			ToAccount:   t.Content.To,
			Coins:       t.Content.Coins,
			ExtraData:   t.Content.ExtraData,
			Time:        t.Content.Time.UTC(),
			Signature:   t.Signature,
			Seq:         i,
		}
		if err := tx.Create(&tr).Error; err != nil {
			tx.Rollback()
			return &common.StorageError{Op: "commit_block_insert_transaction", Err: errors.WithStack(err)}
		}
	}
	if err := tx.Commit().Error; err != nil {
		return &common.StorageError{Op: "commit_block_commit", Err: errors.WithStack(err)}
	}
	return nil
}

// CommitBlocks writes an ordered run of blocks (and their transactions) as a
// single atomic unit: either every block lands or none do. Used by the sync
// protocol so a mid-run failure never leaves a partially-ingested chain
// (spec.md §4.6). Blocks must already be ordered oldest first; an id already
// present is skipped (idempotent), matching CommitBlock's per-block
// semantics.
func (s *Store) CommitBlocks(blocks []*chain.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return &common.StorageError{Op: "commit_blocks_begin", Err: tx.Error}
	}

	for _, block := range blocks {
		var existing blockRow
		err := tx.Where("id = ?", block.ID).First(&existing).Error
		if err == nil {
			continue // already committed; idempotent
		}
		if err != gorm.ErrRecordNotFound {
			tx.Rollback()
			return &common.StorageError{Op: "commit_blocks_check", Err: errors.WithStack(err)}
		}

		balJSON, err := block.Balances.MarshalJSON()
		if err != nil {
			tx.Rollback()
			return &common.StorageError{Op: "commit_blocks_encode_balances", Err: errors.WithStack(err)}
		}
		row := blockRow{
			ID:            block.ID,
			PreviousBlock: block.PreviousBlock,
			Depth:         block.Depth,
			Miner:         block.Miner,
			BalancesJSON:  string(balJSON),
			MerkleRoot:    block.MerkleRoot,
			ExtraData:     block.ExtraData,
			Time:          block.Time.UTC(),
			Signature:     block.Signature,
		}
		if err := tx.Create(&row).Error; err != nil {
			tx.Rollback()
			return &common.StorageError{Op: "commit_blocks_insert", Err: errors.WithStack(err)}
		}
		for i, t := range block.Transactions {
			tr := transactionRow{
				Hash:        t.Hash,
				BlockID:     block.ID,
				FromAccount: t.Content.From,
				ToAccount:   t.Content.To,
				Coins:       t.Content.Coins,
				ExtraData:   t.Content.ExtraData,
				Time:        t.Content.Time.UTC(),
				Signature:   t.Signature,
				Seq:         i,
			}
			if err := tx.Create(&tr).Error; err != nil {
				tx.Rollback()
				return &common.StorageError{Op: "commit_blocks_insert_transaction", Err: errors.WithStack(err)}
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return &common.StorageError{Op: "commit_blocks_commit", Err: errors.WithStack(err)}
	}
	return nil
}

// --- unconfirmed pool ---

// CountUnconfirmed returns the size of the mempool.
func (s *Store) CountUnconfirmed() (int, error) {
	var count int
	if err := s.db.Model(&unconfirmedRow{}).Count(&count).Error; err != nil {
		return 0, &common.StorageError{Op: "count_unconfirmed", Err: errors.WithStack(err)}
	}
	return count, nil
}

// InsertUnconfirmed adds tx to the mempool. Unique by hash: if a
// transaction with the same hash already exists, this is a no-op (not an
// error), matching idempotent-ingestion semantics.
func (s *Store) InsertUnconfirmed(utx chain.UnconfirmedTransaction) error {
	var existing unconfirmedRow
	err := s.db.Where("hash = ?", utx.Hash).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return &common.StorageError{Op: "insert_unconfirmed_check", Err: errors.WithStack(err)}
	}
	row := unconfirmedRow{
		Hash:        utx.Hash,
		FromAccount: utx.Content.From,
		ToAccount:   utx.Content.To,
		Coins:       utx.Content.Coins,
		ExtraData:   utx.Content.ExtraData,
		Time:        utx.Content.Time.UTC(),
		Signature:   utx.Signature,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return &common.StorageError{Op: "insert_unconfirmed", Err: errors.WithStack(err)}
	}
	return nil
}

// AllUnconfirmed returns every mempool entry in stable (insertion) order.
func (s *Store) AllUnconfirmed() ([]chain.UnconfirmedTransaction, error) {
	var rows []unconfirmedRow
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, &common.StorageError{Op: "all_unconfirmed", Err: errors.WithStack(err)}
	}
	out := make([]chain.UnconfirmedTransaction, len(rows))
	for i, r := range rows {
		out[i] = chain.UnconfirmedTransaction{
			Hash: r.Hash,
			Content: chain.TxContent{
				From:      r.FromAccount,
				To:        r.ToAccount,
				Coins:     r.Coins,
				ExtraData: r.ExtraData,
				Time:      r.Time.UTC(),
			},
			Signature: r.Signature,
		}
	}
	return out, nil
}

// DeleteUnconfirmed removes the named hashes from the mempool.
func (s *Store) DeleteUnconfirmed(hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	if err := s.db.Where("hash in (?)", hashes).Delete(&unconfirmedRow{}).Error; err != nil {
		return &common.StorageError{Op: "delete_unconfirmed", Err: errors.WithStack(err)}
	}
	return nil
}

// DeleteAllUnconfirmed empties the mempool, called by the winning miner
// immediately after a block commit.
func (s *Store) DeleteAllUnconfirmed() error {
	if err := s.db.Delete(&unconfirmedRow{}).Error; err != nil {
		return &common.StorageError{Op: "delete_all_unconfirmed", Err: errors.WithStack(err)}
	}
	return nil
}

// --- sync locks ---

// SyncLocksCount returns the number of in-flight outbound syncs.
func (s *Store) SyncLocksCount() (int, error) {
	var count int
	if err := s.db.Model(&syncLockRow{}).Count(&count).Error; err != nil {
		return 0, &common.StorageError{Op: "sync_locks_count", Err: errors.WithStack(err)}
	}
	return count, nil
}

// WithSyncLock acquires a sync lock for peer, runs fn, and releases the
// lock on every exit path (normal return, early return, or panic) before
// returning fn's error. This is the only way callers should take a sync
// lock — never a bare acquire/release pair.
func (s *Store) WithSyncLock(peer string, fn func() error) error {
	token := uuid.NewV4().String()
	row := syncLockRow{Token: token, Peer: peer, CreatedAt: time.Now().UTC()}
	if err := s.db.Create(&row).Error; err != nil {
		return &common.StorageError{Op: "acquire_sync_lock", Err: errors.WithStack(err)}
	}
	defer func() {
		if err := s.db.Where("token = ?", token).Delete(&syncLockRow{}).Error; err != nil {
			logger.Error("failed to release sync lock", "peer", peer, "err", err)
		}
	}()
	return fn()
}

// BlockHistory returns up to limit ancestor ids, newest first, starting at
// the chain tip (before == "") or immediately before the given block id.
// Used to answer the p2p blockchain_history endpoint (spec.md §4.6/§6).
func (s *Store) BlockHistory(before string, limit int) ([]string, error) {
	var startID string
	if before == "" {
		tip, err := s.GetActiveBlock()
		if err != nil {
			return nil, err
		}
		if tip == nil {
			return nil, nil
		}
		startID = tip.ID
	} else {
		var row blockRow
		err := s.db.Where("id = ?", before).First(&row).Error
		if err == gorm.ErrRecordNotFound || row.PreviousBlock == nil {
			return nil, nil
		}
		if err != nil {
			return nil, &common.StorageError{Op: "block_history_lookup", Err: errors.WithStack(err)}
		}
		startID = *row.PreviousBlock
	}

	var ids []string
	id := startID
	for i := 0; i < limit && id != ""; i++ {
		var row blockRow
		err := s.db.Select("id, previous_block").Where("id = ?", id).First(&row).Error
		if err == gorm.ErrRecordNotFound {
			break
		}
		if err != nil {
			return nil, &common.StorageError{Op: "block_history_walk", Err: errors.WithStack(err)}
		}
		ids = append(ids, row.ID)
		if row.PreviousBlock == nil {
			break
		}
		id = *row.PreviousBlock
	}
	return ids, nil
}

// --- cross-chain lookups ---

// HasTransactionInChain walks ancestors from startBlockID, up to 100 hops,
// reporting whether any visited block carries a transaction with txHash.
func (s *Store) HasTransactionInChain(startBlockID string, txHash string) (bool, error) {
	blockID := startBlockID
	for i := 0; i < maxAncestorWalk; i++ {
		if blockID == "" {
			return false, nil
		}
		var count int
		if err := s.db.Model(&transactionRow{}).Where("block_id = ? AND hash = ?", blockID, txHash).Count(&count).Error; err != nil {
			return false, &common.StorageError{Op: "has_transaction_in_chain", Err: errors.WithStack(err)}
		}
		if count > 0 {
			return true, nil
		}
		var row blockRow
		err := s.db.Select("previous_block").Where("id = ?", blockID).First(&row).Error
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		if err != nil {
			return false, &common.StorageError{Op: "has_transaction_in_chain_walk", Err: errors.WithStack(err)}
		}
		if row.PreviousBlock == nil {
			return false, nil
		}
		blockID = *row.PreviousBlock
	}
	return false, nil
}
