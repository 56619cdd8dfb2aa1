// Package storage is the Store (C2): persistent keyed access to blocks,
// transactions, the unconfirmed pool, and sync locks, with atomic
// multi-write commits and a bounded recursive ancestor walk. Backed by
// gorm over sqlite3, mirroring the original Django-ORM-backed models 1:1.
package storage

import (
	"time"

	"github.com/boocoin/boocoin/common"
)

// blockRow is the gorm model for a committed block. BalancesJSON holds the
// exact JSON text produced by chain.Balances.MarshalJSON at commit time —
// stored verbatim (not re-derived) so the stored bytes always match the
// bytes that went into the block's hash preimage.
type blockRow struct {
	ID            string `gorm:"primary_key"`
	PreviousBlock *string `gorm:"index"`
	Depth         uint64 `gorm:"index"`
	Miner         string
	BalancesJSON  string `gorm:"type:text"`
	MerkleRoot    string
	ExtraData     []byte
	Time          time.Time
	Signature     string
}

func (blockRow) TableName() string { return "blocks" }

// transactionRow is the gorm model for a committed transaction. The
// (hash, block_id) pair is unique: the same transaction hash may appear on
// more than one block only across sibling forks, never twice on one block.
type transactionRow struct {
	ID          uint64 `gorm:"primary_key;AUTO_INCREMENT"`
	Hash        string `gorm:"index;unique_index:idx_transactions_hash_block"`
	BlockID     string `gorm:"index;unique_index:idx_transactions_hash_block"`
	FromAccount *string
	ToAccount   string
	Coins       common.Amount `gorm:"type:text"`
	ExtraData   []byte
	Time        time.Time
	Signature   string
	Seq         int `gorm:"index"` // position within the block, preserving order
}

func (transactionRow) TableName() string { return "transactions" }

// unconfirmedRow is the gorm model for a mempool entry, keyed solely by
// hash.
type unconfirmedRow struct {
	ID          uint64 `gorm:"primary_key;AUTO_INCREMENT"`
	Hash        string `gorm:"unique_index"`
	FromAccount *string
	ToAccount   string
	Coins       common.Amount `gorm:"type:text"`
	ExtraData   []byte
	Time        time.Time
	Signature   string
}

func (unconfirmedRow) TableName() string { return "unconfirmed_transactions" }

// syncLockRow is the gorm model for an in-flight outbound sync. Its mere
// presence forbids mining; see storage.WithSyncLock.
type syncLockRow struct {
	Token     string `gorm:"primary_key"`
	Peer      string
	CreatedAt time.Time
}

func (syncLockRow) TableName() string { return "sync_locks" }
