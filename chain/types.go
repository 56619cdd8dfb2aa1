// Package chain holds the replicated-state-machine data model: Block,
// Transaction, UnconfirmedTransaction and SyncLock, plus the pure hashing
// preimage functions both transaction variants share. Nothing in this
// package touches storage or the network — it is the vocabulary every other
// package is built on.
package chain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boocoin/boocoin/common"
)

// marshalOrdered marshals v, relying on encoding/json's guarantee that
// struct fields are emitted in declaration order — the mechanism every
// preimage in this package uses to produce a fixed key order without
// hand-building JSON strings.
func marshalOrdered(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// timeLayout is the canonical rendering used inside every hash preimage and
// on the wire. It stands in for "the target language's default datetime
// string rendering": Go has no single implicit default, so this format is
// fixed and used everywhere, guaranteeing every node computes the same hash
// for the same logical timestamp.
const timeLayout = "2006-01-02 15:04:05.000000"

// FormatTime renders t in the canonical preimage/wire format, always UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a string produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// RewardSignature is the literal sentinel signature every block-reward
// transaction carries. It is never cryptographically verified — the reward
// is authenticated only transitively, via the signature on the block that
// contains it.
const RewardSignature = "boocoin-block-reward"

// TxContent is the set of fields that feed a transaction's hash preimage.
// Both Transaction and UnconfirmedTransaction are built from one of these,
// which is the "mixin" spec.md calls for: a free function over a common
// shape rather than inheritance.
type TxContent struct {
	From      *string // nil only for the single block-reward transaction
	To        string
	Coins     common.Amount
	ExtraData []byte // optional, nil when absent
	Time      time.Time
}

type txPreimage struct {
	From      *string `json:"from_account"`
	To        string  `json:"to_account"`
	Coins     string  `json:"coins"`
	ExtraData *string `json:"extra_data"`
	Time      string  `json:"time"`
}

// Preimage renders the canonical JSON fed to H to produce a transaction
// hash. Key order (from, to, coins, extra_data, time) is fixed by the
// struct's field declaration order.
func (c TxContent) Preimage() (string, error) {
	var extra *string
	if len(c.ExtraData) > 0 {
		h := common.ToHex(c.ExtraData)
		extra = &h
	}
	p := txPreimage{
		From:      c.From,
		To:        c.To,
		Coins:     c.Coins.String(),
		ExtraData: extra,
		Time:      FormatTime(c.Time),
	}
	return marshalOrdered(p)
}

// Transaction is a committed transaction, attached to the block that
// included it.
type Transaction struct {
	Hash      string
	Block     string // the containing block's id
	Content   TxContent
	Signature string
}

// UnconfirmedTransaction is the same shape, unattached, living in the
// mempool keyed solely by hash.
type UnconfirmedTransaction struct {
	Hash      string
	Content   TxContent
	Signature string
}

// Materialize turns an unconfirmed transaction into a committed one once it
// has been included in blockID.
func (u UnconfirmedTransaction) Materialize(blockID string) Transaction {
	return Transaction{
		Hash:      u.Hash,
		Block:     blockID,
		Content:   u.Content,
		Signature: u.Signature,
	}
}

// ComputeHash returns H(preimage) for the transaction's content.
func (c TxContent) ComputeHash(hashFn func(string) string) (string, error) {
	pre, err := c.Preimage()
	if err != nil {
		return "", err
	}
	return hashFn(pre), nil
}

// Block is a committed block, identified by its own content hash.
type Block struct {
	ID             string
	PreviousBlock  *string // nil only for genesis
	Depth          uint64
	Miner          string
	Balances       *Balances
	MerkleRoot     string
	ExtraData      []byte
	Time           time.Time
	Signature      string
	Transactions   []Transaction // in block order; index 0 is always the reward
}

type blockPreimage struct {
	PreviousBlock *string         `json:"previous_block"`
	Depth         uint64          `json:"depth"`
	Miner         string          `json:"miner"`
	Balances      json.RawMessage `json:"balances"`
	MerkleRoot    string          `json:"merkle_root"`
	ExtraData     *string         `json:"extra_data"`
	Time          string          `json:"time"`
}

// Preimage renders the canonical JSON fed to H to produce the block id.
func (b *Block) Preimage() (string, error) {
	balJSON, err := b.Balances.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshalling balances for preimage: %w", err)
	}
	var extra *string
	if len(b.ExtraData) > 0 {
		h := common.ToHex(b.ExtraData)
		extra = &h
	}
	p := blockPreimage{
		PreviousBlock: b.PreviousBlock,
		Depth:         b.Depth,
		Miner:         b.Miner,
		Balances:      balJSON,
		MerkleRoot:    b.MerkleRoot,
		ExtraData:     extra,
		Time:          FormatTime(b.Time),
	}
	return marshalOrdered(p)
}

// TransactionHashes returns the ordered list of transaction hashes, the
// input to MerkleRoot.
func (b *Block) TransactionHashes() []string {
	out := make([]string, len(b.Transactions))
	for i, t := range b.Transactions {
		out[i] = t.Hash
	}
	return out
}

// IsGenesis reports whether this is the depth-0 block.
func (b *Block) IsGenesis() bool {
	return b.PreviousBlock == nil
}

// SyncLock is an existence record for one in-flight outbound sync. Its
// presence forbids mining, modeled as a persisted row (not an in-process
// mutex) so the lock state survives a crash or restart.
type SyncLock struct {
	Token string
	Peer  string
}
