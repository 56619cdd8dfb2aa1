package chain

import (
	"encoding/base64"
	"fmt"

	"github.com/boocoin/boocoin/common"
)

// WireTransaction is the JSON shape transactions take over HTTP: fields
// line up with spec.md §6's submit_transaction body and the p2p transaction
// payload. extra_data is base64 here (unlike the hex used inside the hash
// preimage) per the wire-encoding rule in spec.md §6.
type WireTransaction struct {
	Block     *string       `json:"block,omitempty"`
	FromAcc   *string       `json:"from_account"`
	ToAcc     string        `json:"to_account"`
	Coins     common.Amount `json:"coins"`
	ExtraData *string       `json:"extra_data,omitempty"`
	Time      string        `json:"time"`
	Hash      string        `json:"hash"`
	Signature string        `json:"signature"`
}

// ToWireTransaction converts a committed transaction to its wire form.
func ToWireTransaction(t Transaction) WireTransaction {
	w := toWireContent(t.Content)
	w.Hash = t.Hash
	w.Signature = t.Signature
	block := t.Block
	w.Block = &block
	return w
}

// ToWireUnconfirmed converts an unconfirmed transaction to its wire form.
func ToWireUnconfirmed(t UnconfirmedTransaction) WireTransaction {
	w := toWireContent(t.Content)
	w.Hash = t.Hash
	w.Signature = t.Signature
	return w
}

func toWireContent(c TxContent) WireTransaction {
	w := WireTransaction{
		FromAcc: c.From,
		ToAcc:   c.To,
		Coins:   c.Coins,
		Time:    FormatTime(c.Time),
	}
	if len(c.ExtraData) > 0 {
		enc := base64.StdEncoding.EncodeToString(c.ExtraData)
		w.ExtraData = &enc
	}
	return w
}

// Content reconstructs the TxContent carried by this wire transaction.
func (w WireTransaction) Content() (TxContent, error) {
	t, err := ParseTime(w.Time)
	if err != nil {
		return TxContent{}, fmt.Errorf("parsing transaction time: %w", err)
	}
	var extra []byte
	if w.ExtraData != nil && *w.ExtraData != "" {
		extra, err = base64.StdEncoding.DecodeString(*w.ExtraData)
		if err != nil {
			return TxContent{}, fmt.Errorf("decoding extra_data: %w", err)
		}
	}
	return TxContent{
		From:      w.FromAcc,
		To:        w.ToAcc,
		Coins:     w.Coins,
		ExtraData: extra,
		Time:      t,
	}, nil
}

// ToUnconfirmed reconstructs the domain UnconfirmedTransaction.
func (w WireTransaction) ToUnconfirmed() (UnconfirmedTransaction, error) {
	content, err := w.Content()
	if err != nil {
		return UnconfirmedTransaction{}, err
	}
	return UnconfirmedTransaction{Hash: w.Hash, Content: content, Signature: w.Signature}, nil
}

// ToTransaction reconstructs the domain Transaction; the block id must be
// present on the wire payload.
func (w WireTransaction) ToTransaction() (Transaction, error) {
	content, err := w.Content()
	if err != nil {
		return Transaction{}, err
	}
	if w.Block == nil {
		return Transaction{}, fmt.Errorf("wire transaction missing block reference")
	}
	return Transaction{Hash: w.Hash, Block: *w.Block, Content: content, Signature: w.Signature}, nil
}

// WireBlock is the JSON shape a block takes over HTTP, with its
// transactions nested in order.
type WireBlock struct {
	ID            string            `json:"id"`
	PreviousBlock *string           `json:"previous_block"`
	Depth         uint64            `json:"depth"`
	Miner         string            `json:"miner"`
	Balances      *Balances         `json:"balances"`
	MerkleRoot    string            `json:"merkle_root"`
	ExtraData     *string           `json:"extra_data,omitempty"`
	Time          string            `json:"time"`
	Signature     string            `json:"signature"`
	Transactions  []WireTransaction `json:"transactions"`
}

// ToWireBlock converts a committed block to its wire form.
func ToWireBlock(b *Block) WireBlock {
	w := WireBlock{
		ID:            b.ID,
		PreviousBlock: b.PreviousBlock,
		Depth:         b.Depth,
		Miner:         b.Miner,
		Balances:      b.Balances,
		MerkleRoot:    b.MerkleRoot,
		Time:          FormatTime(b.Time),
		Signature:     b.Signature,
	}
	if len(b.ExtraData) > 0 {
		enc := base64.StdEncoding.EncodeToString(b.ExtraData)
		w.ExtraData = &enc
	}
	for _, t := range b.Transactions {
		w.Transactions = append(w.Transactions, ToWireTransaction(t))
	}
	return w
}

// ToBlock reconstructs the domain Block (with its transactions) from a
// wire payload, e.g. one pulled from a peer's /p2p/blocks/ response.
func (w WireBlock) ToBlock() (*Block, []Transaction, error) {
	t, err := ParseTime(w.Time)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing block time: %w", err)
	}
	var extra []byte
	if w.ExtraData != nil && *w.ExtraData != "" {
		extra, err = base64.StdEncoding.DecodeString(*w.ExtraData)
		if err != nil {
			return nil, nil, fmt.Errorf("decoding block extra_data: %w", err)
		}
	}
	b := &Block{
		ID:            w.ID,
		PreviousBlock: w.PreviousBlock,
		Depth:         w.Depth,
		Miner:         w.Miner,
		Balances:      w.Balances,
		MerkleRoot:    w.MerkleRoot,
		ExtraData:     extra,
		Time:          t,
		Signature:     w.Signature,
	}
	txs := make([]Transaction, 0, len(w.Transactions))
	for _, wt := range w.Transactions {
		tx, err := wt.ToTransaction()
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, tx)
	}
	b.Transactions = txs
	return b, txs, nil
}
