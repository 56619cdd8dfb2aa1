package validation

import (
	"time"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/crypto"
	"github.com/boocoin/boocoin/ledger"
)

// minTransactionsForFastBlock is "10 user transactions + 1 reward" from
// spec.md's rate-limit rule.
const minTransactionsForFastBlock = 11

// minBlockInterval is the alternative rate-limit path: a block may also be
// produced after enough time has passed since its parent regardless of
// transaction count.
const minBlockInterval = 10 * time.Minute

// ChainReader is the narrow storage surface block validation needs: look
// up a block by id, and check whether a transaction hash already appears
// in an ancestor (cross-block replay detection).
type ChainReader interface {
	GetBlock(id string) (*chain.Block, error)
	HasTransactionInChain(startBlockID string, txHash string) (bool, error)
}

// ValidateBlock runs the nine checks from spec.md §4.4 against a
// freshly-parsed (not yet committed) block and its transactions, in order,
// returning the first failing reason. genesis supplies the authorized
// miner list. A block without previous_block (the genesis block itself) is
// rejected here; validate it with ValidateGenesis instead.
func ValidateBlock(reader ChainReader, genesis *chain.Block, block *chain.Block) error {
	gotID, err := block.Preimage()
	if err != nil {
		return &common.InvalidBlockError{Reason: "failed to compute preimage: " + err.Error()}
	}
	if crypto.HHex(gotID) != block.ID {
		return &common.InvalidBlockError{Reason: "id does not match its own preimage hash"}
	}
	if block.PreviousBlock == nil {
		return &common.InvalidBlockError{Reason: "only the genesis block may omit previous_block; use ValidateGenesis"}
	}

	parent, err := reader.GetBlock(*block.PreviousBlock)
	if err != nil {
		return err
	}
	if parent == nil {
		return &common.UnknownParentError{ParentID: *block.PreviousBlock}
	}
	if block.Depth != parent.Depth+1 {
		return &common.InvalidBlockError{Reason: "depth must be parent depth + 1"}
	}
	if block.Time.After(time.Now().Add(clockSkew)) {
		return &common.InvalidBlockError{Reason: "block time is in the future"}
	}
	if len(block.Transactions) < minTransactionsForFastBlock && block.Time.Sub(parent.Time) < minBlockInterval {
		return &common.InvalidBlockError{Reason: "rate limit: need 11+ transactions or 10+ minutes since parent"}
	}
	if block.Miner == "" {
		return &common.InvalidBlockError{Reason: "miner is required"}
	}
	authorized, err := chain.IsAuthorizedMiner(genesis, block.Miner)
	if err != nil {
		return &common.InvalidBlockError{Reason: "reading authorized miner list: " + err.Error()}
	}
	if !authorized {
		return &common.InvalidBlockError{Reason: "miner is not in the authorized miner list"}
	}
	if !crypto.Verify(block.ID, block.Miner, block.Signature) {
		return &common.InvalidBlockError{Reason: "block signature does not verify"}
	}

	gotRoot, err := crypto.MerkleRoot(block.TransactionHashes())
	if err != nil {
		return &common.InvalidBlockError{Reason: "computing merkle root: " + err.Error()}
	}
	if gotRoot != block.MerkleRoot {
		return &common.InvalidBlockError{Reason: "merkle root mismatch"}
	}

	balances := parent.Balances
	for i, tx := range block.Transactions {
		firstInBlock := i == 0
		if err := ValidateTransaction(balances, tx.Content, tx.Hash, tx.Signature, firstInBlock); err != nil {
			return err
		}
		if !firstInBlock {
			// Stricter than the original: reject any transaction whose hash
			// already appears in this block's parent or any of its ancestors, closing the
			// cross-block replay gap spec.md's Open Questions flags.
			seen, err := reader.HasTransactionInChain(*block.PreviousBlock, tx.Hash)
			if err != nil {
				return err
			}
			if seen {
				return &common.InvalidTransactionError{Reason: "transaction hash already appears in an ancestor block"}
			}
		}
		next, err := ledger.ApplyTx(balances, tx.Content)
		if err != nil {
			return &common.InvalidBlockError{Reason: "applying transaction: " + err.Error()}
		}
		balances = next
	}
	if !balancesEqual(balances, block.Balances) {
		return &common.InvalidBlockError{Reason: "balances do not match the result of replaying transactions"}
	}

	return nil
}

// balancesEqual compares two balances maps by value, ignoring insertion
// order — order only matters for the hash preimage, not for logical
// equality.
func balancesEqual(a, b *chain.Balances) bool {
	aAccounts := a.Accounts()
	bAccounts := b.Accounts()
	if len(aAccounts) != len(bAccounts) {
		return false
	}
	seen := make(map[string]bool, len(aAccounts))
	for _, acc := range aAccounts {
		seen[acc] = true
		if a.Get(acc).Cmp(b.Get(acc)) != 0 {
			return false
		}
	}
	for _, acc := range bAccounts {
		if !seen[acc] {
			return false
		}
	}
	return true
}

// ValidateGenesis validates the single depth-0 block: its own hash,
// signature by one of the miners it itself authorizes, and that its
// balances equal apply_tx({}, reward).
func ValidateGenesis(genesis *chain.Block) error {
	gotID, err := genesis.Preimage()
	if err != nil {
		return &common.InvalidBlockError{Reason: "failed to compute preimage: " + err.Error()}
	}
	if crypto.HHex(gotID) != genesis.ID {
		return &common.InvalidBlockError{Reason: "id does not match its own preimage hash"}
	}
	if genesis.Depth != 0 {
		return &common.InvalidBlockError{Reason: "genesis depth must be 0"}
	}
	miners, err := chain.DecodeMinerList(genesis.ExtraData)
	if err != nil {
		return &common.InvalidBlockError{Reason: err.Error()}
	}
	if len(miners) == 0 {
		return &common.InvalidBlockError{Reason: "genesis must authorize at least one miner"}
	}
	if !crypto.Verify(genesis.ID, genesis.Miner, genesis.Signature) {
		return &common.InvalidBlockError{Reason: "genesis signature does not verify"}
	}
	gotRoot, err := crypto.MerkleRoot(genesis.TransactionHashes())
	if err != nil {
		return &common.InvalidBlockError{Reason: "computing merkle root: " + err.Error()}
	}
	if gotRoot != genesis.MerkleRoot {
		return &common.InvalidBlockError{Reason: "merkle root mismatch"}
	}
	balances := chain.NewBalances()
	for i, tx := range genesis.Transactions {
		if err := ValidateTransaction(balances, tx.Content, tx.Hash, tx.Signature, i == 0); err != nil {
			return err
		}
		next, err := ledger.ApplyTx(balances, tx.Content)
		if err != nil {
			return &common.InvalidBlockError{Reason: "applying transaction: " + err.Error()}
		}
		balances = next
	}
	if !balancesEqual(balances, genesis.Balances) {
		return &common.InvalidBlockError{Reason: "balances do not match the result of replaying transactions"}
	}
	return nil
}
