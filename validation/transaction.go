// Package validation implements the structural and semantic checks that
// decide whether a transaction or block may join the chain: C4 in the
// component table.
package validation

import (
	"time"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/crypto"
	"github.com/boocoin/boocoin/ledger"
)

// clockSkew is the small allowance for "non-future" transaction/block
// timestamps (spec.md's epsilon). Zero would also be acceptable; a small
// positive value tolerates ordinary clock drift between peers.
const clockSkew = 5 * time.Second

// rewardAmount is the fixed payout of every block-reward transaction.
var rewardAmount = common.MustParseAmount("100.00000000")

// ValidateTransaction runs the full transaction check sequence from
// spec.md §4.4 against balances, returning the first failing reason.
// firstInBlock marks this as the block's reward transaction (index 0).
func ValidateTransaction(balances *chain.Balances, tx chain.TxContent, hash string, signature string, firstInBlock bool) error {
	gotHash, err := tx.ComputeHash(crypto.HHex)
	if err != nil {
		return &common.InvalidTransactionError{Reason: "failed to compute hash: " + err.Error()}
	}
	if gotHash != hash {
		return &common.InvalidTransactionError{Reason: "hash mismatch"}
	}
	if tx.Time.After(time.Now().Add(clockSkew)) {
		return &common.InvalidTransactionError{Reason: "transaction time is in the future"}
	}
	if tx.To == "" {
		return &common.InvalidTransactionError{Reason: "to_account is required"}
	}

	if firstInBlock {
		if tx.From != nil {
			return &common.InvalidTransactionError{Reason: "block reward must not have a from_account"}
		}
		if tx.Coins.Cmp(rewardAmount) != 0 {
			return &common.InvalidTransactionError{Reason: "block reward must be exactly 100.00000000 coins"}
		}
		if signature != chain.RewardSignature {
			return &common.InvalidTransactionError{Reason: "block reward must carry the reward sentinel signature"}
		}
	} else {
		if tx.From == nil || *tx.From == "" {
			return &common.InvalidTransactionError{Reason: "from_account is required"}
		}
		if *tx.From == tx.To {
			return &common.InvalidTransactionError{Reason: "from_account and to_account must differ"}
		}
		if !crypto.Verify(hash, *tx.From, signature) {
			return &common.InvalidTransactionError{Reason: "signature does not verify"}
		}
	}

	if !tx.Coins.IsPositive() {
		return &common.InvalidTransactionError{Reason: "coins must be positive"}
	}

	if _, err := ledger.ApplyTx(balances, tx); err != nil {
		return &common.InvalidTransactionError{Reason: err.Error()}
	}
	return nil
}
