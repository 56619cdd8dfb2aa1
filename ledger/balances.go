// Package ledger implements the balance arithmetic and fork-choice rule
// that together define the ledger's derived state: C3 in the component
// table. Nothing here touches storage or the network.
package ledger

import (
	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
)

// ApplyTx returns a new balances map with tx applied on top of balances:
// debiting From (when set) and crediting To. It fails with
// InsufficientFundsError if a non-nil sender's balance would go negative.
// The input map is never mutated.
func ApplyTx(balances *chain.Balances, tx chain.TxContent) (*chain.Balances, error) {
	next := balances.Clone()
	if tx.From != nil {
		senderBalance := next.Get(*tx.From)
		if senderBalance.Cmp(tx.Coins) < 0 {
			return nil, &common.InsufficientFundsError{
				Account: *tx.From,
				Balance: senderBalance,
				Needed:  tx.Coins,
			}
		}
		next.Set(*tx.From, senderBalance.Sub(tx.Coins))
	}
	next.Set(tx.To, next.Get(tx.To).Add(tx.Coins))
	return next, nil
}

// ApplyTxs left-folds ApplyTx over txs in order, stopping at the first
// failure.
func ApplyTxs(balances *chain.Balances, txs []chain.TxContent) (*chain.Balances, error) {
	current := balances
	for _, tx := range txs {
		next, err := ApplyTx(current, tx)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}
