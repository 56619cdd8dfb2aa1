package chain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/boocoin/boocoin/common"
)

// Balances is an order-preserving account->amount map. Insertion order
// matters: it is part of a block's canonical preimage ("balances is the
// exact JSON string stored on the block; key order = insertion order from
// mining"), so every node that replays the same transactions in the same
// order must produce byte-identical JSON.
type Balances struct {
	order []string
	byAcc map[string]common.Amount
}

// NewBalances returns an empty balances map.
func NewBalances() *Balances {
	return &Balances{byAcc: make(map[string]common.Amount)}
}

// Get returns the balance for account, or zero if the account has never
// been touched.
func (b *Balances) Get(account string) common.Amount {
	if b == nil {
		return common.Zero()
	}
	if amt, ok := b.byAcc[account]; ok {
		return amt
	}
	return common.Zero()
}

// Set assigns account's balance, appending it to the insertion order the
// first time the account is seen.
func (b *Balances) Set(account string, amount common.Amount) {
	if _, ok := b.byAcc[account]; !ok {
		b.order = append(b.order, account)
	}
	b.byAcc[account] = amount
}

// Accounts returns the accounts in insertion order.
func (b *Balances) Accounts() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Clone returns a deep copy; callers mutate the clone, never the original,
// preserving the "apply returns a new map" contract from the ledger spec.
func (b *Balances) Clone() *Balances {
	cp := NewBalances()
	if b == nil {
		return cp
	}
	for _, acc := range b.order {
		cp.Set(acc, b.byAcc[acc])
	}
	return cp
}

// MarshalJSON renders the balances as a JSON object with keys in insertion
// order. encoding/json does not guarantee map key ordering, so this walks
// the order slice explicitly.
func (b *Balances) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, acc := range b.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(acc)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(b.byAcc[acc])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reconstructs the balances, preserving the key order present
// in the JSON object (needed so a balances map round-tripped through
// storage still hashes to the same preimage it was written with).
func (b *Balances) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected balances object")
	}
	*b = *NewBalances()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key in balances object")
		}
		var amt common.Amount
		if err := dec.Decode(&amt); err != nil {
			return err
		}
		b.Set(key, amt)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
