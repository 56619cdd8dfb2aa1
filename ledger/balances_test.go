package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
)

func newTx(from *string, to string, coins string) chain.TxContent {
	return chain.TxContent{
		From:  from,
		To:    to,
		Coins: common.MustParseAmount(coins),
		Time:  time.Now().UTC(),
	}
}

func strPtr(s string) *string { return &s }

func TestApplyTxRewardCredits(t *testing.T) {
	balances := chain.NewBalances()
	tx := newTx(nil, "alice", "100.00000000")

	next, err := ApplyTx(balances, tx)
	require.NoError(t, err)
	assert.Equal(t, 0, next.Get("alice").Cmp(common.MustParseAmount("100.00000000")))
	// original map is untouched
	assert.Equal(t, 0, balances.Get("alice").Cmp(common.Zero()))
}

func TestApplyTxDebitsAndCredits(t *testing.T) {
	balances := chain.NewBalances()
	balances.Set("alice", common.MustParseAmount("50.00000000"))

	tx := newTx(strPtr("alice"), "bob", "20.00000000")
	next, err := ApplyTx(balances, tx)
	require.NoError(t, err)
	assert.Equal(t, "30.00000000", next.Get("alice").String())
	assert.Equal(t, "20.00000000", next.Get("bob").String())
}

func TestApplyTxInsufficientFunds(t *testing.T) {
	balances := chain.NewBalances()
	balances.Set("alice", common.MustParseAmount("5.00000000"))

	tx := newTx(strPtr("alice"), "bob", "20.00000000")
	_, err := ApplyTx(balances, tx)
	require.Error(t, err)
	var insufficient *common.InsufficientFundsError
	assert.ErrorAs(t, err, &insufficient)
}

func TestApplyTxsStopsAtFirstFailure(t *testing.T) {
	balances := chain.NewBalances()
	balances.Set("alice", common.MustParseAmount("10.00000000"))

	txs := []chain.TxContent{
		newTx(strPtr("alice"), "bob", "5.00000000"),
		newTx(strPtr("alice"), "carol", "1000.00000000"), // fails
		newTx(strPtr("bob"), "carol", "1.00000000"),
	}
	_, err := ApplyTxs(balances, txs)
	require.Error(t, err)
}

func TestApplyTxsAppliesInOrder(t *testing.T) {
	balances := chain.NewBalances()
	balances.Set("alice", common.MustParseAmount("10.00000000"))

	txs := []chain.TxContent{
		newTx(strPtr("alice"), "bob", "5.00000000"),
		newTx(strPtr("bob"), "carol", "2.00000000"),
	}
	final, err := ApplyTxs(balances, txs)
	require.NoError(t, err)
	assert.Equal(t, "5.00000000", final.Get("alice").String())
	assert.Equal(t, "3.00000000", final.Get("bob").String())
	assert.Equal(t, "2.00000000", final.Get("carol").String())
}
