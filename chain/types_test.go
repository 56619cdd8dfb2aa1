package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boocoin/boocoin/common"
)

func identityHash(s string) string { return s }

func TestFormatTimeParseTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 34, 56, 123000000, time.UTC)
	s := FormatTime(now)
	assert.Equal(t, "2026-07-29 12:34:56.123000", s)

	parsed, err := ParseTime(s)
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
}

func TestTxContentPreimageIsDeterministicAndKeyOrdered(t *testing.T) {
	from := "alice"
	c := TxContent{
		From:  &from,
		To:    "bob",
		Coins: common.MustParseAmount("1.50000000"),
		Time:  time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC),
	}
	pre1, err := c.Preimage()
	require.NoError(t, err)
	pre2, err := c.Preimage()
	require.NoError(t, err)
	assert.Equal(t, pre1, pre2)

	assert.Equal(t, `{"from_account":"alice","to_account":"bob","coins":"1.50000000","extra_data":null,"time":"2026-07-29 00:00:00.000000"}`, pre1)
}

func TestTxContentPreimageDiffersOnExtraData(t *testing.T) {
	base := TxContent{To: "bob", Coins: common.MustParseAmount("1.00000000"), Time: time.Now().UTC()}
	withExtra := base
	withExtra.ExtraData = []byte("memo")

	p1, err := base.Preimage()
	require.NoError(t, err)
	p2, err := withExtra.Preimage()
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestTxContentComputeHashUsesPreimage(t *testing.T) {
	c := TxContent{To: "bob", Coins: common.MustParseAmount("1.00000000"), Time: time.Now().UTC()}
	pre, err := c.Preimage()
	require.NoError(t, err)
	hash, err := c.ComputeHash(identityHash)
	require.NoError(t, err)
	assert.Equal(t, pre, hash)
}

func TestBlockIsGenesis(t *testing.T) {
	b := &Block{Balances: NewBalances()}
	assert.True(t, b.IsGenesis())

	parent := "abc"
	b.PreviousBlock = &parent
	assert.False(t, b.IsGenesis())
}

func TestBlockTransactionHashesPreservesOrder(t *testing.T) {
	b := &Block{
		Balances: NewBalances(),
		Transactions: []Transaction{
			{Hash: "h1"},
			{Hash: "h2"},
		},
	}
	assert.Equal(t, []string{"h1", "h2"}, b.TransactionHashes())
}

func TestBlockPreimageChangesWithBalances(t *testing.T) {
	b1 := &Block{Balances: NewBalances(), Time: time.Now().UTC()}
	p1, err := b1.Preimage()
	require.NoError(t, err)

	b2 := &Block{Balances: NewBalances(), Time: b1.Time}
	b2.Balances.Set("alice", common.MustParseAmount("1.00000000"))
	p2, err := b2.Preimage()
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestUnconfirmedTransactionMaterialize(t *testing.T) {
	u := UnconfirmedTransaction{Hash: "h1", Content: TxContent{To: "bob"}, Signature: "sig"}
	tx := u.Materialize("block-1")
	assert.Equal(t, "h1", tx.Hash)
	assert.Equal(t, "block-1", tx.Block)
	assert.Equal(t, "sig", tx.Signature)
}
