package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/crypto"
	"github.com/boocoin/boocoin/ledger"
)

// fakeReader is an in-memory ChainReader for tests: a plain map keyed by
// block id, with HasTransactionInChain walking it the same way storage does.
type fakeReader struct {
	blocks map[string]*chain.Block
}

func newFakeReader() *fakeReader {
	return &fakeReader{blocks: map[string]*chain.Block{}}
}

func (f *fakeReader) add(b *chain.Block) { f.blocks[b.ID] = b }

func (f *fakeReader) GetBlock(id string) (*chain.Block, error) {
	return f.blocks[id], nil
}

func (f *fakeReader) HasTransactionInChain(startBlockID string, txHash string) (bool, error) {
	id := startBlockID
	for i := 0; i < 100 && id != ""; i++ {
		b, ok := f.blocks[id]
		if !ok {
			return false, nil
		}
		for _, tx := range b.Transactions {
			if tx.Hash == txHash {
				return true, nil
			}
		}
		if b.PreviousBlock == nil {
			return false, nil
		}
		id = *b.PreviousBlock
	}
	return false, nil
}

func buildGenesis(t *testing.T, minerSK, minerPK, walletPK string) *chain.Block {
	t.Helper()
	reward := chain.TxContent{To: walletPK, Coins: rewardAmount, Time: time.Now().UTC()}
	hash, err := reward.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	tx := chain.Transaction{Hash: hash, Content: reward, Signature: chain.RewardSignature}

	balances, err := ledger.ApplyTx(chain.NewBalances(), reward)
	require.NoError(t, err)
	root, err := crypto.MerkleRoot([]string{hash})
	require.NoError(t, err)

	extra, err := chain.EncodeMinerList([]string{minerPK})
	require.NoError(t, err)

	b := &chain.Block{
		Depth:        0,
		Miner:        minerPK,
		Balances:     balances,
		MerkleRoot:   root,
		ExtraData:    extra,
		Time:         time.Now().UTC(),
		Transactions: []chain.Transaction{tx},
	}
	pre, err := b.Preimage()
	require.NoError(t, err)
	b.ID = crypto.HHex(pre)
	sig, err := crypto.Sign(b.ID, minerSK)
	require.NoError(t, err)
	b.Signature = sig
	b.Transactions[0].Block = b.ID
	return b
}

func buildChild(t *testing.T, reader *fakeReader, parent *chain.Block, minerSK, minerPK string, txs []chain.Transaction) *chain.Block {
	t.Helper()
	balances := parent.Balances
	for _, tx := range txs {
		next, err := ledger.ApplyTx(balances, tx.Content)
		require.NoError(t, err)
		balances = next
	}
	root, err := crypto.MerkleRoot(hashesOfTest(txs))
	require.NoError(t, err)

	parentID := parent.ID
	b := &chain.Block{
		PreviousBlock: &parentID,
		Depth:         parent.Depth + 1,
		Miner:         minerPK,
		Balances:      balances,
		MerkleRoot:    root,
		Time:          time.Now().UTC(),
		Transactions:  txs,
	}
	pre, err := b.Preimage()
	require.NoError(t, err)
	b.ID = crypto.HHex(pre)
	sig, err := crypto.Sign(b.ID, minerSK)
	require.NoError(t, err)
	b.Signature = sig
	for i := range b.Transactions {
		b.Transactions[i].Block = b.ID
	}
	return b
}

func hashesOfTest(txs []chain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Hash
	}
	return out
}

func rewardTxFor(t *testing.T, walletPK string) chain.Transaction {
	t.Helper()
	content := chain.TxContent{To: walletPK, Coins: rewardAmount, Time: time.Now().UTC()}
	hash, err := content.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	return chain.Transaction{Hash: hash, Content: content, Signature: chain.RewardSignature}
}

func userTxFor(t *testing.T, fromSK, fromPK, to, coins string) chain.Transaction {
	t.Helper()
	content := chain.TxContent{From: &fromPK, To: to, Coins: common.MustParseAmount(coins), Time: time.Now().UTC()}
	hash, err := content.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, fromSK)
	require.NoError(t, err)
	return chain.Transaction{Hash: hash, Content: content, Signature: sig}
}

func TestValidateGenesisAccepted(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	genesis := buildGenesis(t, sk, pk, "wallet")
	assert.NoError(t, ValidateGenesis(genesis))
}

func TestValidateGenesisRejectsUnauthorizedMinerList(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	genesis := buildGenesis(t, sk, pk, "wallet")
	genesis.ExtraData = nil // no authorized miners at all
	// Re-derive the id and signature so the id check passes and the miner
	// list check is what rejects the block.
	pre, err := genesis.Preimage()
	require.NoError(t, err)
	genesis.ID = crypto.HHex(pre)
	genesis.Signature, err = crypto.Sign(genesis.ID, sk)
	require.NoError(t, err)
	err = ValidateGenesis(genesis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra_data")
}

func TestValidateBlockAcceptsFastPathWithElevenTransactions(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	aliceSK, alicePK, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	reader := newFakeReader()
	genesis := buildFundedGenesis(t, sk, pk, "wallet", alicePK, "1000.00000000")
	reader.add(genesis)

	txs := []chain.Transaction{rewardTxFor(t, "wallet")}
	for i := 0; i < 10; i++ {
		txs = append(txs, userTxFor(t, aliceSK, alicePK, "bob", "1.00000000"))
	}
	child := buildChild(t, reader, genesis, sk, pk, txs)

	err = ValidateBlock(reader, genesis, child)
	assert.NoError(t, err)
}

func buildFundedGenesis(t *testing.T, minerSK, minerPK, walletPK, fundedPK, amount string) *chain.Block {
	t.Helper()
	reward := chain.TxContent{To: walletPK, Coins: rewardAmount, Time: time.Now().UTC()}
	hash, err := reward.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	tx := chain.Transaction{Hash: hash, Content: reward, Signature: chain.RewardSignature}

	balances, err := ledger.ApplyTx(chain.NewBalances(), reward)
	require.NoError(t, err)
	balances.Set(fundedPK, common.MustParseAmount(amount))

	root, err := crypto.MerkleRoot([]string{hash})
	require.NoError(t, err)
	extra, err := chain.EncodeMinerList([]string{minerPK})
	require.NoError(t, err)

	b := &chain.Block{
		Depth:        0,
		Miner:        minerPK,
		Balances:     balances,
		MerkleRoot:   root,
		ExtraData:    extra,
		Time:         time.Now().UTC(),
		Transactions: []chain.Transaction{tx},
	}
	pre, err := b.Preimage()
	require.NoError(t, err)
	b.ID = crypto.HHex(pre)
	sig, err := crypto.Sign(b.ID, minerSK)
	require.NoError(t, err)
	b.Signature = sig
	b.Transactions[0].Block = b.ID
	return b
}

func TestValidateBlockRejectsRateLimitViolation(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	genesis := buildGenesis(t, sk, pk, "wallet")
	reader := newFakeReader()
	reader.add(genesis)

	// Only the reward transaction, and no time has passed: violates the
	// rate limit (needs 11+ transactions or 10+ minutes since parent).
	txs := []chain.Transaction{rewardTxFor(t, "wallet")}
	child := buildChild(t, reader, genesis, sk, pk, txs)

	err = ValidateBlock(reader, genesis, child)
	require.Error(t, err)
	var invalid *common.InvalidBlockError
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateBlockRejectsUnauthorizedMiner(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	otherSK, otherPK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	aliceSK, alicePK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	genesis := buildFundedGenesis(t, sk, pk, "wallet", alicePK, "1000.00000000")
	reader := newFakeReader()
	reader.add(genesis)

	// Eleven transactions clear the rate limit, so the miner check is what
	// rejects the block.
	txs := []chain.Transaction{rewardTxFor(t, "wallet")}
	for i := 0; i < 10; i++ {
		txs = append(txs, userTxFor(t, aliceSK, alicePK, "bob", "1.00000000"))
	}
	child := buildChild(t, reader, genesis, otherSK, otherPK, txs)

	err = ValidateBlock(reader, genesis, child)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the authorized miner list")
}

func TestValidateBlockRejectsUnknownParent(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	genesis := buildGenesis(t, sk, pk, "wallet")
	reader := newFakeReader()
	reader.add(genesis)

	txs := []chain.Transaction{rewardTxFor(t, "wallet")}
	child := buildChild(t, reader, genesis, sk, pk, txs)

	// Validate against a reader that has never seen genesis, so the child's
	// (correctly hashed) previous_block is unknown.
	emptyReader := newFakeReader()
	err = ValidateBlock(emptyReader, genesis, child)
	require.Error(t, err)
	var unknown *common.UnknownParentError
	assert.ErrorAs(t, err, &unknown)
}

func TestValidateBlockRejectsCrossBlockReplay(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	aliceSK, alicePK, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	reader := newFakeReader()
	genesis := buildFundedGenesis(t, sk, pk, "wallet", alicePK, "1000.00000000")
	reader.add(genesis)

	replayed := userTxFor(t, aliceSK, alicePK, "bob", "1.00000000")

	// Commit the transaction once, in a block at depth 1.
	sibling := buildChild(t, reader, genesis, sk, pk, append([]chain.Transaction{rewardTxFor(t, "wallet")}, replayed))
	reader.add(sibling)

	// Now try to replay the exact same transaction into a second block whose
	// parent is that block (so the ancestor walk passes through it). Nine
	// further transfers bring it to 11 transactions, clearing the rate limit
	// so that the replay check is what rejects it.
	txs := []chain.Transaction{rewardTxFor(t, "wallet"), replayed}
	for i := 0; i < 9; i++ {
		txs = append(txs, userTxFor(t, aliceSK, alicePK, "carol", "1.00000000"))
	}
	child := buildChild(t, reader, sibling, sk, pk, txs)

	err = ValidateBlock(reader, genesis, child)
	require.Error(t, err)
	var invalid *common.InvalidTransactionError
	assert.ErrorAs(t, err, &invalid)
}
