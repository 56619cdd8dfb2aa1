package miner

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

type fakeStore struct {
	blocks      map[string]*chain.Block
	genesis     *chain.Block
	active      *chain.Block
	unconfirmed []chain.UnconfirmedTransaction
	syncLocks   int
	committed   []*chain.Block
	deletedAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: map[string]*chain.Block{}}
}

func (s *fakeStore) SyncLocksCount() (int, error)    { return s.syncLocks, nil }
func (s *fakeStore) GetActiveBlock() (*chain.Block, error) { return s.active, nil }
func (s *fakeStore) GetGenesis() (*chain.Block, error)     { return s.genesis, nil }
func (s *fakeStore) GetBlock(id string) (*chain.Block, error) {
	return s.blocks[id], nil
}
func (s *fakeStore) HasTransactionInChain(startBlockID, txHash string) (bool, error) {
	id := startBlockID
	for i := 0; i < 100 && id != ""; i++ {
		b, ok := s.blocks[id]
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
func (s *fakeStore) CountUnconfirmed() (int, error) { return len(s.unconfirmed), nil }
func (s *fakeStore) AllUnconfirmed() ([]chain.UnconfirmedTransaction, error) {
	return s.unconfirmed, nil
}
func (s *fakeStore) DeleteUnconfirmed(hashes []string) error {
	del := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		del[h] = true
	}
	var kept []chain.UnconfirmedTransaction
	for _, u := range s.unconfirmed {
		if !del[u.Hash] {
			kept = append(kept, u)
		}
	}
	s.unconfirmed = kept
	return nil
}
func (s *fakeStore) DeleteAllUnconfirmed() error {
	s.unconfirmed = nil
	s.deletedAll = true
	return nil
}
func (s *fakeStore) CommitBlock(block *chain.Block) error {
	s.blocks[block.ID] = block
	s.committed = append(s.committed, block)
	s.active = block
	return nil
}

type fakeBroadcaster struct {
	broadcast []*chain.Block
}

func (b *fakeBroadcaster) BroadcastBlock(block *chain.Block) {
	b.broadcast = append(b.broadcast, block)
}

func buildMinerGenesis(t *testing.T, minerSK, minerPK, walletPK string, age time.Duration) *chain.Block {
	t.Helper()
	reward := chain.TxContent{To: walletPK, Coins: rewardAmount, Time: time.Now().Add(-age).UTC()}
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
		Time:         time.Now().Add(-age).UTC(),
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

func TestIsTimeToMineByCountThreshold(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 10; i++ {
		store.unconfirmed = append(store.unconfirmed, chain.UnconfirmedTransaction{Hash: "h"})
	}
	store.active = &chain.Block{Time: time.Now()}
	m := New(store, nil, "miner-pk", "miner-sk", "wallet-pk", nil)

	yes, err := m.IsTimeToMine()
	require.NoError(t, err)
	assert.True(t, yes)
}

func TestIsTimeToMineByAgeThreshold(t *testing.T) {
	store := newFakeStore()
	store.active = &chain.Block{Time: time.Now().Add(-11 * time.Minute)}
	m := New(store, nil, "miner-pk", "miner-sk", "wallet-pk", nil)

	yes, err := m.IsTimeToMine()
	require.NoError(t, err)
	assert.True(t, yes)
}

func TestIsTimeToMineFalseWhenNeitherThresholdCrossed(t *testing.T) {
	store := newFakeStore()
	store.active = &chain.Block{Time: time.Now()}
	m := New(store, nil, "miner-pk", "miner-sk", "wallet-pk", nil)

	yes, err := m.IsTimeToMine()
	require.NoError(t, err)
	assert.False(t, yes)
}

func TestIsTimeToMineFalseWithNoActiveBlock(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil, "miner-pk", "miner-sk", "wallet-pk", nil)

	yes, err := m.IsTimeToMine()
	require.NoError(t, err)
	assert.False(t, yes)
}

func TestMineBlockAssemblesValidatesCommitsAndBroadcasts(t *testing.T) {
	minerSK, minerPK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	aliceSK, alicePK, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	genesis := buildMinerGenesis(t, minerSK, minerPK, "wallet", 20*time.Minute)
	genesis.Balances.Set(alicePK, common.MustParseAmount("50.00000000"))
	store.blocks[genesis.ID] = genesis
	store.genesis = genesis
	store.active = genesis

	content := chain.TxContent{From: &alicePK, To: "bob", Coins: common.MustParseAmount("1.00000000"), Time: time.Now().UTC()}
	hash, err := content.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, aliceSK)
	require.NoError(t, err)
	store.unconfirmed = []chain.UnconfirmedTransaction{{Hash: hash, Content: content, Signature: sig}}

	broadcaster := &fakeBroadcaster{}
	m := New(store, broadcaster, minerPK, minerSK, "wallet", nil)

	err = m.MineBlock()
	require.NoError(t, err)

	require.Len(t, store.committed, 1)
	mined := store.committed[0]
	assert.Equal(t, genesis.ID, *mined.PreviousBlock)
	require.Len(t, mined.Transactions, 2)
	assert.Equal(t, chain.RewardSignature, mined.Transactions[0].Signature)
	assert.Equal(t, hash, mined.Transactions[1].Hash)
	assert.True(t, store.deletedAll)
	require.Len(t, broadcaster.broadcast, 1)
	assert.Equal(t, mined.ID, broadcaster.broadcast[0].ID)
}

func TestMineBlockSkipsWhileSyncInFlight(t *testing.T) {
	store := newFakeStore()
	store.syncLocks = 1
	m := New(store, nil, "miner-pk", "miner-sk", "wallet", nil)

	err := m.MineBlock()
	assert.NoError(t, err)
	assert.Len(t, store.committed, 0)
}

func TestMineBlockErrorsWithoutActiveBlock(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil, "miner-pk", "miner-sk", "wallet", nil)

	err := m.MineBlock()
	require.Error(t, err)
}

func TestPruneInvalidDropsFailingTransactionsAndReturnsSurvivors(t *testing.T) {
	aliceSK, alicePK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, bobPK, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	base := chain.NewBalances()
	base.Set(alicePK, common.MustParseAmount("5.00000000"))

	good := chain.TxContent{From: &alicePK, To: bobPK, Coins: common.MustParseAmount("3.00000000"), Time: time.Now().UTC()}
	goodHash, err := good.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	goodSig, err := crypto.Sign(goodHash, aliceSK)
	require.NoError(t, err)

	// Insufficient funds once "good" has already spent most of the balance.
	bad := chain.TxContent{From: &alicePK, To: bobPK, Coins: common.MustParseAmount("4.00000000"), Time: time.Now().UTC()}
	badHash, err := bad.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	badSig, err := crypto.Sign(badHash, aliceSK)
	require.NoError(t, err)

	store := newFakeStore()
	store.unconfirmed = []chain.UnconfirmedTransaction{
		{Hash: goodHash, Content: good, Signature: goodSig},
		{Hash: badHash, Content: bad, Signature: badSig},
	}
	m := New(store, nil, "miner-pk", "miner-sk", "wallet", nil)

	survivors, balances, err := m.pruneInvalid(base, store.unconfirmed)
	require.NoError(t, err)
	require.Len(t, survivors, 1)
	assert.Equal(t, goodHash, survivors[0].Hash)
	assert.Equal(t, "2.00000000", balances.Get(alicePK).String())
	assert.Equal(t, "3.00000000", balances.Get(bobPK).String())

	// The dropped transaction was deleted from the mempool, the kept one was not.
	assert.Len(t, store.unconfirmed, 1)
	assert.Equal(t, goodHash, store.unconfirmed[0].Hash)
}
