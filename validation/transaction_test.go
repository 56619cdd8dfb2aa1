package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/crypto"
)

func signedTx(t *testing.T, fromSK, fromPK, to, coins string) (chain.TxContent, string, string) {
	t.Helper()
	content := chain.TxContent{
		From:  &fromPK,
		To:    to,
		Coins: common.MustParseAmount(coins),
		Time:  time.Now().UTC(),
	}
	hash, err := content.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, fromSK)
	require.NoError(t, err)
	return content, hash, sig
}

func TestValidateTransactionAccepted(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	balances := chain.NewBalances()
	balances.Set(pk, common.MustParseAmount("100.00000000"))

	content, hash, sig := signedTx(t, sk, pk, "bob", "10.00000000")
	err = ValidateTransaction(balances, content, hash, sig, false)
	assert.NoError(t, err)
}

func TestValidateTransactionRejectsBadSignature(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, pk2, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	balances := chain.NewBalances()
	balances.Set(pk, common.MustParseAmount("100.00000000"))

	content, hash, _ := signedTx(t, sk, pk, "bob", "10.00000000")
	_, badSig, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	// badSig here is a public key, not a signature, but any malformed /
	// mismatched value must fail verification, not panic.
	err = ValidateTransaction(balances, content, hash, badSig+pk2, false)
	require.Error(t, err)
	var invalid *common.InvalidTransactionError
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateTransactionRejectsHashMismatch(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	balances := chain.NewBalances()
	balances.Set(pk, common.MustParseAmount("100.00000000"))

	content, _, sig := signedTx(t, sk, pk, "bob", "10.00000000")
	err = ValidateTransaction(balances, content, "not-the-real-hash", sig, false)
	require.Error(t, err)
}

func TestValidateTransactionRejectsInsufficientFunds(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	balances := chain.NewBalances()
	balances.Set(pk, common.MustParseAmount("1.00000000"))

	content, hash, sig := signedTx(t, sk, pk, "bob", "10.00000000")
	err = ValidateTransaction(balances, content, hash, sig, false)
	require.Error(t, err)
}

func TestValidateTransactionRejectsSelfTransfer(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	balances := chain.NewBalances()
	balances.Set(pk, common.MustParseAmount("100.00000000"))

	content, hash, sig := signedTx(t, sk, pk, pk, "10.00000000")
	err = ValidateTransaction(balances, content, hash, sig, false)
	require.Error(t, err)
}

func TestValidateTransactionRewardRequiresSentinelSignature(t *testing.T) {
	content := chain.TxContent{
		To:    "miner-wallet",
		Coins: rewardAmount,
		Time:  time.Now().UTC(),
	}
	hash, err := content.ComputeHash(crypto.HHex)
	require.NoError(t, err)

	balances := chain.NewBalances()
	err = ValidateTransaction(balances, content, hash, "not-the-sentinel", true)
	require.Error(t, err)

	err = ValidateTransaction(balances, content, hash, chain.RewardSignature, true)
	assert.NoError(t, err)
}

func TestValidateTransactionFutureTimeRejected(t *testing.T) {
	sk, pk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	balances := chain.NewBalances()
	balances.Set(pk, common.MustParseAmount("100.00000000"))

	content := chain.TxContent{
		From:  &pk,
		To:    "bob",
		Coins: common.MustParseAmount("1.00000000"),
		Time:  time.Now().UTC().Add(time.Hour),
	}
	hash, err := content.ComputeHash(crypto.HHex)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, sk)
	require.NoError(t, err)

	err = ValidateTransaction(balances, content, hash, sig, false)
	require.Error(t, err)
}
