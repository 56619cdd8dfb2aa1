// Package crypto implements the cryptographic primitives the ledger is
// built on: keypair generation, signing, verification, content hashing, and
// the Merkle root over a block's transaction hashes.
//
// Keys are secp256k1, the curve every geth-family repo in this project's
// lineage standardizes on. The original boocoin used Python's NIST192p
// (96-hex keys, 96-hex signatures); Go's ecosystem has no equivalent curve
// readily available, so secp256k1 is substituted — every functional
// invariant (hash self-consistency, verify-never-panics, deterministic
// verification) carries over unchanged, only the byte lengths differ
// (33-byte compressed public keys, 64-byte raw signatures).
package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/boocoin/boocoin/common"
)

// GenerateKeypair returns a fresh (privateKeyHex, publicKeyHex) pair drawn
// from a cryptographically secure randomness source.
func GenerateKeypair() (skHex string, pkHex string, err error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("generating keypair: %w", err)
	}
	pk := sk.PubKey()
	return common.ToHex(sk.Serialize()), common.ToHex(pk.SerializeCompressed()), nil
}

// Sign signs content with sk, returning a hex-encoded raw (R||S) signature.
func Sign(content string, skHex string) (string, error) {
	skBytes, err := common.FromHex(skHex)
	if err != nil {
		return "", fmt.Errorf("decoding private key: %w", err)
	}
	sk := secp256k1.PrivKeyFromBytes(skBytes)
	digest := H([]byte(content))
	digestBytes, err := common.FromHex(digest)
	if err != nil {
		return "", err
	}
	sig := ecdsa.SignCompact(sk, digestBytes, false)
	// SignCompact prepends a 1-byte recovery header; the wire signature is
	// the raw 64-byte (R||S) body so sig_hex length is stable regardless of
	// recovery id.
	return common.ToHex(sig[1:]), nil
}

// Verify reports whether sig is a valid signature over content by the
// holder of pkHex. It never panics: any decode failure, bad length, or
// signature mismatch simply yields false.
func Verify(content string, pkHex string, sigHex string) bool {
	pkBytes, err := common.FromHex(pkHex)
	if err != nil {
		return false
	}
	sigBytes, err := common.FromHex(sigHex)
	if err != nil || len(sigBytes) != 64 {
		return false
	}
	pk, err := secp256k1.ParsePubKey(pkBytes)
	if err != nil {
		return false
	}
	r := new(secp256k1.ModNScalar)
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow {
		return false
	}
	s := new(secp256k1.ModNScalar)
	if overflow := s.SetByteSlice(sigBytes[32:]); overflow {
		return false
	}
	sig := ecdsa.NewSignature(r, s)

	digest := H([]byte(content))
	digestBytes, err := common.FromHex(digest)
	if err != nil {
		return false
	}
	return sig.Verify(digestBytes, pk)
}
