package crypto

import (
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/boocoin/boocoin/common"
)

// H hashes bytes with SHA3-256, returning lowercase hex.
func H(data []byte) string {
	sum := sha3.Sum256(data)
	return common.ToHex(sum[:])
}

// HHex is a convenience wrapper for hashing a UTF-8 string.
func HHex(s string) string {
	return H([]byte(s))
}

// MerkleRoot computes the standard binary Merkle root over a sequence of
// hex-encoded SHA3-256 hashes, duplicating the last node when a level has an
// odd count. The empty input is a defined error: every block has at least
// one transaction (the reward), so this should never occur in practice.
func MerkleRoot(hashes []string) (string, error) {
	if len(hashes) == 0 {
		return "", fmt.Errorf("merkle root of empty transaction set")
	}
	level := make([][]byte, len(hashes))
	for i, h := range hashes {
		b, err := common.FromHex(h)
		if err != nil {
			return "", fmt.Errorf("decoding hash %q: %w", h, err)
		}
		level[i] = b
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := append(append([]byte{}, level[i]...), level[i+1]...)
			sum := sha3.Sum256(combined)
			next = append(next, sum[:])
		}
		level = next
	}
	return common.ToHex(level[0]), nil
}
