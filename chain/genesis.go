package chain

import (
	"encoding/json"
	"fmt"
)

// EncodeMinerList JSON-encodes the authorized miner public keys for storage
// in the genesis block's extra_data.
func EncodeMinerList(miners []string) ([]byte, error) {
	return json.Marshal(miners)
}

// DecodeMinerList reads the authorized miner list back out of a genesis
// block's extra_data.
func DecodeMinerList(extraData []byte) ([]string, error) {
	if len(extraData) == 0 {
		return nil, fmt.Errorf("genesis block has no extra_data")
	}
	var miners []string
	if err := json.Unmarshal(extraData, &miners); err != nil {
		return nil, fmt.Errorf("decoding authorized miner list: %w", err)
	}
	return miners, nil
}

// IsAuthorizedMiner reports whether pubkey appears in the genesis block's
// authorized miner list.
func IsAuthorizedMiner(genesis *Block, pubkey string) (bool, error) {
	miners, err := DecodeMinerList(genesis.ExtraData)
	if err != nil {
		return false, err
	}
	for _, m := range miners {
		if m == pubkey {
			return true, nil
		}
	}
	return false, nil
}
