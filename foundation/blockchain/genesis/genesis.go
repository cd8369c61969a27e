// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
)

// Genesis represents the genesis file. These values are a network wide
// agreement and every node must run with the same ones.
type Genesis struct {
	ChainID       uint16 `json:"chain_id"`        // The chain id represents an unique id for this running network.
	Date          uint64 `json:"date"`            // Fixed timestamp for the genesis block so its hash is a constant.
	Difficulty    uint16 `json:"difficulty"`      // Number of leading 0 hex digits needed to solve the work problem.
	MiningReward  uint64 `json:"mining_reward"`   // Subsidy minted by the coinbase transaction of every block.
	BeneficiaryID string `json:"beneficiary"`     // Address receiving the fixed genesis coinbase.
	TransPerBlock uint16 `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
