package prover

import (
	"github.com/ChainSafe/gossamer/lib/common"
	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
)

const (
	prefixParas = "Paras"
	methodHeads = "Heads"
)

// parachainHeaderStorageKey derives the Paras.Heads key for a parachain:
// twox128("Paras") ++ twox128("Heads") ++ twox64(id) ++ id, with id SCALE
// encoded. Producer and verifier must derive this key identically.
func parachainHeaderStorageKey(paraID uint32) (rpcclienttypes.StorageKey, error) {
	keyPrefix := rpcclienttypes.CreateStorageKeyPrefix(prefixParas, methodHeads)
	encodedParaID, err := rpcclienttypes.Encode(paraID)
	if err != nil {
		return nil, err
	}

	twoxhash, err := common.Twox64(encodedParaID)
	if err != nil {
		return nil, err
	}
	return rpcclienttypes.StorageKey(append(append(keyPrefix, twoxhash...), encodedParaID...)), nil
}
