package prover

import (
	"context"
	"fmt"

	"github.com/ChainSafe/chaindb"
	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/lib/trie"
	"github.com/ChainSafe/gossamer/lib/trie/proof"
	rpcclient "github.com/ComposableFi/go-substrate-rpc-client/v4"
	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"

	"github.com/composablefi/grandpa-prover/grandpa"
)

const (
	methodStateReadProof = "state_getReadProof"
	methodProveFinality  = "grandpa_proveFinality"
)

// RPCChain adapts a substrate RPC connection to the ChainClient surface.
// Timestamp extrinsic proofs are rebuilt locally over an in-memory trie, the
// same way the runtime computes the extrinsics root.
type RPCChain struct {
	api   *rpcclient.SubstrateAPI
	memDB *chaindb.BadgerDB
}

var _ ChainClient = (*RPCChain)(nil)

// NewRPCChain dials the websocket RPC endpoint of a chain.
func NewRPCChain(url string) (*RPCChain, error) {
	api, err := rpcclient.NewSubstrateAPI(url)
	if err != nil {
		return nil, err
	}

	memDB, err := chaindb.NewBadgerDB(&chaindb.Config{InMemory: true})
	if err != nil {
		return nil, err
	}
	return &RPCChain{api: api, memDB: memDB}, nil
}

func (c *RPCChain) Header(_ context.Context, hash rpcclienttypes.Hash) (*rpcclienttypes.Header, error) {
	header, err := c.api.RPC.Chain.GetHeader(hash)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("%w: header %s", grandpa.ErrNotFound, hash.Hex())
	}
	return header, nil
}

func (c *RPCChain) FinalizedHead(_ context.Context) (rpcclienttypes.Hash, error) {
	return c.api.RPC.Chain.GetFinalizedHead()
}

func (c *RPCChain) ParachainHead(_ context.Context, paraID uint32, at rpcclienttypes.Hash) ([]byte, error) {
	key, err := parachainHeaderStorageKey(paraID)
	if err != nil {
		return nil, err
	}

	data, err := c.api.RPC.State.GetStorageRaw(key, at)
	if err != nil {
		return nil, err
	}
	if data == nil || len(*data) == 0 {
		return nil, fmt.Errorf("%w: parachain %d head at %s", grandpa.ErrNotFound, paraID, at.Hex())
	}
	return *data, nil
}

func (c *RPCChain) QueryStorageChanges(
	_ context.Context,
	keys []rpcclienttypes.StorageKey,
	from, to rpcclienttypes.Hash,
) ([]rpcclienttypes.StorageChangeSet, error) {
	return c.api.RPC.State.QueryStorage(keys, from, to)
}

// readProofRPC mirrors the state_getReadProof response shape.
type readProofRPC struct {
	At    string   `json:"at"`
	Proof []string `json:"proof"`
}

func (c *RPCChain) ReadProof(_ context.Context, keys []rpcclienttypes.StorageKey, at rpcclienttypes.Hash) ([][]byte, error) {
	hexKeys := make([]string, len(keys))
	for i, key := range keys {
		hexKeys[i] = key.Hex()
	}

	var rp readProofRPC
	if err := c.api.Client.Call(&rp, methodStateReadProof, hexKeys, at.Hex()); err != nil {
		return nil, err
	}

	proof := make([][]byte, len(rp.Proof))
	for i, node := range rp.Proof {
		b, err := common.HexToBytes(node)
		if err != nil {
			return nil, fmt.Errorf("%w: proof node %d: %v", grandpa.ErrDecode, i, err)
		}
		proof[i] = b
	}
	return proof, nil
}

func (c *RPCChain) ProveFinality(_ context.Context, blockNumber uint32) ([]byte, error) {
	var encoded string
	if err := c.api.Client.Call(&encoded, methodProveFinality, blockNumber); err != nil {
		return nil, err
	}
	if encoded == "" {
		// the node has no justification for this block.
		return nil, nil
	}
	return common.HexToBytes(encoded)
}

// TimestampExtrinsicWithProof fetches the block with the given hash, rebuilds
// its extrinsics trie and proves the inclusion of the timestamp inherent,
// which sits at compact index 0.
func (c *RPCChain) TimestampExtrinsicWithProof(_ context.Context, at rpcclienttypes.Hash) (*TimestampExtWithProof, error) {
	block, err := c.api.RPC.Chain.GetBlock(at)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: block %s", grandpa.ErrNotFound, at.Hex())
	}

	exts := block.Block.Extrinsics
	if len(exts) == 0 {
		return nil, fmt.Errorf("%w: no extrinsics in block %s", grandpa.ErrNotFound, at.Hex())
	}

	encodedExts := make([][]byte, len(exts))
	for i := range exts {
		enc, err := rpcclienttypes.Encode(exts[i])
		if err != nil {
			return nil, err
		}
		encodedExts[i] = enc
	}

	proofNodes, err := extrinsicsTrieProof(c.memDB, encodedExts, 0)
	if err != nil {
		return nil, err
	}
	return &TimestampExtWithProof{Extrinsic: encodedExts[0], Proof: proofNodes}, nil
}

// extrinsicsTrieProof rebuilds the extrinsics trie, keyed by compact encoded
// extrinsic index, and proves the inclusion of the extrinsic at index.
func extrinsicsTrieProof(db chaindb.Database, encodedExts [][]byte, index uint64) ([][]byte, error) {
	t := trie.NewEmptyTrie()
	for i := range encodedExts {
		key, err := rpcclienttypes.Encode(rpcclienttypes.NewUCompactFromUInt(uint64(i)))
		if err != nil {
			return nil, err
		}
		t.Put(key, encodedExts[i])
	}

	rootHash, err := t.Hash()
	if err != nil {
		return nil, err
	}
	if err := t.WriteDirty(db); err != nil {
		return nil, err
	}

	indexKey, err := rpcclienttypes.Encode(rpcclienttypes.NewUCompactFromUInt(index))
	if err != nil {
		return nil, err
	}
	return proof.Generate(rootHash.ToBytes(), [][]byte{indexKey}, db)
}
