package prover

import (
	"context"

	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
)

// TimestampExtWithProof is a block's timestamp inherent together with its
// trie inclusion proof.
type TimestampExtWithProof struct {
	Extrinsic []byte
	Proof     [][]byte
}

// ChainClient is the RPC surface the prover consumes, one handle per chain.
// Implementations own timeouts and cancellation; the prover propagates their
// failures without retrying. Handles must be safe for concurrent use across
// independent calls.
type ChainClient interface {
	// Header fetches the header with the given hash.
	Header(ctx context.Context, hash rpcclienttypes.Hash) (*rpcclienttypes.Header, error)

	// FinalizedHead returns the hash of the latest finalized block.
	FinalizedHead(ctx context.Context) (rpcclienttypes.Hash, error)

	// ParachainHead returns the head data bytes committed for the parachain
	// at the given relay block.
	ParachainHead(ctx context.Context, paraID uint32, at rpcclienttypes.Hash) ([]byte, error)

	// QueryStorageChanges reports the blocks between from and to at which
	// any of the keys changed, in ascending block order.
	QueryStorageChanges(ctx context.Context, keys []rpcclienttypes.StorageKey, from, to rpcclienttypes.Hash) ([]rpcclienttypes.StorageChangeSet, error)

	// ReadProof fetches a storage inclusion proof for the keys at a block.
	ReadProof(ctx context.Context, keys []rpcclienttypes.StorageKey, at rpcclienttypes.Hash) ([][]byte, error)

	// ProveFinality returns the encoded finality proof for the given block
	// number, or nil when the node has none.
	ProveFinality(ctx context.Context, blockNumber uint32) ([]byte, error)

	// TimestampExtrinsicWithProof returns the timestamp inherent of the
	// block with the given hash and its inclusion proof.
	TimestampExtrinsicWithProof(ctx context.Context, at rpcclienttypes.Hash) (*TimestampExtWithProof, error)
}
