package grandpa

import (
	"bytes"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/common"
	codec "github.com/ComposableFi/go-substrate-rpc-client/v4/scale"
	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
)

// FinalityProof proves the finality of a relay chain block.
type FinalityProof struct {
	// Block is the hash of the latest relay chain block finalized by
	// Justification.
	Block rpcclienttypes.Hash
	// Justification is the opaque GRANDPA commit. Verifying it is the
	// counterparty light client's job, not ours.
	Justification []byte
	// UnknownHeaders is the contiguous parent chain from Block back to, but
	// excluding, the previously finalized block: UnknownHeaders[0] is the
	// finalized block itself and each entry's parent is the next entry.
	UnknownHeaders []rpcclienttypes.Header
}

// ParachainHeaderProofs carries everything the light client needs to accept a
// parachain header as finalized at a given relay chain block.
type ParachainHeaderProofs struct {
	// StateProof proves the parachain header was committed under the
	// Paras.Heads key at the relay block.
	StateProof [][]byte
	// Extrinsic is the parachain's timestamp inherent, used by the verifier
	// to establish wall-clock ordering of the header.
	Extrinsic []byte
	// ExtrinsicProof proves Extrinsic's inclusion in the parachain block.
	ExtrinsicProof [][]byte
}

// ParachainHeadersWithFinalityProof is the proof bundle the prover assembles
// for a requested set of parachain heights.
type ParachainHeadersWithFinalityProof struct {
	FinalityProof FinalityProof
	// ParachainHeaders maps the relay block hashes inside the proven
	// finality window to the proofs for the parachain header committed there.
	ParachainHeaders map[rpcclienttypes.Hash]ParachainHeaderProofs
}

// HeaderHash returns the blake2b-256 hash of the SCALE encoded header.
func HeaderHash(header *rpcclienttypes.Header) (rpcclienttypes.Hash, error) {
	enc, err := rpcclienttypes.Encode(header)
	if err != nil {
		return rpcclienttypes.Hash{}, err
	}
	hash, err := common.Blake2bHash(enc)
	return rpcclienttypes.Hash(hash), err
}

// DecodeParachainHeader decodes a parachain header from the head data bytes
// committed under the Paras.Heads storage key. Head data wraps the encoded
// header in an opaque byte vector, so decoding happens in two steps.
func DecodeParachainHeader(headData []byte) (rpcclienttypes.Header, error) {
	var raw rpcclienttypes.Bytes
	if err := codec.NewDecoder(bytes.NewReader(headData)).Decode(&raw); err != nil {
		return rpcclienttypes.Header{}, fmt.Errorf("%w: head data: %v", ErrDecode, err)
	}

	var header rpcclienttypes.Header
	if err := codec.NewDecoder(bytes.NewReader(raw)).Decode(&header); err != nil {
		return rpcclienttypes.Header{}, fmt.Errorf("%w: parachain header: %v", ErrDecode, err)
	}
	return header, nil
}

// EncodeParachainHeader is the inverse of DecodeParachainHeader.
func EncodeParachainHeader(header rpcclienttypes.Header) ([]byte, error) {
	enc, err := rpcclienttypes.Encode(header)
	if err != nil {
		return nil, err
	}
	return rpcclienttypes.Encode(rpcclienttypes.NewBytes(enc))
}
