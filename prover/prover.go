package prover

import (
	"bytes"
	"context"
	"fmt"

	codec "github.com/ComposableFi/go-substrate-rpc-client/v4/scale"
	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/composablefi/grandpa-prover/grandpa"
)

// MaxUnknownHeaders bounds the backward ancestor walk so that an unreachable
// previously-finalized hash surfaces as a chain discontinuity instead of an
// unbounded fetch loop.
const MaxUnknownHeaders = 100_000

// Prover assembles GRANDPA finality proofs for parachain headers committed
// into a relay chain. It holds no mutable state across calls; the chain
// handles are shared and read-only.
type Prover struct {
	log        *zap.Logger
	relayChain ChainClient
	paraChain  ChainClient
	paraID     uint32
}

func NewProver(log *zap.Logger, relayChain, paraChain ChainClient, paraID uint32) *Prover {
	return &Prover{
		log:        log.With(zap.Uint32("para_id", paraID)),
		relayChain: relayChain,
		paraChain:  paraChain,
		paraID:     paraID,
	}
}

// encodedFinalityProof mirrors the SCALE encoding returned by
// grandpa_proveFinality. The unknown headers reported by the node are
// discarded: the prover derives its own parent chain down to the
// counterparty's finalized block.
type encodedFinalityProof struct {
	Block          rpcclienttypes.Hash
	Justification  []byte
	UnknownHeaders []rpcclienttypes.Header
}

// FinalizedParachainHeadersBetween returns the parachain headers committed to
// the relay chain in the window between previousHash and latestHash, in the
// order the underlying storage change events report them. previousHash must
// denote a relay block at or before latestHash.
func (p *Prover) FinalizedParachainHeadersBetween(
	ctx context.Context,
	latestHash, previousHash rpcclienttypes.Hash,
) ([]rpcclienttypes.Header, error) {
	key, err := parachainHeaderStorageKey(p.paraID)
	if err != nil {
		return nil, err
	}

	// we only care about the blocks where our parachain head changed.
	changeSet, err := p.relayChain.QueryStorageChanges(ctx, []rpcclienttypes.StorageKey{key}, previousHash, latestHash)
	if err != nil {
		return nil, err
	}

	headers := make([]rpcclienttypes.Header, 0, len(changeSet))
	for _, changes := range changeSet {
		relayHeader, err := p.relayChain.Header(ctx, changes.Block)
		if err != nil {
			return nil, fmt.Errorf("relay header %s: %w", changes.Block.Hex(), err)
		}

		paraHeader, err := p.parachainHeaderAt(ctx, relayHeader)
		if err != nil {
			return nil, err
		}
		headers = append(headers, paraHeader)
	}
	return headers, nil
}

// FinalizedParachainHeadersWithProof builds the full finality and inclusion
// proof bundle for the given parachain header numbers. previousHash is the
// relay block the counterparty already considers finalized; headerNumbers is
// the set of parachain heights worth proving. Any failure aborts the whole
// call; there is no partial-success mode.
func (p *Prover) FinalizedParachainHeadersWithProof(
	ctx context.Context,
	latestHash, previousHash rpcclienttypes.Hash,
	headerNumbers []rpcclienttypes.BlockNumber,
) (*grandpa.ParachainHeadersWithFinalityProof, error) {
	latestHeader, err := p.relayChain.Header(ctx, latestHash)
	if err != nil {
		return nil, fmt.Errorf("relay header %s: %w", latestHash.Hex(), err)
	}

	encoded, err := p.relayChain.ProveFinality(ctx, uint32(latestHeader.Number))
	if err != nil {
		return nil, err
	}
	if len(encoded) == 0 {
		return nil, fmt.Errorf("%w: no justification for block %s", grandpa.ErrNotFound, latestHash.Hex())
	}

	var proof encodedFinalityProof
	if err := codec.NewDecoder(bytes.NewReader(encoded)).Decode(&proof); err != nil {
		return nil, fmt.Errorf("%w: finality proof for block %s: %v", grandpa.ErrDecode, latestHash.Hex(), err)
	}

	finalityProof := grandpa.FinalityProof{
		Block:         proof.Block,
		Justification: proof.Justification,
	}

	// The ancestor walk and the changeset scan draw on independent RPC
	// surfaces; the bundle reconciles them only by relay block hash, so the
	// two can run side by side.
	var parachainHeaders map[rpcclienttypes.Hash]grandpa.ParachainHeaderProofs
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		unknownHeaders, err := p.collectUnknownHeaders(egCtx, latestHeader, previousHash)
		if err != nil {
			return err
		}
		finalityProof.UnknownHeaders = unknownHeaders
		return nil
	})
	eg.Go(func() error {
		headers, err := p.collectParachainHeaderProofs(egCtx, latestHash, previousHash, headerNumbers)
		if err != nil {
			return err
		}
		parachainHeaders = headers
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &grandpa.ParachainHeadersWithFinalityProof{
		FinalityProof:    finalityProof,
		ParachainHeaders: parachainHeaders,
	}, nil
}

// LatestHeights returns the latest finalized relay chain height and the
// parachain height committed at that relay block.
func (p *Prover) LatestHeights(ctx context.Context) (paraHeight, relayHeight int64, err error) {
	finalizedHash, err := p.relayChain.FinalizedHead(ctx)
	if err != nil {
		return 0, 0, err
	}

	relayHeader, err := p.relayChain.Header(ctx, finalizedHash)
	if err != nil {
		return 0, 0, fmt.Errorf("relay header %s: %w", finalizedHash.Hex(), err)
	}

	headData, err := p.relayChain.ParachainHead(ctx, p.paraID, finalizedHash)
	if err != nil {
		return 0, 0, fmt.Errorf("parachain head at %s: %w", finalizedHash.Hex(), err)
	}
	paraHeader, err := grandpa.DecodeParachainHeader(headData)
	if err != nil {
		return 0, 0, err
	}
	return int64(paraHeader.Number), int64(relayHeader.Number), nil
}

// collectUnknownHeaders walks the parent chain from the finalized header back
// to, but excluding, previousHash. The finalized header itself is always the
// first element.
func (p *Prover) collectUnknownHeaders(
	ctx context.Context,
	latestHeader *rpcclienttypes.Header,
	previousHash rpcclienttypes.Hash,
) ([]rpcclienttypes.Header, error) {
	unknownHeaders := []rpcclienttypes.Header{*latestHeader}
	current := latestHeader.ParentHash
	for current != previousHash {
		if len(unknownHeaders) >= MaxUnknownHeaders {
			return nil, fmt.Errorf("%w: gave up reaching %s after %d headers",
				grandpa.ErrChainDiscontinuity, previousHash.Hex(), len(unknownHeaders))
		}

		header, err := p.relayChain.Header(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("%w: ancestor %s: %v", grandpa.ErrChainDiscontinuity, current.Hex(), err)
		}
		unknownHeaders = append(unknownHeaders, *header)
		current = header.ParentHash
	}
	return unknownHeaders, nil
}

// collectParachainHeaderProofs scans the parachain head changes in the window
// and assembles the per-relay-block inclusion proofs for the requested
// parachain heights.
func (p *Prover) collectParachainHeaderProofs(
	ctx context.Context,
	latestHash, previousHash rpcclienttypes.Hash,
	headerNumbers []rpcclienttypes.BlockNumber,
) (map[rpcclienttypes.Hash]grandpa.ParachainHeaderProofs, error) {
	key, err := parachainHeaderStorageKey(p.paraID)
	if err != nil {
		return nil, err
	}
	keys := []rpcclienttypes.StorageKey{key}

	changeSet, err := p.relayChain.QueryStorageChanges(ctx, keys, previousHash, latestHash)
	if err != nil {
		return nil, err
	}

	parachainHeaders := make(map[rpcclienttypes.Hash]grandpa.ParachainHeaderProofs)
	for _, changes := range changeSet {
		relayHeader, err := p.relayChain.Header(ctx, changes.Block)
		if err != nil {
			return nil, fmt.Errorf("relay header %s: %w", changes.Block.Hex(), err)
		}

		paraHeader, err := p.parachainHeaderAt(ctx, relayHeader)
		if err != nil {
			return nil, err
		}

		// Skip the parachain genesis header and any heights the caller did
		// not ask for; they carry no proof value and bloat the bundle.
		if paraHeader.Number == 0 || !slices.Contains(headerNumbers, paraHeader.Number) {
			continue
		}

		relayHash, err := grandpa.HeaderHash(relayHeader)
		if err != nil {
			return nil, err
		}

		stateProof, err := p.relayChain.ReadProof(ctx, keys, relayHash)
		if err != nil {
			return nil, fmt.Errorf("state proof at %s: %w", relayHash.Hex(), err)
		}

		paraHash, err := grandpa.HeaderHash(&paraHeader)
		if err != nil {
			return nil, err
		}
		ext, err := p.paraChain.TimestampExtrinsicWithProof(ctx, paraHash)
		if err != nil {
			return nil, fmt.Errorf("timestamp extrinsic for parachain block %s: %w", paraHash.Hex(), err)
		}

		// A relay block hash is produced once, so every changeset entry
		// should be unique. Keep last-write-wins semantics but make a
		// duplicate loud.
		if _, ok := parachainHeaders[relayHash]; ok {
			p.log.Warn("Duplicate changeset entry for relay block",
				zap.String("relay_hash", relayHash.Hex()),
			)
		}
		parachainHeaders[relayHash] = grandpa.ParachainHeaderProofs{
			StateProof:     stateProof,
			Extrinsic:      ext.Extrinsic,
			ExtrinsicProof: ext.Proof,
		}
	}
	return parachainHeaders, nil
}

// parachainHeaderAt reads and decodes the parachain head committed at the
// given relay block. The head is present whenever the relay block came out of
// a changeset for the Paras.Heads key.
func (p *Prover) parachainHeaderAt(ctx context.Context, relayHeader *rpcclienttypes.Header) (rpcclienttypes.Header, error) {
	relayHash, err := grandpa.HeaderHash(relayHeader)
	if err != nil {
		return rpcclienttypes.Header{}, err
	}

	headData, err := p.relayChain.ParachainHead(ctx, p.paraID, relayHash)
	if err != nil {
		return rpcclienttypes.Header{}, fmt.Errorf("parachain head at %s: %w", relayHash.Hex(), err)
	}
	return grandpa.DecodeParachainHeader(headData)
}
