package grandpa

import (
	"bytes"
	"fmt"
	"sort"

	codec "github.com/ComposableFi/go-substrate-rpc-client/v4/scale"
	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
	"go.uber.org/multierr"
)

// HeaderTypeURL names the GRANDPA header variant among the light client
// header types carried by the transport layer.
const HeaderTypeURL = "/ibc.lightclients.grandpa.v1.Header"

// Header is the client message the counterparty light client state machine
// consumes: parachain headers with a GRANDPA finality proof. It is the
// in-memory twin of ParachainHeadersWithFinalityProof, owned by the client
// model and convertible to and from the transport form.
type Header struct {
	// FinalityProof contains the relay chain headers finalized since the
	// last known finalized GRANDPA block.
	FinalityProof FinalityProof
	// ParachainHeaders maps relay chain header hashes to the proofs for the
	// parachain header finalized at that relay chain height.
	ParachainHeaders map[rpcclienttypes.Hash]ParachainHeaderProofs
}

// ClientType returns the type URL naming this header variant.
func (h *Header) ClientType() string { return HeaderTypeURL }

// Height panics: a bundle spanning several relay and parachain blocks has no
// single representative height. Callers derive one from the decoded contents
// of ParachainHeaders instead.
func (h *Header) Height() uint64 {
	panic("grandpa: height is ambiguous for a multi-block header, derive it from ParachainHeaders")
}

// ValidateBasic runs the structural checks that need no chain access:
// a justification must be present and the unknown headers must form a
// contiguous parent chain starting at the finalized block.
func (h *Header) ValidateBasic() error {
	var errs error
	if len(h.FinalityProof.Justification) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: justification", ErrMissingField))
	}

	unknown := h.FinalityProof.UnknownHeaders
	if len(unknown) == 0 {
		return multierr.Append(errs, fmt.Errorf("%w: unknown headers", ErrMissingField))
	}

	first, err := HeaderHash(&unknown[0])
	if err != nil {
		return multierr.Append(errs, err)
	}
	if first != h.FinalityProof.Block {
		errs = multierr.Append(errs, fmt.Errorf(
			"first unknown header %s does not hash to the finalized block %s",
			first.Hex(), h.FinalityProof.Block.Hex(),
		))
	}

	for i := 0; i+1 < len(unknown); i++ {
		parent, err := HeaderHash(&unknown[i+1])
		if err != nil {
			return multierr.Append(errs, err)
		}
		if unknown[i].ParentHash != parent {
			errs = multierr.Append(errs, fmt.Errorf(
				"unknown headers are not a contiguous parent chain at index %d", i,
			))
		}
	}
	return errs
}

// HeaderFromRaw converts the transport representation into a Header. Hash
// fields must be exactly 32 bytes and every unknown header must SCALE decode;
// any violation fails the whole conversion without constructing a partial
// header.
func HeaderFromRaw(raw *RawHeader) (*Header, error) {
	if raw.FinalityProof == nil {
		return nil, fmt.Errorf("%w: finality proof", ErrMissingField)
	}

	block, err := hashFromBytes(raw.FinalityProof.Block)
	if err != nil {
		return nil, err
	}

	parachainHeaders := make(map[rpcclienttypes.Hash]ParachainHeaderProofs, len(raw.ParachainHeaders))
	for _, entry := range raw.ParachainHeaders {
		relayHash, err := hashFromBytes(entry.RelayHash)
		if err != nil {
			return nil, err
		}
		if entry.ParachainHeader == nil {
			return nil, fmt.Errorf("%w: parachain header proofs for %s", ErrMissingField, relayHash.Hex())
		}
		parachainHeaders[relayHash] = ParachainHeaderProofs{
			StateProof:     entry.ParachainHeader.StateProof,
			Extrinsic:      entry.ParachainHeader.Extrinsic,
			ExtrinsicProof: entry.ParachainHeader.ExtrinsicProof,
		}
	}

	unknownHeaders := make([]rpcclienttypes.Header, len(raw.FinalityProof.UnknownHeaders))
	for i, enc := range raw.FinalityProof.UnknownHeaders {
		if err := codec.NewDecoder(bytes.NewReader(enc)).Decode(&unknownHeaders[i]); err != nil {
			return nil, fmt.Errorf("%w: unknown header at index %d: %v", ErrDecode, i, err)
		}
	}

	return &Header{
		FinalityProof: FinalityProof{
			Block:          block,
			Justification:  raw.FinalityProof.Justification,
			UnknownHeaders: unknownHeaders,
		},
		ParachainHeaders: parachainHeaders,
	}, nil
}

// ToRaw converts the header back into its transport representation. Entries
// are emitted in ascending relay hash order so the encoding is deterministic
// regardless of map iteration order. The only possible failure is a header
// whose digest cannot be SCALE encoded.
func (h *Header) ToRaw() (*RawHeader, error) {
	unknownHeaders := make([][]byte, len(h.FinalityProof.UnknownHeaders))
	for i := range h.FinalityProof.UnknownHeaders {
		enc, err := rpcclienttypes.Encode(h.FinalityProof.UnknownHeaders[i])
		if err != nil {
			return nil, fmt.Errorf("encoding unknown header at index %d: %w", i, err)
		}
		unknownHeaders[i] = enc
	}

	hashes := make([]rpcclienttypes.Hash, 0, len(h.ParachainHeaders))
	for hash := range h.ParachainHeaders {
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})

	parachainHeaders := make([]RawParachainHeaderEntry, len(hashes))
	for i := range hashes {
		hash := hashes[i]
		proofs := h.ParachainHeaders[hash]
		parachainHeaders[i] = RawParachainHeaderEntry{
			RelayHash: hash[:],
			ParachainHeader: &RawParachainHeaderProofs{
				StateProof:     proofs.StateProof,
				Extrinsic:      proofs.Extrinsic,
				ExtrinsicProof: proofs.ExtrinsicProof,
			},
		}
	}

	return &RawHeader{
		FinalityProof: &RawFinalityProof{
			Block:          h.FinalityProof.Block[:],
			Justification:  h.FinalityProof.Justification,
			UnknownHeaders: unknownHeaders,
		},
		ParachainHeaders: parachainHeaders,
	}, nil
}

func hashFromBytes(b []byte) (rpcclienttypes.Hash, error) {
	if len(b) != 32 {
		return rpcclienttypes.Hash{}, fmt.Errorf("%w: invalid hash with length: %d", ErrDecode, len(b))
	}
	return rpcclienttypes.NewHash(b), nil
}
