package grandpa

import "fmt"

// The Raw types mirror the transport schema for the GRANDPA header, field for
// field. Only the shape is owned here; byte-level framing belongs to the
// transport layer.

// RawFinalityProof is the transport form of FinalityProof. Block must be a
// 32 byte hash and each unknown header is a SCALE encoded relay chain header.
type RawFinalityProof struct {
	Block          []byte
	Justification  []byte
	UnknownHeaders [][]byte
}

// RawParachainHeaderProofs is the transport form of ParachainHeaderProofs.
type RawParachainHeaderProofs struct {
	StateProof     [][]byte
	Extrinsic      []byte
	ExtrinsicProof [][]byte
}

// RawParachainHeaderEntry pairs a 32 byte relay block hash with the proofs
// for the parachain header committed at that block.
type RawParachainHeaderEntry struct {
	RelayHash       []byte
	ParachainHeader *RawParachainHeaderProofs
}

// RawHeader is the transport form of Header.
type RawHeader struct {
	FinalityProof    *RawFinalityProof
	ParachainHeaders []RawParachainHeaderEntry
}

func (m *RawFinalityProof) Reset() { *m = RawFinalityProof{} }

func (m *RawFinalityProof) String() string {
	return fmt.Sprintf("Block: %x, Justification: %x, UnknownHeaders: %d headers",
		m.Block, m.Justification, len(m.UnknownHeaders))
}

func (*RawFinalityProof) ProtoMessage() {}

func (m *RawParachainHeaderProofs) Reset() { *m = RawParachainHeaderProofs{} }

func (m *RawParachainHeaderProofs) String() string {
	return fmt.Sprintf("StateProof: %d nodes, Extrinsic: %x, ExtrinsicProof: %d nodes",
		len(m.StateProof), m.Extrinsic, len(m.ExtrinsicProof))
}

func (*RawParachainHeaderProofs) ProtoMessage() {}

func (m *RawParachainHeaderEntry) Reset() { *m = RawParachainHeaderEntry{} }

func (m *RawParachainHeaderEntry) String() string {
	return fmt.Sprintf("RelayHash: %x, ParachainHeader: %v", m.RelayHash, m.ParachainHeader)
}

func (*RawParachainHeaderEntry) ProtoMessage() {}

func (m *RawHeader) Reset() { *m = RawHeader{} }

func (m *RawHeader) String() string {
	return fmt.Sprintf("FinalityProof: %v, ParachainHeaders: %v", m.FinalityProof, m.ParachainHeaders)
}

func (*RawHeader) ProtoMessage() {}
