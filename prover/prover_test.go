package prover

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/composablefi/grandpa-prover/grandpa"
)

const testParaID = uint32(2000)

type mockChain struct {
	headers       map[rpcclienttypes.Hash]rpcclienttypes.Header
	heads         map[rpcclienttypes.Hash][]byte
	changes       []rpcclienttypes.StorageChangeSet
	finalized     rpcclienttypes.Hash
	justification []byte
	exts          map[rpcclienttypes.Hash]*TimestampExtWithProof
}

var _ ChainClient = (*mockChain)(nil)

func newMockChain() *mockChain {
	return &mockChain{
		headers: make(map[rpcclienttypes.Hash]rpcclienttypes.Header),
		heads:   make(map[rpcclienttypes.Hash][]byte),
		exts:    make(map[rpcclienttypes.Hash]*TimestampExtWithProof),
	}
}

func (c *mockChain) Header(_ context.Context, hash rpcclienttypes.Hash) (*rpcclienttypes.Header, error) {
	header, ok := c.headers[hash]
	if !ok {
		return nil, fmt.Errorf("%w: header %s", grandpa.ErrNotFound, hash.Hex())
	}
	return &header, nil
}

func (c *mockChain) FinalizedHead(_ context.Context) (rpcclienttypes.Hash, error) {
	return c.finalized, nil
}

func (c *mockChain) ParachainHead(_ context.Context, _ uint32, at rpcclienttypes.Hash) ([]byte, error) {
	head, ok := c.heads[at]
	if !ok {
		return nil, fmt.Errorf("%w: parachain head at %s", grandpa.ErrNotFound, at.Hex())
	}
	return head, nil
}

func (c *mockChain) QueryStorageChanges(
	_ context.Context, _ []rpcclienttypes.StorageKey, _, _ rpcclienttypes.Hash,
) ([]rpcclienttypes.StorageChangeSet, error) {
	return c.changes, nil
}

func (c *mockChain) ReadProof(_ context.Context, _ []rpcclienttypes.StorageKey, at rpcclienttypes.Hash) ([][]byte, error) {
	return [][]byte{at[:]}, nil
}

func (c *mockChain) ProveFinality(_ context.Context, _ uint32) ([]byte, error) {
	return c.justification, nil
}

func (c *mockChain) TimestampExtrinsicWithProof(_ context.Context, at rpcclienttypes.Hash) (*TimestampExtWithProof, error) {
	ext, ok := c.exts[at]
	if !ok {
		return nil, fmt.Errorf("%w: block %s", grandpa.ErrNotFound, at.Hex())
	}
	return ext, nil
}

// proverFixture models a relay chain with blocks 0..10 whose parachain head
// changes at relay blocks 3, 6 and 9, committing parachain headers 1, 2 and
// 3 respectively.
type proverFixture struct {
	prover      *Prover
	relay       *mockChain
	para        *mockChain
	relayHashes []rpcclienttypes.Hash
	paraHeaders []rpcclienttypes.Header
	paraHashes  []rpcclienttypes.Hash
}

func newProverFixture(t *testing.T) *proverFixture {
	t.Helper()

	relay := newMockChain()
	para := newMockChain()

	relayHashes := make([]rpcclienttypes.Hash, 11)
	var parent rpcclienttypes.Hash
	for n := 0; n <= 10; n++ {
		header := rpcclienttypes.Header{
			ParentHash:     parent,
			Number:         rpcclienttypes.BlockNumber(n),
			StateRoot:      rpcclienttypes.NewHash(bytes.Repeat([]byte{byte(n)}, 32)),
			ExtrinsicsRoot: rpcclienttypes.NewHash(bytes.Repeat([]byte{byte(n + 1)}, 32)),
		}
		hash, err := grandpa.HeaderHash(&header)
		require.NoError(t, err)
		relay.headers[hash] = header
		relayHashes[n] = hash
		parent = hash
	}
	relay.finalized = relayHashes[9]

	paraHeaders := make([]rpcclienttypes.Header, 4)
	paraHashes := make([]rpcclienttypes.Hash, 4)
	var paraParent rpcclienttypes.Hash
	for n := 0; n <= 3; n++ {
		header := rpcclienttypes.Header{
			ParentHash:     paraParent,
			Number:         rpcclienttypes.BlockNumber(n),
			StateRoot:      rpcclienttypes.NewHash(bytes.Repeat([]byte{byte(0x40 + n)}, 32)),
			ExtrinsicsRoot: rpcclienttypes.NewHash(bytes.Repeat([]byte{byte(0x50 + n)}, 32)),
		}
		hash, err := grandpa.HeaderHash(&header)
		require.NoError(t, err)
		paraHeaders[n] = header
		paraHashes[n] = hash
		paraParent = hash

		para.exts[hash] = &TimestampExtWithProof{
			Extrinsic: []byte{0xaa, byte(n)},
			Proof:     [][]byte{{0xbb, byte(n)}},
		}
	}

	for relayNum, paraNum := range map[int]int{3: 1, 6: 2, 9: 3} {
		headData, err := grandpa.EncodeParachainHeader(paraHeaders[paraNum])
		require.NoError(t, err)
		relay.heads[relayHashes[relayNum]] = headData
	}
	for _, n := range []int{3, 6, 9} {
		relay.changes = append(relay.changes, rpcclienttypes.StorageChangeSet{Block: relayHashes[n]})
	}

	justification, err := rpcclienttypes.Encode(encodedFinalityProof{
		Block:         relayHashes[9],
		Justification: []byte("grandpa justification"),
	})
	require.NoError(t, err)
	relay.justification = justification

	return &proverFixture{
		prover:      NewProver(zaptest.NewLogger(t), relay, para, testParaID),
		relay:       relay,
		para:        para,
		relayHashes: relayHashes,
		paraHeaders: paraHeaders,
		paraHashes:  paraHashes,
	}
}

// commitGenesisAt makes the fixture's parachain genesis header show up as a
// head change at the given relay block, before all other changes.
func (f *proverFixture) commitGenesisAt(t *testing.T, relayNum int) {
	t.Helper()
	headData, err := grandpa.EncodeParachainHeader(f.paraHeaders[0])
	require.NoError(t, err)
	f.relay.heads[f.relayHashes[relayNum]] = headData
	f.relay.changes = append(
		[]rpcclienttypes.StorageChangeSet{{Block: f.relayHashes[relayNum]}},
		f.relay.changes...,
	)
}

func TestFinalizedParachainHeadersBetween(t *testing.T) {
	f := newProverFixture(t)

	headers, err := f.prover.FinalizedParachainHeadersBetween(
		context.Background(), f.relayHashes[9], f.relayHashes[1])
	require.NoError(t, err)

	require.Len(t, headers, 3)
	for i := range headers {
		assert.Equal(t, rpcclienttypes.BlockNumber(i+1), headers[i].Number)
		hash, err := grandpa.HeaderHash(&headers[i])
		require.NoError(t, err)
		assert.Equal(t, f.paraHashes[i+1], hash)
	}
}

func TestHeadersBetweenMissingRelayHeader(t *testing.T) {
	f := newProverFixture(t)
	f.relay.changes = append(f.relay.changes, rpcclienttypes.StorageChangeSet{
		Block: rpcclienttypes.NewHash(bytes.Repeat([]byte{0xde}, 32)),
	})

	_, err := f.prover.FinalizedParachainHeadersBetween(
		context.Background(), f.relayHashes[9], f.relayHashes[1])
	require.ErrorIs(t, err, grandpa.ErrNotFound)
}

func TestHeadersWithProof(t *testing.T) {
	f := newProverFixture(t)

	bundle, err := f.prover.FinalizedParachainHeadersWithProof(
		context.Background(), f.relayHashes[9], f.relayHashes[1],
		[]rpcclienttypes.BlockNumber{2})
	require.NoError(t, err)

	assert.Equal(t, f.relayHashes[9], bundle.FinalityProof.Block)
	assert.Equal(t, []byte("grandpa justification"), bundle.FinalityProof.Justification)

	// the unknown headers span 9 down to, excluding, the previously
	// finalized block 1, and form a contiguous parent chain.
	unknown := bundle.FinalityProof.UnknownHeaders
	require.Len(t, unknown, 8)
	for i := range unknown {
		hash, err := grandpa.HeaderHash(&unknown[i])
		require.NoError(t, err)
		assert.Equal(t, f.relayHashes[9-i], hash)
		if i+1 < len(unknown) {
			next, err := grandpa.HeaderHash(&unknown[i+1])
			require.NoError(t, err)
			assert.Equal(t, next, unknown[i].ParentHash)
		}
	}
	assert.Equal(t, f.relayHashes[1], unknown[len(unknown)-1].ParentHash)

	// only parachain height 2 was requested, so only the relay block that
	// committed it shows up.
	require.Len(t, bundle.ParachainHeaders, 1)
	proofs, ok := bundle.ParachainHeaders[f.relayHashes[6]]
	require.True(t, ok)
	assert.Equal(t, [][]byte{f.relayHashes[6][:]}, proofs.StateProof)
	assert.Equal(t, f.para.exts[f.paraHashes[2]].Extrinsic, proofs.Extrinsic)
	assert.Equal(t, f.para.exts[f.paraHashes[2]].Proof, proofs.ExtrinsicProof)
}

func TestHeadersWithProofAllTargets(t *testing.T) {
	f := newProverFixture(t)

	bundle, err := f.prover.FinalizedParachainHeadersWithProof(
		context.Background(), f.relayHashes[9], f.relayHashes[1],
		[]rpcclienttypes.BlockNumber{1, 2, 3})
	require.NoError(t, err)

	require.Len(t, bundle.ParachainHeaders, 3)
	for _, n := range []int{3, 6, 9} {
		assert.Contains(t, bundle.ParachainHeaders, f.relayHashes[n])
	}
}

func TestHeadersWithProofSkipsGenesis(t *testing.T) {
	f := newProverFixture(t)
	f.commitGenesisAt(t, 2)

	bundle, err := f.prover.FinalizedParachainHeadersWithProof(
		context.Background(), f.relayHashes[9], f.relayHashes[1],
		[]rpcclienttypes.BlockNumber{0, 1})
	require.NoError(t, err)

	// height 0 is in the requested set but the genesis header is skipped
	// regardless.
	require.Len(t, bundle.ParachainHeaders, 1)
	assert.Contains(t, bundle.ParachainHeaders, f.relayHashes[3])
}

func TestHeadersWithProofNoJustification(t *testing.T) {
	f := newProverFixture(t)
	f.relay.justification = nil

	_, err := f.prover.FinalizedParachainHeadersWithProof(
		context.Background(), f.relayHashes[9], f.relayHashes[1],
		[]rpcclienttypes.BlockNumber{2})
	require.ErrorIs(t, err, grandpa.ErrNotFound)
	assert.Contains(t, err.Error(), "no justification")
}

func TestHeadersWithProofDiscontinuity(t *testing.T) {
	f := newProverFixture(t)

	// the anchor is not an ancestor of the latest block, so the walk runs
	// off the end of recorded history.
	unrelated := rpcclienttypes.NewHash(bytes.Repeat([]byte{0xff}, 32))
	_, err := f.prover.FinalizedParachainHeadersWithProof(
		context.Background(), f.relayHashes[9], unrelated,
		[]rpcclienttypes.BlockNumber{2})
	require.ErrorIs(t, err, grandpa.ErrChainDiscontinuity)
}

func TestAncestorWalkBounded(t *testing.T) {
	relay := newMockChain()

	// two headers claiming each other as parent; the hashes are arbitrary
	// because the mock never validates them.
	hashA := rpcclienttypes.NewHash(bytes.Repeat([]byte{0x0a}, 32))
	hashB := rpcclienttypes.NewHash(bytes.Repeat([]byte{0x0b}, 32))
	relay.headers[hashA] = rpcclienttypes.Header{ParentHash: hashB, Number: 2}
	relay.headers[hashB] = rpcclienttypes.Header{ParentHash: hashA, Number: 1}

	p := NewProver(zaptest.NewLogger(t), relay, newMockChain(), testParaID)

	start := relay.headers[hashA]
	unreachable := rpcclienttypes.NewHash(bytes.Repeat([]byte{0xff}, 32))
	_, err := p.collectUnknownHeaders(context.Background(), &start, unreachable)
	require.ErrorIs(t, err, grandpa.ErrChainDiscontinuity)
	assert.Contains(t, err.Error(), "gave up")
}

func TestHeadersWithProofDuplicateChangeEvent(t *testing.T) {
	f := newProverFixture(t)
	f.relay.changes = append(f.relay.changes, rpcclienttypes.StorageChangeSet{Block: f.relayHashes[6]})

	bundle, err := f.prover.FinalizedParachainHeadersWithProof(
		context.Background(), f.relayHashes[9], f.relayHashes[1],
		[]rpcclienttypes.BlockNumber{2})
	require.NoError(t, err)

	// last write wins; the duplicate must not produce a second entry.
	require.Len(t, bundle.ParachainHeaders, 1)
	assert.Contains(t, bundle.ParachainHeaders, f.relayHashes[6])
}

func TestLatestHeights(t *testing.T) {
	f := newProverFixture(t)

	paraHeight, relayHeight, err := f.prover.LatestHeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), paraHeight)
	assert.Equal(t, int64(9), relayHeight)
}

func TestClientType(t *testing.T) {
	f := newProverFixture(t)
	assert.Equal(t, grandpa.HeaderTypeURL, f.prover.ClientType())
}
