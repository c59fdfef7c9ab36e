package prover

import (
	"context"

	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"

	"github.com/composablefi/grandpa-prover/grandpa"
)

// FinalityGadget is what the surrounding relaying machinery dispatches over:
// one implementation per consensus proof variant, named by the type URL of
// the header it produces.
type FinalityGadget interface {
	ClientType() string
	LatestHeights(ctx context.Context) (paraHeight, relayHeight int64, err error)
	FinalizedParachainHeadersBetween(ctx context.Context, latestHash, previousHash rpcclienttypes.Hash) ([]rpcclienttypes.Header, error)
	FinalizedParachainHeadersWithProof(ctx context.Context, latestHash, previousHash rpcclienttypes.Hash, headerNumbers []rpcclienttypes.BlockNumber) (*grandpa.ParachainHeadersWithFinalityProof, error)
}

var _ FinalityGadget = (*Prover)(nil)

// ClientType names the header variant this gadget produces.
func (p *Prover) ClientType() string { return grandpa.HeaderTypeURL }
