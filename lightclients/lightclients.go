// Package lightclients dispatches transport-level client messages over the
// consensus proof variants the light client understands. The set of variants
// is closed: adding one means adding an arm to FromRaw, not registering a
// handler at runtime.
package lightclients

import (
	"fmt"

	"github.com/composablefi/grandpa-prover/grandpa"
)

// ClientMessage is a header variant consumed by the light client state
// machine.
type ClientMessage interface {
	// ClientType returns the type URL naming the variant on the wire.
	ClientType() string
	// ValidateBasic runs the structural checks that need no chain access.
	ValidateBasic() error
}

var _ ClientMessage = (*grandpa.Header)(nil)

// FromRaw decodes a transport header of the named type into its in-memory
// client message.
func FromRaw(typeURL string, raw any) (ClientMessage, error) {
	switch typeURL {
	case grandpa.HeaderTypeURL:
		rawHeader, ok := raw.(*grandpa.RawHeader)
		if !ok {
			return nil, fmt.Errorf("expected *grandpa.RawHeader for %s, got %T", typeURL, raw)
		}
		return grandpa.HeaderFromRaw(rawHeader)
	default:
		return nil, fmt.Errorf("unknown client message type: %s", typeURL)
	}
}
