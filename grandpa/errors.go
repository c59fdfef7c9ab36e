package grandpa

import "errors"

// Error taxonomy shared by the prover and the header model. Every failure is
// fatal to the call that produced it; callers match with errors.Is and retry
// the whole query if they want to.
var (
	// ErrNotFound reports a block, header, head data or justification that
	// does not exist at query time.
	ErrNotFound = errors.New("not found")

	// ErrDecode reports bytes that do not parse as the expected header,
	// extrinsic or proof shape, including hash fields of the wrong length.
	ErrDecode = errors.New("decode error")

	// ErrMissingField reports a wire message that omits a required
	// sub-message.
	ErrMissingField = errors.New("missing required field")

	// ErrChainDiscontinuity reports an ancestor walk that could not reach the
	// previously finalized hash. Callers should pick a different anchor
	// instead of treating this as a transient I/O failure.
	ErrChainDiscontinuity = errors.New("chain discontinuity")
)
