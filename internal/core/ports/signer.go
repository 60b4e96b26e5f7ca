package ports

import "context"

// ExternalSigner is the capability of a user wallet to sign a draft. The
// daemon never implements it: drafts leave through the build phase and come
// back signed through the settle phase.
type ExternalSigner interface {
	// Sign signs the inputs at the given indexes of the base64 encoded draft
	// with the given sighash mode and returns the updated draft.
	Sign(
		ctx context.Context, draft string, indexes []int, sighashMode uint32,
	) (string, error)
}
