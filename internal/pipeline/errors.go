package pipeline

import "errors"

var (
	// ErrPending means analysis for the digest is still in flight.
	ErrPending = errors.New("analysis pending")
	// ErrNotFound means no artifact with the digest was ever submitted.
	ErrNotFound = errors.New("artifact not found")
	// ErrNotVerifiable means the latest analysis run terminated without a
	// verdict (for example when every detector failed). This is never
	// collapsed into "authentic".
	ErrNotVerifiable = errors.New("verification not possible")
	// ErrUnsupportedFormat means the artifact container could not be
	// identified; terminal for the artifact.
	ErrUnsupportedFormat = errors.New("unsupported media format")
)
