package dark

import "errors"

// Evaluation-boundary error kinds (spec.md §7). These never escape the
// client facade: boolVariation/intVariation/etc. substitute the caller's
// default and swallow the error, the way the teacher's EvaluationDetail
// machinery does via IsDefaultValue().
var (
	// ErrFailedPrereq means a prerequisite was missing, off, produced an
	// evaluation error, or resolved to the wrong variation.
	ErrFailedPrereq = errors.New("dark: prerequisite not satisfied")
	// ErrInvalidVariationIndex means the chosen variation index was out
	// of range for the flag's Variations slice.
	ErrInvalidVariationIndex = errors.New("dark: invalid variation index")
	// ErrFailedToEvalIndex means a rule or fallthrough rollout produced
	// no index at all (weights summed to less than 100000 and the bucket
	// fell past the last variation).
	ErrFailedToEvalIndex = errors.New("dark: rollout produced no variation")
	// ErrPrereqCycle means prerequisite evaluation revisited a flag
	// already on the current evaluation's call stack.
	ErrPrereqCycle = errors.New("dark: cyclical prerequisite reference")
	// ErrFlagOff is not a failure; it's returned internally when a flag
	// has On == false and no OffVariation is configured.
	ErrFlagOff = errors.New("dark: flag is off and has no off-variation")
)

// Store-layer error kinds (spec.md §7).
var (
	// ErrNotFound means the requested key does not exist in the store.
	ErrNotFound = errors.New("dark: key not found")
	// ErrNewerVersionFound is an expected, non-error outcome from the
	// protocol's perspective: the store already has a version at or
	// above the one being written, so the write was silently dropped.
	// Callers should log it at debug, not surface it as a failure.
	ErrNewerVersionFound = errors.New("dark: a newer (or equal) version already exists")
	// ErrFailedToSerializeFlag means a remote store write failed to
	// marshal the flag to JSON; the cache is left untouched.
	ErrFailedToSerializeFlag = errors.New("dark: failed to serialize flag")
	// ErrInvalidRemoteConfig means a remote store was constructed with
	// an unusable configuration (e.g. a nil connection pool).
	ErrInvalidRemoteConfig = errors.New("dark: invalid remote store configuration")
)
