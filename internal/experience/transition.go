// Package experience defines the Transition value type shared by the
// self-play driver (producer), the replay buffer (storage), and the
// learners (consumer).
package experience

import "github.com/lox/chessrl/internal/codec"

// Transition is an immutable self-play experience record.
type Transition struct {
	FeaturesBefore [codec.FeatureSize]float64
	ActionIndex    int
	Reward         float64
	FeaturesAfter  [codec.FeatureSize]float64
	Done           bool

	// LegalMask is the legality bitmask over FeaturesBefore, used to
	// restrict the policy-entropy diagnostic to legal actions.
	LegalMask [codec.ActionSpaceSize]bool

	// NextLegalMask is required (and consulted) whenever Done is false; it
	// is the legality bitmask over FeaturesAfter used for masked bootstrap
	// targets.
	NextLegalMask [codec.ActionSpaceSize]bool
}
