package dark

// Prerequisite names another flag that must evaluate to a specified
// variation before this flag's own rules are considered.
type Prerequisite struct {
	Key       string `json:"key"`
	Variation int    `json:"variation"`
}

// Target pins a fixed variation for an explicit list of user keys,
// bypassing rules and fallthrough.
type Target struct {
	Values    []string `json:"values"`
	Variation int      `json:"variation"`
}

// WeightedVariation is one entry in a Rollout: a variation index and its
// share of the 100000 per-mille weight budget.
type WeightedVariation struct {
	Variation int `json:"variation"`
	Weight    int `json:"weight"`
}

// Rollout is a percentage split across variations, resolved by hashing
// the user's BucketBy attribute (default "key") with bucketUser.
// Invariant: the Weight values should sum to 100000; if they sum to less
// (a malformed flag) and the user's bucket falls past the last
// cumulative weight, VariationOrRollout.Resolve returns no index.
type Rollout struct {
	Variations []WeightedVariation `json:"variations"`
	BucketBy   *string             `json:"bucketBy,omitempty"`
}

// VariationOrRollout is either a fixed Variation index or a Rollout to
// resolve dynamically. Exactly one of Variation/Rollout should be set;
// a flag with neither is malformed and Resolve returns ok=false.
type VariationOrRollout struct {
	Variation *int     `json:"variation,omitempty"`
	Rollout   *Rollout `json:"rollout,omitempty"`
}

// Resolve picks a variation index for the given user, either directly or
// via the rollout's bucketing. hashKey and salt come from the owning
// flag and are passed in explicitly rather than embedded, because the
// same Rollout type is reused for rules and for fallthrough.
func (vr VariationOrRollout) Resolve(user User, hashKey, salt string) (int, bool) {
	if vr.Variation != nil {
		return *vr.Variation, true
	}
	if vr.Rollout == nil || len(vr.Rollout.Variations) == 0 {
		return 0, false
	}
	bucketBy := "key"
	if vr.Rollout.BucketBy != nil {
		bucketBy = *vr.Rollout.BucketBy
	}
	bucket := bucketUser(user, hashKey, bucketBy, salt)
	var sum float64
	for _, wv := range vr.Rollout.Variations {
		sum += float64(wv.Weight) / 100000.0
		if bucket < sum {
			return wv.Variation, true
		}
	}
	return 0, false
}

// Rule is a set of AND-ed clauses plus the variation or rollout to apply
// when all of them match.
type Rule struct {
	Clauses []Clause `json:"clauses"`
	VariationOrRollout
}

// Matches reports whether every clause in the rule matches the user. An
// empty clause list matches unconditionally.
func (r Rule) Matches(user User) bool {
	for _, c := range r.Clauses {
		if !c.Matches(user) {
			return false
		}
	}
	return true
}

// Flag is a full flag definition: the prerequisite -> target -> rule ->
// fallthrough evaluation pipeline, plus the version and variation table
// it operates over.
//
// Invariants (spec.md §3): Version is monotonic per Key; Deleted == true
// marks a tombstone that must carry a version greater than what it
// supersedes; every variation index referenced anywhere in the flag must
// be a valid offset into Variations.
type Flag struct {
	Key           string              `json:"key"`
	Version       int                 `json:"version"`
	On            bool                `json:"on"`
	Prerequisites []Prerequisite      `json:"prerequisites,omitempty"`
	Salt          string              `json:"salt"`
	Sel           string              `json:"sel,omitempty"`
	Targets       []Target            `json:"targets,omitempty"`
	Rules         []Rule              `json:"rules,omitempty"`
	Fallthrough   VariationOrRollout  `json:"fallthrough"`
	OffVariation  *int                `json:"offVariation,omitempty"`
	Variations    []Value             `json:"variations"`
	Deleted       bool                `json:"deleted,omitempty"`
}

// Variation returns flag.Variations[index], or (Null, false) if index is
// out of range.
func (f *Flag) Variation(index int) (Value, bool) {
	if index < 0 || index >= len(f.Variations) {
		return Null(), false
	}
	return f.Variations[index], true
}
