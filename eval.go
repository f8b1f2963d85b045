package dark

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// ReasonKind identifies why evaluation produced the result it did -- the
// Explanation half of spec.md's `evaluate(user, store) -> (Result,
// Explanation, [Event])`.
type ReasonKind string

const (
	ReasonOff                ReasonKind = "OFF"
	ReasonTargetMatch        ReasonKind = "TARGET_MATCH"
	ReasonRuleMatch          ReasonKind = "RULE_MATCH"
	ReasonFallthrough        ReasonKind = "FALLTHROUGH"
	ReasonPrerequisiteFailed ReasonKind = "PREREQUISITE_FAILED"
	ReasonError              ReasonKind = "ERROR"
)

// Reason is the Explanation returned alongside every evaluation.
type Reason struct {
	Kind            ReasonKind
	RuleIndex       int    // valid when Kind == ReasonRuleMatch
	PrerequisiteKey string // valid when Kind == ReasonPrerequisiteFailed
	ErrorKind       error  // set when Kind == ReasonError; also ErrPrereqCycle or ErrFlagOff on those failure paths
}

// Result is the outcome of one flag evaluation: the chosen value (or the
// caller-supplied default, if evaluation failed), the variation index
// (or -1), and the Reason explaining how it was reached.
type Result struct {
	Value          Value
	VariationIndex int
	Reason         Reason
	FlagVersion    int
}

// IsDefaultValue reports whether Value is the caller's default rather
// than a flag-derived value -- mirroring the teacher's
// EvaluationDetail.IsDefaultValue, used by the facade to decide whether
// an evaluation "succeeded" for accounting purposes.
func (r Result) IsDefaultValue() bool { return r.VariationIndex < 0 }

// PrerequisiteEvent is emitted for every prerequisite flag that is
// recursively evaluated (spec.md §3's Event{kind: feature, prereqOf}), in
// depth-first evaluation order, regardless of whether that prerequisite
// ultimately passed. A prerequisite that is missing, off, or closes a
// cycle is not evaluated and emits no event.
type PrerequisiteEvent struct {
	PrereqOfKey string
	User        User
	Flag        Flag
	Result      Result
}

// PrerequisiteRecorder receives a PrerequisiteEvent for each prerequisite
// flag evaluated. May be nil to opt out of prerequisite event recording.
type PrerequisiteRecorder func(PrerequisiteEvent)

// DataProvider is the minimal read surface the Evaluator needs from a
// Store to resolve prerequisites: look up another flag by key. This
// narrow interface (rather than depending on the full Store type) is
// what the teacher's evaluation.DataProvider does, so the evaluator core
// can be tested against a bare map instead of a real Store.
type DataProvider interface {
	GetFlag(key string) (Flag, bool)
}

// Evaluator implements the deterministic flag evaluation state machine
// of spec.md §4.3: prerequisites -> targets -> rules -> fallthrough, with
// the off-switch short-circuit and cycle detection added per §9.
type Evaluator struct {
	data    DataProvider
	loggers ldlog.Loggers
}

// NewEvaluator creates an Evaluator backed by the given DataProvider
// (ordinarily a Store). A zero-value ldlog.Loggers argument falls back
// to ldlog.NewDefaultLoggers().
func NewEvaluator(data DataProvider, loggers ldlog.Loggers) *Evaluator {
	return &Evaluator{data: data, loggers: loggers}
}

// Evaluate runs the state machine for one flag against one user,
// returning the Result and the list of PrerequisiteEvents generated
// while resolving its prerequisite chain (if any). defaultValue is
// substituted, with VariationIndex -1, whenever the pipeline produces an
// error.
func (e *Evaluator) Evaluate(flag Flag, user User, defaultValue Value) (Result, []PrerequisiteEvent) {
	if user.Key == "" {
		e.loggers.Warn("Evaluating a flag for a user with an empty key")
	}
	var events []PrerequisiteEvent
	result := e.evaluate(flag, user, defaultValue, map[string]bool{flag.Key: true}, &events)
	return result, events
}

func (e *Evaluator) evaluate(
	flag Flag,
	user User,
	defaultValue Value,
	visited map[string]bool,
	events *[]PrerequisiteEvent,
) Result {
	if !flag.On {
		return e.offResult(flag, defaultValue)
	}

	if reason, ok := e.checkPrerequisites(flag, user, visited, events); !ok {
		return Result{Value: defaultValue, VariationIndex: -1, Reason: reason, FlagVersion: flag.Version}
	}

	for _, target := range flag.Targets {
		for _, key := range target.Values {
			if key == user.Key {
				return e.variationResult(flag, target.Variation, defaultValue, Reason{Kind: ReasonTargetMatch})
			}
		}
	}

	for i, rule := range flag.Rules {
		if rule.Matches(user) {
			index, ok := rule.Resolve(user, flag.Key, flag.Salt)
			if !ok {
				return Result{
					Value: defaultValue, VariationIndex: -1,
					Reason:      Reason{Kind: ReasonError, ErrorKind: ErrFailedToEvalIndex},
					FlagVersion: flag.Version,
				}
			}
			return e.variationResult(flag, index, defaultValue, Reason{Kind: ReasonRuleMatch, RuleIndex: i})
		}
	}

	index, ok := flag.Fallthrough.Resolve(user, flag.Key, flag.Salt)
	if !ok {
		return Result{
			Value: defaultValue, VariationIndex: -1,
			Reason:      Reason{Kind: ReasonError, ErrorKind: ErrFailedToEvalIndex},
			FlagVersion: flag.Version,
		}
	}
	return e.variationResult(flag, index, defaultValue, Reason{Kind: ReasonFallthrough})
}

// checkPrerequisites walks the flag's declared prerequisites in order,
// failing the outer flag on the first prerequisite that is missing,
// cyclical, off, or did not land on its required variation. A
// prerequisite is only recursively evaluated -- and only then does it
// emit a PrerequisiteEvent -- when it is itself on; an off prerequisite
// fails immediately with no recursive call and no event, matching
// original_source/src/feature_flag.rs's prerequisite check (`if
// p_flag.on() { ...recurse, push event... } else { Some(prereq) }`).
func (e *Evaluator) checkPrerequisites(
	flag Flag,
	user User,
	visited map[string]bool,
	events *[]PrerequisiteEvent,
) (Reason, bool) {
	for _, prereq := range flag.Prerequisites {
		if visited[prereq.Key] {
			return Reason{Kind: ReasonPrerequisiteFailed, PrerequisiteKey: prereq.Key, ErrorKind: ErrPrereqCycle}, false
		}
		prereqFlag, ok := e.data.GetFlag(prereq.Key)
		if !ok {
			return Reason{Kind: ReasonPrerequisiteFailed, PrerequisiteKey: prereq.Key}, false
		}
		if !prereqFlag.On {
			return Reason{Kind: ReasonPrerequisiteFailed, PrerequisiteKey: prereq.Key}, false
		}

		childVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			childVisited[k] = true
		}
		childVisited[prereq.Key] = true

		prereqResult := e.evaluate(prereqFlag, user, Null(), childVisited, events)
		*events = append(*events, PrerequisiteEvent{
			PrereqOfKey: flag.Key,
			User:        user,
			Flag:        prereqFlag,
			Result:      prereqResult,
		})

		ok = !prereqResult.IsDefaultValue() && prereqResult.VariationIndex == prereq.Variation
		if !ok {
			return Reason{Kind: ReasonPrerequisiteFailed, PrerequisiteKey: prereq.Key}, false
		}
	}
	return Reason{}, true
}

func (e *Evaluator) offResult(flag Flag, defaultValue Value) Result {
	if flag.OffVariation == nil {
		return Result{
			Value: defaultValue, VariationIndex: -1,
			Reason:      Reason{Kind: ReasonOff, ErrorKind: ErrFlagOff},
			FlagVersion: flag.Version,
		}
	}
	return e.variationResult(flag, *flag.OffVariation, defaultValue, Reason{Kind: ReasonOff})
}

func (e *Evaluator) variationResult(flag Flag, index int, defaultValue Value, reason Reason) Result {
	v, ok := flag.Variation(index)
	if !ok {
		return Result{
			Value: defaultValue, VariationIndex: -1,
			Reason:      Reason{Kind: ReasonError, ErrorKind: ErrInvalidVariationIndex},
			FlagVersion: flag.Version,
		}
	}
	return Result{Value: v, VariationIndex: index, Reason: reason, FlagVersion: flag.Version}
}

// FlagState is one flag's evaluation outcome as captured by AllFlagsState,
// the domain-sized counterpart of the teacher's interfaces/flagstate.FlagState.
// It drops TrackEvents/DebugEventsUntilDate, which have no analogue on Flag.
type FlagState struct {
	Value     Value
	Variation int // -1 if the flag evaluated to its default/off value
	Version   int
	Reason    Reason
}

// AllFlagsState evaluates every flag in flags for user and returns a
// snapshot keyed by flag key, for bootstrapping callers (e.g. an edge
// worker priming a client-side SDK) that need every flag's value up front
// rather than one Evaluate call per key.
func (e *Evaluator) AllFlagsState(flags map[string]Flag, user User) map[string]FlagState {
	out := make(map[string]FlagState, len(flags))
	for key, flag := range flags {
		result, _ := e.Evaluate(flag, user, Null())
		out[key] = FlagState{
			Value:     result.Value,
			Variation: result.VariationIndex,
			Version:   result.FlagVersion,
			Reason:    result.Reason,
		}
	}
	return out
}
