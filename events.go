package dark

import (
	"encoding/json"
	"time"
)

// EventKind is the wire kind of an Event. "identify" is misspelled
// "indentify" on the wire (spec.md §6) for backward compatibility with
// the control plane; EventKindIdentify.WireKind() returns the misspelled
// form while the Go-side constant stays correctly spelled.
type EventKind string

const (
	EventKindFeature  EventKind = "feature"
	EventKindCustom   EventKind = "custom"
	EventKindIdentify EventKind = "identify"
)

// WireKind returns the exact string this kind serializes as on the wire,
// preserving the control plane's historical "indentify" misspelling for
// EventKindIdentify.
func (k EventKind) WireKind() string {
	if k == EventKindIdentify {
		return "indentify"
	}
	return string(k)
}

// Event is one analytics event, as produced by flag evaluation (Kind ==
// feature), Client.Track (Kind == custom), or Client.Identify (Kind ==
// identify).
type Event struct {
	CreationDateMs int64   `json:"creationDate"`
	Key            string  `json:"key"`
	User           User    `json:"user"`
	Kind           string  `json:"kind"`
	Value          *Value  `json:"value,omitempty"`
	Default        *Value  `json:"default,omitempty"`
	Version        *int    `json:"version,omitempty"`
	PrereqOf       *string `json:"prereqOf,omitempty"`
	Data           *Value  `json:"data,omitempty"`
}

// NewFeatureEvent builds the "feature" event for one flag evaluation.
// prereqOf is non-nil when this evaluation happened as part of resolving
// another flag's prerequisite chain.
func NewFeatureEvent(key string, user User, result Result, defaultValue Value, prereqOf *string) Event {
	v := result.Value
	d := defaultValue
	version := result.FlagVersion
	return Event{
		CreationDateMs: nowMs(),
		Key:            key,
		User:           user,
		Kind:           string(EventKindFeature),
		Value:          &v,
		Default:        &d,
		Version:        &version,
		PrereqOf:       prereqOf,
	}
}

// NewCustomEvent builds a "custom" event for application-level tracking.
func NewCustomEvent(key string, user User, data Value) Event {
	return Event{
		CreationDateMs: nowMs(),
		Key:            key,
		User:           user,
		Kind:           string(EventKindCustom),
		Data:           &data,
	}
}

// NewIdentifyEvent builds an "identify" event, recording that a user was
// seen (independent of any flag evaluation).
func NewIdentifyEvent(user User) Event {
	return Event{
		CreationDateMs: nowMs(),
		Key:            user.Key,
		User:           user,
		Kind:           string(EventKindIdentify),
	}
}

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// eventWireFormat mirrors Event but with Kind rewritten to its wire
// spelling; it exists only so MarshalJSON can delegate to the default
// struct encoder instead of hand-building the object.
type eventWireFormat Event

// MarshalJSON serializes the event using its wire kind spelling (see
// EventKind.WireKind).
func (e Event) MarshalJSON() ([]byte, error) {
	w := eventWireFormat(e)
	w.Kind = EventKind(e.Kind).WireKind()
	return json.Marshal(w)
}
