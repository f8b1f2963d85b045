package dark

import (
	"fmt"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// sdkVersion is reported in the User-Agent header of every outbound
// request, the way the teacher's Version constant is.
const sdkVersion = "0.1.0"

// Client is the thin top-level facade of spec.md §1: it owns one
// EventPipeline (spawned at construction, run until Close) and at most one
// UpdateProcessor (constructed and started by the caller, then registered
// via SetUpdateProcessorCloser so Close stops it), and dispatches the typed
// accessors of spec.md §6 to the Evaluator. It is intentionally small --
// all the hard logic lives in Evaluator, Store, the datasource processors,
// and EventPipeline.
type Client struct {
	cfg       Config
	store     Store
	evaluator *Evaluator
	events    *EventPipeline
	loggers   ldlog.Loggers

	closer interface{ Close() error } // polling or streaming processor

	mu     sync.Mutex
	closed bool
}

// NewClient builds a Client from cfg and, unless SendEvents is false or
// Offline is set, its EventPipeline. It does NOT start an UpdateProcessor
// itself: the concrete processor types (datasource.NewPollingProcessor,
// datasource.NewStreamingProcessor) live in the datasource subpackage to
// avoid an import cycle (they depend on Store and Flag from this
// package), so unless UseLDD or Offline is set, the caller must construct
// the appropriate processor, call its Start, and register it with
// SetUpdateProcessorCloser so Close stops it. Callers that want the
// documented defaults (spec.md §6) should start from DefaultConfig() and
// override only what they need.
func NewClient(sdkKey string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		store:   cfg.Store,
		loggers: cfg.Loggers,
	}
	c.evaluator = NewEvaluator(c.store, c.loggers)

	if cfg.Offline {
		return c, nil
	}

	userAgent := fmt.Sprintf("dark-go-sdk/%s", sdkVersion)

	if cfg.SendEvents {
		c.events = NewEventPipeline(EventPipelineConfig{
			EventsURI:        cfg.EventsURI,
			SDKKey:           sdkKey,
			UserAgent:        userAgent,
			FlushInterval:    cfg.FlushInterval,
			Capacity:         cfg.Capacity,
			SamplingInterval: cfg.SamplingInterval,
			Loggers:          c.loggers,
		})
	}

	return c, nil
}

// Variation evaluates key for user, routing any emitted events to the
// EventPipeline, and returns the raw Result (spec.md §6's `evaluate`).
func (c *Client) Variation(key string, user User, defaultValue Value) Result {
	if c.cfg.Offline {
		return Result{Value: defaultValue, VariationIndex: -1, Reason: Reason{Kind: ReasonOff}}
	}
	flag, ok := c.store.Get(key)
	if !ok {
		return Result{Value: defaultValue, VariationIndex: -1, Reason: Reason{Kind: ReasonError, ErrorKind: ErrNotFound}}
	}
	result, prereqEvents := c.evaluator.Evaluate(flag, user, defaultValue)

	if c.events != nil {
		for _, pe := range prereqEvents {
			prereqOf := pe.PrereqOfKey
			c.events.Push(true, NewFeatureEvent(pe.Flag.Key, pe.User, pe.Result, Null(), &prereqOf))
		}
		c.events.Push(true, NewFeatureEvent(key, user, result, defaultValue, nil))
	}
	return result
}

// BoolVariation returns key's value as a bool, or defaultValue if the
// flag is missing, evaluation errors, Offline is set, or the variation is
// not a Bool.
func (c *Client) BoolVariation(key string, user User, defaultValue bool) bool {
	result := c.Variation(key, user, Bool(defaultValue))
	if result.IsDefaultValue() || result.Value.Kind() != KindBool {
		return defaultValue
	}
	return result.Value.BoolValue()
}

// IntVariation returns key's value as an int64, or defaultValue under the
// same conditions as BoolVariation.
func (c *Client) IntVariation(key string, user User, defaultValue int64) int64 {
	result := c.Variation(key, user, Int(defaultValue))
	if result.IsDefaultValue() || !result.Value.IsNumber() {
		return defaultValue
	}
	return result.Value.IntValue()
}

// FloatVariation returns key's value as a float64, or defaultValue under
// the same conditions as BoolVariation.
func (c *Client) FloatVariation(key string, user User, defaultValue float64) float64 {
	result := c.Variation(key, user, Float(defaultValue))
	if result.IsDefaultValue() || !result.Value.IsNumber() {
		return defaultValue
	}
	return result.Value.Float64Value()
}

// StringVariation returns key's value as a string, or defaultValue under
// the same conditions as BoolVariation.
func (c *Client) StringVariation(key string, user User, defaultValue string) string {
	result := c.Variation(key, user, String(defaultValue))
	if result.IsDefaultValue() || result.Value.Kind() != KindString {
		return defaultValue
	}
	return result.Value.StringValue()
}

// Track records a custom event for application-level analytics.
func (c *Client) Track(key string, user User, data Value) {
	if c.cfg.Offline || c.events == nil {
		return
	}
	c.events.Push(true, NewCustomEvent(key, user, data))
}

// Identify records that a user was seen, independent of any flag
// evaluation.
func (c *Client) Identify(user User) {
	if c.cfg.Offline || c.events == nil {
		return
	}
	c.events.Push(true, NewIdentifyEvent(user))
}

// Close shuts down the client's background EventPipeline and
// UpdateProcessor (if any were started). Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.events != nil {
		_ = c.events.Close()
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// SetUpdateProcessorCloser registers the running UpdateProcessor (a
// *datasource.PollingProcessor or *datasource.StreamingProcessor) so
// Close can stop it. Application wiring code calls this right after
// constructing and starting the processor.
func (c *Client) SetUpdateProcessorCloser(closer interface{ Close() error }) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closer = closer
}
