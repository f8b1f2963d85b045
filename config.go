package dark

import (
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Config exposes every option spec.md §6 recognizes, plus the HTTP
// transport timeout the teacher's requestor.go threads through its
// caching round tripper. All fields are optional; DefaultConfig supplies
// the documented default for each.
type Config struct {
	BaseURI         string
	StreamURI       string
	EventsURI       string
	Capacity        int
	FlushInterval   time.Duration
	PollInterval    time.Duration
	Timeout         time.Duration
	Stream          bool
	UseLDD          bool
	SendEvents      bool
	Offline         bool
	SamplingInterval int

	Store   Store
	Loggers ldlog.Loggers
}

// DefaultConfig returns the Config with every documented default applied
// (spec.md §6's table).
func DefaultConfig() Config {
	return Config{
		BaseURI:       "https://app.launchdarkly.com",
		StreamURI:     "https://stream.launchdarkly.com",
		EventsURI:     "https://events.launchdarkly.com",
		Capacity:      1000,
		FlushInterval: 5 * time.Second,
		PollInterval:  1 * time.Second,
		Timeout:       3 * time.Second,
		Stream:        true,
		UseLDD:        false,
		SendEvents:    true,
		Offline:       false,
		Loggers:       ldlog.NewDefaultLoggers(),
	}
}

// withDefaults fills in any zero-valued field of cfg with the value from
// DefaultConfig, the way the teacher's component builders apply defaults
// lazily at client-construction time rather than requiring every field be
// set up front.
//
// This only backfills fields whose zero value is never a meaningful
// setting (URIs, durations, the Store). Stream/SendEvents default to
// true per spec.md §6, which a bare Config{} cannot express with Go's
// bool zero value; callers who want those defaults should start from
// DefaultConfig() and override only what they need, the way NewClient's
// doc comment recommends.
func (cfg Config) withDefaults() Config {
	d := DefaultConfig()
	if cfg.BaseURI == "" {
		cfg.BaseURI = d.BaseURI
	}
	if cfg.StreamURI == "" {
		cfg.StreamURI = d.StreamURI
	}
	if cfg.EventsURI == "" {
		cfg.EventsURI = d.EventsURI
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = d.Capacity
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.Loggers)
	}
	return cfg
}
