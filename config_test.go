package dark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "https://app.launchdarkly.com", cfg.BaseURI)
	assert.True(t, cfg.Stream)
	assert.True(t, cfg.SendEvents)
	assert.False(t, cfg.Offline)
	assert.Equal(t, 1000, cfg.Capacity)
}

func TestWithDefaultsBackfillsOnlyZeroValueNonBoolFields(t *testing.T) {
	cfg := Config{BaseURI: "https://custom.example.com"}
	cfg = cfg.withDefaults()

	assert.Equal(t, "https://custom.example.com", cfg.BaseURI)
	assert.Equal(t, DefaultConfig().StreamURI, cfg.StreamURI)
	assert.Equal(t, DefaultConfig().Capacity, cfg.Capacity)
	assert.NotNil(t, cfg.Store)
	// Stream/SendEvents are left at their explicit zero value (false),
	// NOT silently upgraded to the documented "true" default.
	assert.False(t, cfg.Stream)
	assert.False(t, cfg.SendEvents)
}

func TestWithDefaultsPreservesExplicitStore(t *testing.T) {
	s := NewMemoryStore(testLoggers())
	cfg := Config{Store: s}.withDefaults()
	assert.Same(t, s, cfg.Store)
}
