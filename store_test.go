package dark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreUpsertVersionGating(t *testing.T) {
	s := NewMemoryStore(testLoggers())

	assert.NoError(t, s.Upsert("f", Flag{Key: "f", Version: 2}))

	err := s.Upsert("f", Flag{Key: "f", Version: 2})
	assert.ErrorIs(t, err, ErrNewerVersionFound)

	err = s.Upsert("f", Flag{Key: "f", Version: 1})
	assert.ErrorIs(t, err, ErrNewerVersionFound)

	assert.NoError(t, s.Upsert("f", Flag{Key: "f", Version: 3}))
	flag, ok := s.Get("f")
	assert.True(t, ok)
	assert.Equal(t, 3, flag.Version)
}

func TestMemoryStoreDeleteTombstoneHidesGet(t *testing.T) {
	s := NewMemoryStore(testLoggers())
	assert.NoError(t, s.Upsert("f", Flag{Key: "f", Version: 1}))

	assert.NoError(t, s.Delete("f", 2))

	_, ok := s.Get("f")
	assert.False(t, ok)

	all := s.GetAll()
	_, ok = all["f"]
	assert.False(t, ok)
}

func TestMemoryStoreDeleteVersionGated(t *testing.T) {
	s := NewMemoryStore(testLoggers())
	assert.NoError(t, s.Upsert("f", Flag{Key: "f", Version: 5}))

	err := s.Delete("f", 3)
	assert.ErrorIs(t, err, ErrNewerVersionFound)

	_, ok := s.Get("f")
	assert.True(t, ok)
}

func TestMemoryStoreInitReplacesContentsAtomically(t *testing.T) {
	s := NewMemoryStore(testLoggers())
	assert.NoError(t, s.Upsert("old", Flag{Key: "old", Version: 1}))
	assert.False(t, s.Initialized())

	assert.NoError(t, s.Init(map[string]Flag{
		"new": {Key: "new", Version: 1},
	}))

	assert.True(t, s.Initialized())
	_, ok := s.Get("old")
	assert.False(t, ok)
	_, ok = s.Get("new")
	assert.True(t, ok)
}

func TestMemoryStoreGetAllReturnsClonedSnapshot(t *testing.T) {
	s := NewMemoryStore(testLoggers())
	assert.NoError(t, s.Upsert("f", Flag{Key: "f", Version: 1}))

	all := s.GetAll()
	all["f"] = Flag{Key: "f", Version: 99}

	flag, _ := s.Get("f")
	assert.Equal(t, 1, flag.Version)
}

func TestMemoryStoreGetFlagImplementsDataProvider(t *testing.T) {
	s := NewMemoryStore(testLoggers())
	assert.NoError(t, s.Upsert("f", Flag{Key: "f", Version: 1, On: true}))

	var provider DataProvider = s
	flag, ok := provider.GetFlag("f")
	assert.True(t, ok)
	assert.True(t, flag.On)
}
