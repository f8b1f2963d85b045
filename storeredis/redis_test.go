package storeredis

import (
	"strconv"
	"testing"
	"time"

	r "github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"

	"github.com/augustuswm/dark"
)

func testPool() *r.Pool {
	return &r.Pool{
		MaxIdle:     5,
		IdleTimeout: 30 * time.Second,
		Dial:        func() (r.Conn, error) { return r.DialURL("redis://localhost:6379") },
	}
}

func TestNewRejectsNilPool(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, dark.ErrInvalidRemoteConfig)
}

func TestRedisStoreUpsertGetRoundTrip(t *testing.T) {
	store, err := New(testPool(), WithPrefix("dark-test-roundtrip"))
	assert.NoError(t, err)

	assert.NoError(t, store.Init(map[string]dark.Flag{}))
	assert.NoError(t, store.Upsert("f", dark.Flag{Key: "f", Version: 1, On: true}))

	flag, ok := store.Get("f")
	assert.True(t, ok)
	assert.True(t, flag.On)

	err = store.Upsert("f", dark.Flag{Key: "f", Version: 1})
	assert.ErrorIs(t, err, dark.ErrNewerVersionFound)
}

func TestRedisStoreDeleteTombstones(t *testing.T) {
	store, err := New(testPool(), WithPrefix("dark-test-delete"))
	assert.NoError(t, err)
	assert.NoError(t, store.Init(map[string]dark.Flag{}))
	assert.NoError(t, store.Upsert("f", dark.Flag{Key: "f", Version: 1}))

	assert.NoError(t, store.Delete("f", 2))

	_, ok := store.Get("f")
	assert.False(t, ok)
}

// TestUpsertRaceConditionAgainstExternalClient mirrors the teacher's own
// redis_test.go test of the same name: an external client races the
// store's WATCH/MULTI/EXEC loop, and the store's final write must still
// win with the higher of the two versions actually requested.
func TestUpsertRaceConditionAgainstExternalClient(t *testing.T) {
	store, err := New(testPool(), WithPrefix("dark-test-race"))
	assert.NoError(t, err)
	assert.NoError(t, store.Init(map[string]dark.Flag{"foo": {Key: "foo", Version: 1}}))

	otherConn, err := r.DialURL("redis://localhost:6379")
	assert.NoError(t, err)
	defer otherConn.Close()

	intermediateVersion := 1
	store.testTxHook = func() {
		intermediateVersion++
		if intermediateVersion < 5 {
			otherConn.Do("HSET", "dark-test-race:features", "foo", `{"key":"foo","version":`+strconv.Itoa(intermediateVersion)+`}`)
		}
	}

	assert.NoError(t, store.Upsert("foo", dark.Flag{Key: "foo", Version: 10}))

	flag, ok := store.Get("foo")
	assert.True(t, ok)
	assert.Equal(t, 10, flag.Version)
}
