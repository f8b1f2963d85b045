package datasource

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"

	"github.com/augustuswm/dark"
)

// fakeStoreWriter is a minimal StoreWriter for tests, keeping the flag
// map that the calls made to it produce.
type fakeStoreWriter struct {
	mu    sync.Mutex
	flags map[string]dark.Flag
}

func newFakeStoreWriter() *fakeStoreWriter {
	return &fakeStoreWriter{flags: map[string]dark.Flag{}}
}

func (w *fakeStoreWriter) Upsert(key string, flag dark.Flag) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flags[key] = flag
	return nil
}

func (w *fakeStoreWriter) Delete(key string, version int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.flags, key)
	return nil
}

func (w *fakeStoreWriter) Init(flags map[string]dark.Flag) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flags = flags
	return nil
}

func (w *fakeStoreWriter) snapshot() map[string]dark.Flag {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]dark.Flag, len(w.flags))
	for k, v := range w.flags {
		out[k] = v
	}
	return out
}

func TestPollingProcessorInitializesStoreFromResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdk/latest-flags", r.URL.Path)
		assert.Equal(t, "sdk-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"my-flag": {"key": "my-flag", "version": 2, "on": true}}`)
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "sdk-key", "dark-test", time.Second)
	store := newFakeStoreWriter()
	pp := NewPollingProcessor(store, requester, 10*time.Millisecond, ldlog.Loggers{})
	defer pp.Close()

	ready := pp.Start()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("polling processor never became ready")
	}

	assert.Eventually(t, func() bool {
		flags := store.snapshot()
		f, ok := flags["my-flag"]
		return ok && f.Version == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPollingProcessorDoesNotClearStoreOnFailedPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	requester := NewHTTPRequester(server.URL, "sdk-key", "dark-test", time.Second)
	store := newFakeStoreWriter()
	store.flags["existing"] = dark.Flag{Key: "existing", Version: 1}

	pp := NewPollingProcessor(store, requester, 10*time.Millisecond, ldlog.Loggers{})
	defer pp.Close()

	ready := pp.Start()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("polling processor never became ready")
	}

	time.Sleep(50 * time.Millisecond)
	flags := store.snapshot()
	_, ok := flags["existing"]
	assert.True(t, ok)
}
