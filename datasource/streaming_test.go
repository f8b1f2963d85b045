package datasource

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"

	"github.com/augustuswm/dark"
)

// sseHandler serves a fixed sequence of server-sent events once, then
// blocks (holding the connection open) until the test server is closed --
// enough for the launchdarkly/eventsource client to parse the initial
// payload without the connection being torn down mid-test.
func sseHandler(events string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, events)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}
}

func TestStreamingProcessorAppliesInitialPut(t *testing.T) {
	events := "event: put\ndata: {\"my-flag\": {\"key\": \"my-flag\", \"version\": 2}}\n\n"
	server := httptest.NewServer(sseHandler(events))
	defer server.Close()

	store := newFakeStoreWriter()
	sp := NewStreamingProcessor(store, nil, server.URL, "sdk-key", "dark-test", ldlog.Loggers{})
	defer sp.Close()

	ready := sp.Start()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("streaming processor never became ready")
	}

	assert.Eventually(t, func() bool {
		f, ok := store.snapshot()["my-flag"]
		return ok && f.Version == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStreamingProcessorAppliesPatch(t *testing.T) {
	events := "event: put\ndata: {}\n\n" +
		"event: patch\ndata: {\"path\": \"/my-flag\", \"data\": {\"key\": \"my-flag\", \"version\": 3}}\n\n"
	server := httptest.NewServer(sseHandler(events))
	defer server.Close()

	store := newFakeStoreWriter()
	sp := NewStreamingProcessor(store, nil, server.URL, "sdk-key", "dark-test", ldlog.Loggers{})
	defer sp.Close()

	ready := sp.Start()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("streaming processor never became ready")
	}

	assert.Eventually(t, func() bool {
		f, ok := store.snapshot()["my-flag"]
		return ok && f.Version == 3
	}, time.Second, 5*time.Millisecond)
}

func TestStreamingProcessorAppliesDelete(t *testing.T) {
	events := "event: put\ndata: {\"my-flag\": {\"key\": \"my-flag\", \"version\": 1}}\n\n" +
		"event: delete\ndata: {\"path\": \"/my-flag\", \"version\": 2}\n\n"
	server := httptest.NewServer(sseHandler(events))
	defer server.Close()

	store := newFakeStoreWriter()
	sp := NewStreamingProcessor(store, nil, server.URL, "sdk-key", "dark-test", ldlog.Loggers{})
	defer sp.Close()

	ready := sp.Start()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("streaming processor never became ready")
	}

	assert.Eventually(t, func() bool {
		_, ok := store.snapshot()["my-flag"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

type fakeFetcher struct {
	flag dark.Flag
}

func (f fakeFetcher) RequestOne(key string) (dark.Flag, error) {
	return f.flag, nil
}

func TestStreamingProcessorAppliesIndirectPatch(t *testing.T) {
	events := "event: put\ndata: {}\n\n" +
		"event: indirect/patch\ndata: my-flag\n\n"
	server := httptest.NewServer(sseHandler(events))
	defer server.Close()

	store := newFakeStoreWriter()
	fetcher := fakeFetcher{flag: dark.Flag{Key: "my-flag", Version: 9}}
	sp := NewStreamingProcessor(store, fetcher, server.URL, "sdk-key", "dark-test", ldlog.Loggers{})
	defer sp.Close()

	ready := sp.Start()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("streaming processor never became ready")
	}

	assert.Eventually(t, func() bool {
		f, ok := store.snapshot()["my-flag"]
		return ok && f.Version == 9
	}, time.Second, 5*time.Millisecond)
}
