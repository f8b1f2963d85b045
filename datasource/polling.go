// Package datasource implements the two UpdateProcessor variants of
// spec.md §4.5: polling (periodic GET + store.Init) and streaming
// (server-sent events processed incrementally). Exactly one of these
// runs per client.
package datasource

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/facebookgo/httpcontrol"
	"github.com/gregjones/httpcache"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/augustuswm/dark"
)

// StoreWriter is the subset of dark.Store the processors need: the
// mutating half. Kept narrow so tests can swap in a fake.
type StoreWriter interface {
	Upsert(key string, flag dark.Flag) error
	Delete(key string, version int) error
	Init(flags map[string]dark.Flag) error
}

// Requester fetches the full flag set from the control plane. The
// default implementation wraps an HTTP client with an ETag-aware caching
// transport (gregjones/httpcache) layered over a retrying, timeout-bound
// round tripper (facebookgo/httpcontrol), the same combination the
// teacher's requestor.go uses.
type Requester interface {
	// Request fetches the full flag set. cached reports whether the
	// response came from the HTTP cache rather than fresh from the
	// control plane (e.g. a "304 Not Modified" answer to a conditional
	// GET); flags may then be nil or the cached set, and the polling
	// processor leaves the store untouched.
	Request() (flags map[string]dark.Flag, cached bool, err error)
}

type httpRequester struct {
	baseURI    string
	sdkKey     string
	userAgent  string
	httpClient *http.Client
}

// NewHTTPRequester builds the default Requester against baseURI.
func NewHTTPRequester(baseURI, sdkKey, userAgent string, timeout time.Duration) Requester {
	baseTransport := &httpcontrol.Transport{
		RequestTimeout: timeout,
		DialTimeout:    timeout,
		DialKeepAlive:  1 * time.Minute,
		MaxTries:       3,
	}
	cachingTransport := &httpcache.Transport{
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
		Transport:           baseTransport,
	}
	return &httpRequester{
		baseURI:    baseURI,
		sdkKey:     sdkKey,
		userAgent:  userAgent,
		httpClient: cachingTransport.Client(),
	}
}

func (r *httpRequester) Request() (map[string]dark.Flag, bool, error) {
	req, err := http.NewRequest(http.MethodGet, r.baseURI+"/sdk/latest-flags", nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", r.sdkKey)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("dark: polling request returned status %d", resp.StatusCode)
	}

	var flags map[string]dark.Flag
	if err := json.NewDecoder(resp.Body).Decode(&flags); err != nil {
		return nil, false, fmt.Errorf("dark: malformed polling response: %w", err)
	}
	cached := resp.Header.Get(httpcache.XFromCache) != ""
	return flags, cached, nil
}

// PollingProcessor periodically fetches the full flag set and replaces
// the store's contents. A failed poll is logged and does not clear the
// store (spec.md §4.5).
type PollingProcessor struct {
	store        StoreWriter
	requester    Requester
	pollInterval time.Duration
	loggers      ldlog.Loggers

	initOnce      sync.Once
	initialized   chan struct{}
	quit          chan struct{}
	closeOnce     sync.Once
}

// NewPollingProcessor creates a PollingProcessor; call Start to begin polling.
func NewPollingProcessor(store StoreWriter, requester Requester, pollInterval time.Duration, loggers ldlog.Loggers) *PollingProcessor {
	return &PollingProcessor{
		store:        store,
		requester:    requester,
		pollInterval: pollInterval,
		loggers:      loggers,
		initialized:  make(chan struct{}),
		quit:         make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine. The returned
// channel closes once the first poll attempt (success or failure) has
// completed, so callers can wait for "ready" the way the teacher's
// closeWhenReady channel works.
func (pp *PollingProcessor) Start() <-chan struct{} {
	go func() {
		ticker := time.NewTicker(pp.pollInterval)
		defer ticker.Stop()

		pp.poll()
		for {
			select {
			case <-pp.quit:
				return
			case <-ticker.C:
				pp.poll()
			}
		}
	}()
	return pp.initialized
}

func (pp *PollingProcessor) poll() {
	defer pp.initOnce.Do(func() { close(pp.initialized) })

	flags, cached, err := pp.requester.Request()
	if err != nil {
		pp.loggers.Warnf("dark: polling request failed, will retry at next interval: %s", err)
		return
	}
	if cached {
		return
	}
	if err := pp.store.Init(flags); err != nil {
		pp.loggers.Warnf("dark: failed to apply polled flag set: %s", err)
	}
}

// Close stops the polling loop.
func (pp *PollingProcessor) Close() error {
	pp.closeOnce.Do(func() { close(pp.quit) })
	return nil
}
