package datasource

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	es "github.com/launchdarkly/eventsource"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/augustuswm/dark"
)

const (
	eventPut            = "put"
	eventPatch          = "patch"
	eventDelete         = "delete"
	eventIndirectPatch  = "indirect/patch"
	reconnectBaseDelay  = 1 * time.Second
	reconnectMaxDelay   = 30 * time.Second
)

// FlagFetcher fetches a single flag by key, used to resolve
// "indirect/patch" events (spec.md §4.5's table), which carry only a key
// and require a follow-up HTTP GET.
type FlagFetcher interface {
	RequestOne(key string) (dark.Flag, error)
}

type patchData struct {
	Path string   `json:"path"`
	Data dark.Flag `json:"data"`
}

type deleteData struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

// StreamingProcessor maintains a server-sent-events subscription to the
// control plane's flag stream and applies put/patch/delete/indirect-patch
// events to the store as they arrive (spec.md §4.5). On connection loss
// it reconnects indefinitely with bounded, jittered exponential backoff.
type StreamingProcessor struct {
	store     StoreWriter
	fetcher   FlagFetcher
	streamURI string
	sdkKey    string
	userAgent string
	loggers   ldlog.Loggers

	mu     sync.Mutex
	stream *es.Stream

	initOnce    sync.Once
	initialized chan struct{}
	quit        chan struct{}
	closeOnce   sync.Once
}

// NewStreamingProcessor creates a StreamingProcessor; call Start to
// begin subscribing.
func NewStreamingProcessor(store StoreWriter, fetcher FlagFetcher, streamURI, sdkKey, userAgent string, loggers ldlog.Loggers) *StreamingProcessor {
	return &StreamingProcessor{
		store:       store,
		fetcher:     fetcher,
		streamURI:   streamURI,
		sdkKey:      sdkKey,
		userAgent:   userAgent,
		loggers:     loggers,
		initialized: make(chan struct{}),
		quit:        make(chan struct{}),
	}
}

// Start begins the subscribe-and-process loop in the background. The
// returned channel closes once the stream has successfully delivered its
// first event (ordinarily an initial "put").
func (sp *StreamingProcessor) Start() <-chan struct{} {
	go sp.run()
	return sp.initialized
}

func (sp *StreamingProcessor) run() {
	delay := reconnectBaseDelay
	for {
		select {
		case <-sp.quit:
			return
		default:
		}

		stream, err := sp.subscribe()
		if err != nil {
			wait := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
			sp.loggers.Warnf("dark: stream connection failed, retrying in %s: %s", wait, err)
			if !sp.sleep(wait) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = reconnectBaseDelay

		sp.consume(stream)

		select {
		case <-sp.quit:
			return
		default:
		}
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	return d
}

func (sp *StreamingProcessor) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-sp.quit:
		return false
	}
}

func (sp *StreamingProcessor) subscribe() (*es.Stream, error) {
	headers := make(http.Header)
	headers.Set("Authorization", sp.sdkKey)
	headers.Set("User-Agent", sp.userAgent)

	stream, err := es.Subscribe(sp.streamURI+"/flags", headers, "")
	if err != nil {
		return nil, err
	}
	sp.mu.Lock()
	sp.stream = stream
	sp.mu.Unlock()
	return stream, nil
}

func (sp *StreamingProcessor) consume(stream *es.Stream) {
	defer stream.Close()
	for {
		select {
		case <-sp.quit:
			return
		case event, ok := <-stream.Events:
			if !ok {
				return
			}
			sp.handle(event)
		case err, ok := <-stream.Errors:
			if !ok {
				return
			}
			if err != nil {
				sp.loggers.Warnf("dark: stream error, reconnecting: %s", err)
				return
			}
		}
	}
}

func (sp *StreamingProcessor) handle(event es.Event) {
	defer sp.initOnce.Do(func() { close(sp.initialized) })

	switch event.Event() {
	case eventPut:
		var flags map[string]dark.Flag
		if err := json.Unmarshal([]byte(event.Data()), &flags); err != nil {
			sp.loggers.Warnf("dark: malformed put payload, dropping: %s", err)
			return
		}
		if err := sp.store.Init(flags); err != nil {
			sp.loggers.Warnf("dark: failed to apply put payload: %s", err)
		}
	case eventPatch:
		var patch patchData
		if err := json.Unmarshal([]byte(event.Data()), &patch); err != nil {
			sp.loggers.Warnf("dark: malformed patch payload, dropping: %s", err)
			return
		}
		key := strings.TrimPrefix(patch.Path, "/")
		if err := sp.store.Upsert(key, patch.Data); err != nil && err != dark.ErrNewerVersionFound {
			sp.loggers.Warnf("dark: failed to apply patch for %s: %s", key, err)
		}
	case eventDelete:
		var del deleteData
		if err := json.Unmarshal([]byte(event.Data()), &del); err != nil {
			sp.loggers.Warnf("dark: malformed delete payload, dropping: %s", err)
			return
		}
		key := strings.TrimPrefix(del.Path, "/")
		if err := sp.store.Delete(key, del.Version); err != nil && err != dark.ErrNewerVersionFound {
			sp.loggers.Warnf("dark: failed to apply delete for %s: %s", key, err)
		}
	case eventIndirectPatch:
		key := strings.TrimSpace(event.Data())
		if sp.fetcher == nil {
			sp.loggers.Warnf("dark: received indirect/patch for %s with no fetcher configured, dropping", key)
			return
		}
		flag, err := sp.fetcher.RequestOne(key)
		if err != nil {
			sp.loggers.Warnf("dark: failed to fetch indirect patch for %s: %s", key, err)
			return
		}
		if err := sp.store.Upsert(key, flag); err != nil && err != dark.ErrNewerVersionFound {
			sp.loggers.Warnf("dark: failed to apply indirect patch for %s: %s", key, err)
		}
	default:
		sp.loggers.Warnf("dark: unexpected stream event type %q, ignoring", event.Event())
	}
}

// Close stops the streaming loop and closes the underlying connection.
func (sp *StreamingProcessor) Close() error {
	sp.closeOnce.Do(func() {
		close(sp.quit)
		sp.mu.Lock()
		if sp.stream != nil {
			sp.stream.Close()
		}
		sp.mu.Unlock()
	})
	return nil
}

// RequestOne fetches a single flag by key via HTTP GET, implementing
// FlagFetcher for the default HTTP requester.
func (r *httpRequester) RequestOne(key string) (dark.Flag, error) {
	req, err := http.NewRequest(http.MethodGet, r.baseURI+"/sdk/latest-flags/"+key, nil)
	if err != nil {
		return dark.Flag{}, err
	}
	req.Header.Set("Authorization", r.sdkKey)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return dark.Flag{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dark.Flag{}, fmt.Errorf("dark: indirect patch fetch for %s returned status %d", key, resp.StatusCode)
	}
	var flag dark.Flag
	if err := json.NewDecoder(resp.Body).Decode(&flag); err != nil {
		return dark.Flag{}, fmt.Errorf("dark: malformed flag payload for %s: %w", key, err)
	}
	return flag, nil
}
