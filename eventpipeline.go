package dark

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// EventPipelineConfig configures an EventPipeline's consumer loop.
type EventPipelineConfig struct {
	EventsURI       string
	SDKKey          string
	UserAgent       string
	FlushInterval   time.Duration
	Capacity        int
	SamplingInterval int
	HTTPClient      *http.Client
	Loggers         ldlog.Loggers
}

// EventPipeline is the producer/consumer analytics pipeline of spec.md
// §4.6. Push (the producer side) is called synchronously from the
// evaluator facade; a single background goroutine (the consumer) drains
// the channel into a batch and flushes it to the control plane on a
// timer.
type EventPipeline struct {
	cfg       EventPipelineConfig
	events    chan Event
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	client    *http.Client

	mu      sync.Mutex
	dropped int
}

// NewEventPipeline creates and starts an EventPipeline's consumer
// goroutine. Close stops it.
func NewEventPipeline(cfg EventPipelineConfig) *EventPipeline {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	p := &EventPipeline{
		cfg:    cfg,
		events: make(chan Event, cfg.Capacity),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		client: client,
	}
	go p.run()
	return p
}

// Push enqueues an event for later batching and delivery. Per spec.md
// §4.6, events are accepted only when SamplingInterval == 0; a nonzero
// sampling interval means "drop all" (the exact modulo-N sampling policy
// is an explicit open question -- see DESIGN.md). Push never blocks: if
// the channel is full (Capacity exceeded) the event is dropped and
// counted, following the "drop-new" policy chosen for the open question
// on overflow behavior.
func (p *EventPipeline) Push(sendEvents bool, evt Event) {
	if !sendEvents || p.cfg.SamplingInterval != 0 {
		return
	}
	select {
	case p.events <- evt:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		if p.cfg.Loggers.IsDebugEnabled() {
			p.cfg.Loggers.Debug("dark: event queue full, dropping event")
		}
	}
}

// Dropped returns the number of events dropped so far due to queue
// overflow, for diagnostics.
func (p *EventPipeline) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops the consumer goroutine, flushing whatever is currently
// batched before returning.
func (p *EventPipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		<-p.done
	})
	return nil
}

func (p *EventPipeline) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case evt := <-p.events:
			batch = append(batch, evt)
		case <-ticker.C:
			batch = p.flush(batch)
		case <-p.closed:
			// Drain whatever is already queued, then do one last flush.
			for {
				select {
				case evt := <-p.events:
					batch = append(batch, evt)
					continue
				default:
				}
				break
			}
			p.flush(batch)
			return
		}
	}
}

// flush POSTs the current batch (if non-empty) and always returns an
// empty slice (the batch truncated to length zero, or the empty input
// itself) for the caller to keep accumulating into -- even on failure, so
// a persistent serialization or HTTP error never wedges the pipeline
// (spec.md §4.6).
func (p *EventPipeline) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		if p.cfg.Loggers.IsDebugEnabled() {
			p.cfg.Loggers.Debugf("dark: failed to marshal event batch, discarding %d events: %s", len(batch), err)
		}
		return batch[:0]
	}

	req, err := http.NewRequest(http.MethodPost, p.cfg.EventsURI, bytes.NewReader(payload))
	if err != nil {
		return batch[:0]
	}
	req.Header.Set("Authorization", p.cfg.SDKKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("X-Dark-Batch-Id", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		p.cfg.Loggers.Warnf("dark: event delivery failed: %s", err)
		return batch[:0]
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.cfg.Loggers.Warnf("dark: event delivery returned status %d", resp.StatusCode)
	}
	return batch[:0]
}
