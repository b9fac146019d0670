package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives batches of snapshots. Implementations must be safe to call
// from the exporter's single background goroutine.
type Sink interface {
	Write(ctx context.Context, batch []Snapshot) error
}

// Exporter periodically captures collector snapshots and flushes them to a
// sink in batches. Flush failures keep the buffer for the next attempt; the
// export loop never aborts.
type Exporter struct {
	collector *Collector
	sink      Sink
	interval  time.Duration
	batchSize int
	logger    *zap.Logger

	mu          sync.Mutex
	buffer      []Snapshot
	lastFlushAt time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewExporter creates an Exporter. Non-positive interval defaults to 5
// minutes; non-positive batchSize defaults to 100.
func NewExporter(collector *Collector, sink Sink, interval time.Duration, batchSize int, logger *zap.Logger) *Exporter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Exporter{
		collector: collector,
		sink:      sink,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.Named("metrics-export"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the export loop.
func (e *Exporter) Start(ctx context.Context) {
	go e.run(ctx)
}

// Stop signals the loop and drains the remaining buffer.
func (e *Exporter) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *Exporter) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.capture()
			e.flushIfDue(ctx, false)
		case <-e.stopCh:
			e.capture()
			// Final drain gets a bounded window independent of ctx, which
			// may already be canceled during shutdown.
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			e.flushIfDue(drainCtx, true)
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// capture appends the current snapshot to the pending buffer.
func (e *Exporter) capture() {
	snap := e.collector.GetSnapshot()
	e.mu.Lock()
	e.buffer = append(e.buffer, snap)
	e.mu.Unlock()
}

// flushIfDue writes the buffer to the sink when it has reached the batch
// size, or unconditionally when force is set. On failure the buffer is kept.
func (e *Exporter) flushIfDue(ctx context.Context, force bool) {
	e.mu.Lock()
	if len(e.buffer) == 0 || (!force && len(e.buffer) < e.batchSize) {
		e.mu.Unlock()
		return
	}
	batch := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	if err := e.sink.Write(ctx, batch); err != nil {
		e.logger.Error("flush failed, batch retained",
			zap.Int("snapshots", len(batch)),
			zap.Error(err))
		e.mu.Lock()
		e.buffer = append(batch, e.buffer...)
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.lastFlushAt = time.Now()
	e.mu.Unlock()

	e.logger.Debug("batch exported", zap.Int("snapshots", len(batch)))
}

// FlushNow forces an immediate flush of whatever is buffered, plus a fresh
// snapshot. Used by the monitoring endpoint.
func (e *Exporter) FlushNow(ctx context.Context) error {
	e.capture()

	e.mu.Lock()
	batch := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := e.sink.Write(ctx, batch); err != nil {
		e.mu.Lock()
		e.buffer = append(batch, e.buffer...)
		e.mu.Unlock()
		return fmt.Errorf("metrics: flush: %w", err)
	}

	e.mu.Lock()
	e.lastFlushAt = time.Now()
	e.mu.Unlock()
	return nil
}

// LastFlush returns when the sink last accepted a batch; zero if never.
func (e *Exporter) LastFlush() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFlushAt
}

// Pending returns the number of buffered snapshots.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// ============================================================================
// Sinks
// ============================================================================

// ObjectStore is the minimal blob interface the object sink needs.
type ObjectStore interface {
	Append(ctx context.Context, key string, data []byte) error
}

// ObjectStoreSink appends batches as JSON lines under date-partitioned keys
// (year/month/day/HHMMSS.jsonl).
type ObjectStoreSink struct {
	store  ObjectStore
	prefix string
}

// NewObjectStoreSink creates an ObjectStoreSink writing under prefix.
func NewObjectStoreSink(store ObjectStore, prefix string) *ObjectStoreSink {
	return &ObjectStoreSink{store: store, prefix: prefix}
}

var _ Sink = (*ObjectStoreSink)(nil)

func (s *ObjectStoreSink) Write(ctx context.Context, batch []Snapshot) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batch {
		if err := enc.Encode(&batch[i]); err != nil {
			return fmt.Errorf("metrics: encode snapshot: %w", err)
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s%s/%s.jsonl", s.prefix, now.Format("2006/01/02"), now.Format("150405"))
	if err := s.store.Append(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("metrics: object append %s: %w", key, err)
	}
	return nil
}

// StreamWriter is the minimal streaming-service interface the stream sink
// needs.
type StreamWriter interface {
	Put(ctx context.Context, records [][]byte) error
}

// StreamSink writes each snapshot as one stream record.
type StreamSink struct {
	writer StreamWriter
}

// NewStreamSink creates a StreamSink.
func NewStreamSink(writer StreamWriter) *StreamSink {
	return &StreamSink{writer: writer}
}

var _ Sink = (*StreamSink)(nil)

func (s *StreamSink) Write(ctx context.Context, batch []Snapshot) error {
	records := make([][]byte, 0, len(batch))
	for i := range batch {
		data, err := json.Marshal(&batch[i])
		if err != nil {
			return fmt.Errorf("metrics: marshal snapshot: %w", err)
		}
		records = append(records, data)
	}
	if err := s.writer.Put(ctx, records); err != nil {
		return fmt.Errorf("metrics: stream put: %w", err)
	}
	return nil
}

// HTTPSink POSTs batches as a JSON array with an optional bearer token.
type HTTPSink struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPSink creates an HTTPSink posting to url.
func NewHTTPSink(url, bearerToken string) *HTTPSink {
	return &HTTPSink{
		url:    url,
		token:  bearerToken,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Sink = (*HTTPSink)(nil)

func (s *HTTPSink) Write(ctx context.Context, batch []Snapshot) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("metrics: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("metrics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("metrics: post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("metrics: post batch: status %d", resp.StatusCode)
	}
	return nil
}

// NoopSink discards batches. Used when no export target is configured.
type NoopSink struct{}

var _ Sink = (*NoopSink)(nil)

func (NoopSink) Write(context.Context, []Snapshot) error { return nil }
