// Copyright 2025 InjectGuard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"injectguard/platform/sinks"
)

// AuditMode defines how detection events are persisted
type AuditMode string

const (
	AuditModeCompliance  AuditMode = "compliance"  // Sync writes for blocked events
	AuditModePerformance AuditMode = "performance" // Async for everything
)

const (
	// maxDeliveryRetries bounds per-event sink write attempts.
	maxDeliveryRetries = 3

	// breakerThreshold opens the breaker after this many consecutive
	// failed deliveries. While open, events go straight to the fallback
	// file instead of burning retries against a dead sink.
	breakerThreshold = 5

	// breakerProbeInterval is how often one delivery is let through to
	// test whether the sinks recovered.
	breakerProbeInterval = 30 * time.Second

	// defaultWriteTimeout caps a single sink delivery.
	defaultWriteTimeout = 10 * time.Second

	// batchFlushSize and batchFlushInterval control the monitor-mode
	// batch lane.
	batchFlushSize     = 100
	batchFlushInterval = time.Second
)

// errBreakerOpen signals that delivery was skipped, not attempted.
var errBreakerOpen = errors.New("audit breaker open")

// AuditQueue manages async detection-event delivery with persistence
// guarantees. Blocked events ride the per-event lane (retries, then
// fallback); monitor-mode detections ride the batch lane. Both lanes
// drain into the sink registry.
type AuditQueue struct {
	mode         AuditMode
	queue        chan sinks.Event
	detectBatch  chan sinks.Event
	workers      int
	wg           sync.WaitGroup
	registry     *sinks.Registry
	fallbackFile *os.File
	mu           sync.Mutex // guards fallbackFile writes
	closed       atomic.Bool

	writeTimeout time.Duration

	// Breaker state
	consecutiveFailures int64
	probeMu             sync.Mutex
	lastProbe           time.Time

	// Metrics
	processed      uint64
	failed         uint64
	queued         uint64
	fallbackWrites uint64
}

// NewAuditQueue creates a new audit queue draining into the given sink
// registry. The fallback file is opened up front: if audit cannot even
// fall back to disk, the agent should not start.
func NewAuditQueue(mode AuditMode, queueSize int, workers int, registry *sinks.Registry, fallbackPath string) (*AuditQueue, error) {
	fallbackFile, err := os.OpenFile(
		fallbackPath,
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0600,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback file: %v", err)
	}

	if workers < 1 {
		workers = 1
	}

	aq := &AuditQueue{
		mode:         mode,
		queue:        make(chan sinks.Event, queueSize),
		detectBatch:  make(chan sinks.Event, 1000),
		workers:      workers,
		registry:     registry,
		fallbackFile: fallbackFile,
		writeTimeout: defaultWriteTimeout,
	}

	for i := 0; i < workers; i++ {
		aq.wg.Add(1)
		go aq.worker(i)
	}

	aq.wg.Add(1)
	go aq.batcher()

	log.Printf("AuditQueue started in %s mode with %d workers, fallback: %s", mode, workers, fallbackPath)
	return aq, nil
}

// LogBlocked records a blocked detection. In compliance mode the event
// is delivered synchronously before this returns: a blocked request must
// leave a durable trail. In performance mode it rides the worker lane.
func (aq *AuditQueue) LogBlocked(event sinks.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if aq.closed.Load() {
		aq.mu.Lock()
		defer aq.mu.Unlock()
		return aq.writeToFallback(event)
	}

	if aq.mode == AuditModeCompliance {
		return aq.writeSync(event)
	}

	return aq.queueEntry(event)
}

// LogDetection records a monitor-mode detection (always async). The batch
// channel is large and drops are acceptable for non-blocking observations.
func (aq *AuditQueue) LogDetection(event sinks.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if aq.closed.Load() {
		aq.mu.Lock()
		defer aq.mu.Unlock()
		return aq.writeToFallback(event)
	}

	select {
	case aq.detectBatch <- event:
		atomic.AddUint64(&aq.queued, 1)
		return nil
	default:
		log.Printf("Detection batch queue full, dropping monitor event %s", event.ID)
		return nil
	}
}

// writeSync delivers one event before returning. Sink failure falls back
// to the local file; the event is durable either way, so only a double
// failure surfaces as an error.
func (aq *AuditQueue) writeSync(event sinks.Event) error {
	err := aq.deliverWithRetry([]sinks.Event{event})
	if err == nil {
		atomic.AddUint64(&aq.processed, 1)
		return nil
	}

	atomic.AddUint64(&aq.failed, 1)
	aq.mu.Lock()
	defer aq.mu.Unlock()
	if fallbackErr := aq.writeToFallback(event); fallbackErr != nil {
		return fmt.Errorf("sink delivery failed (%v) and fallback failed: %w", err, fallbackErr)
	}
	return nil
}

// queueEntry queues an event for async processing
func (aq *AuditQueue) queueEntry(event sinks.Event) error {
	select {
	case aq.queue <- event:
		atomic.AddUint64(&aq.queued, 1)
		return nil
	default:
		// Queue full - write to fallback immediately
		aq.mu.Lock()
		defer aq.mu.Unlock()
		return aq.writeToFallback(event)
	}
}

// worker delivers queued events one at a time with retries.
func (aq *AuditQueue) worker(id int) {
	defer aq.wg.Done()

	for event := range aq.queue {
		err := aq.deliverWithRetry([]sinks.Event{event})
		if err == nil {
			atomic.AddUint64(&aq.processed, 1)
			continue
		}

		atomic.AddUint64(&aq.failed, 1)
		aq.mu.Lock()
		if fallbackErr := aq.writeToFallback(event); fallbackErr != nil {
			log.Printf("Worker %d: Failed to write to fallback: %v", id, fallbackErr)
		}
		aq.mu.Unlock()
	}
}

// batcher collects monitor-mode detections and flushes them in batches.
func (aq *AuditQueue) batcher() {
	defer aq.wg.Done()

	batch := make([]sinks.Event, 0, batchFlushSize)
	ticker := time.NewTicker(batchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-aq.detectBatch:
			if !ok {
				// Channel closed - flush remaining batch and exit
				if len(batch) > 0 {
					aq.flushBatch(batch)
				}
				return
			}

			batch = append(batch, event)

			if len(batch) >= batchFlushSize {
				aq.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				aq.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// flushBatch writes a batch of detections to the sinks, falling back to
// the local file when delivery fails.
func (aq *AuditQueue) flushBatch(batch []sinks.Event) {
	if len(batch) == 0 {
		return
	}

	if err := aq.deliverWithRetry(batch); err != nil {
		atomic.AddUint64(&aq.failed, uint64(len(batch)))
		aq.mu.Lock()
		if fallbackErr := aq.writeToFallback(batch...); fallbackErr != nil {
			log.Printf("Failed to write batch to fallback: %v", fallbackErr)
		}
		aq.mu.Unlock()
		return
	}

	atomic.AddUint64(&aq.processed, uint64(len(batch)))
}

// deliverWithRetry attempts delivery with linear backoff. An open breaker
// short-circuits immediately: the caller goes to fallback without
// sleeping through retries that cannot succeed.
func (aq *AuditQueue) deliverWithRetry(events []sinks.Event) error {
	var err error
	for retry := 0; retry < maxDeliveryRetries; retry++ {
		err = aq.deliver(events)
		if err == nil {
			return nil
		}
		if errors.Is(err, errBreakerOpen) {
			return err
		}
		time.Sleep(time.Millisecond * time.Duration(100*(retry+1)))
	}
	return err
}

// deliver performs a single delivery attempt and maintains breaker state.
func (aq *AuditQueue) deliver(events []sinks.Event) error {
	if aq.registry == nil {
		return fmt.Errorf("no sink registry configured")
	}
	if aq.breakerOpen() {
		return errBreakerOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), aq.writeTimeout)
	defer cancel()

	if err := aq.registry.WriteAll(ctx, events); err != nil {
		failures := atomic.AddInt64(&aq.consecutiveFailures, 1)
		if failures == breakerThreshold {
			log.Printf("⚠️  Audit breaker opened after %d consecutive sink failures", failures)
		}
		return err
	}

	if atomic.SwapInt64(&aq.consecutiveFailures, 0) >= breakerThreshold {
		log.Printf("✅ Audit breaker closed - sinks recovered")
	}
	return nil
}

// breakerOpen reports whether delivery should be skipped. Once open, one
// probe delivery is allowed through per probe interval.
func (aq *AuditQueue) breakerOpen() bool {
	if atomic.LoadInt64(&aq.consecutiveFailures) < breakerThreshold {
		return false
	}

	aq.probeMu.Lock()
	defer aq.probeMu.Unlock()
	if time.Since(aq.lastProbe) >= breakerProbeInterval {
		aq.lastProbe = time.Now()
		return false // let this delivery through as a probe
	}
	return true
}

// writeToFallback appends events to the fallback file as JSONL.
// Caller holds aq.mu.
func (aq *AuditQueue) writeToFallback(events ...sinks.Event) error {
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %v", err)
		}

		if _, err := fmt.Fprintf(aq.fallbackFile, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write to fallback: %v", err)
		}
		atomic.AddUint64(&aq.fallbackWrites, 1)
	}

	return aq.fallbackFile.Sync()
}

// Shutdown gracefully shuts down the queue
func (aq *AuditQueue) Shutdown(ctx context.Context) error {
	log.Println("Shutting down audit queue...")

	aq.closed.Store(true)
	close(aq.queue)
	close(aq.detectBatch)

	done := make(chan struct{})
	go func() {
		aq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("Audit queue shutdown complete. Processed: %d, Failed: %d",
			atomic.LoadUint64(&aq.processed), atomic.LoadUint64(&aq.failed))
		return nil
	case <-ctx.Done():
		// Timeout - drain remaining entries to fallback
		remaining := len(aq.queue)
		aq.mu.Lock()
		for event := range aq.queue {
			if err := aq.writeToFallback(event); err != nil {
				log.Printf("Failed to write entry to fallback during timeout: %v", err)
			}
		}
		aq.mu.Unlock()
		log.Printf("Timeout: Saved %d entries to fallback", remaining)
		return ctx.Err()
	}
}

// GetStats returns queue statistics
func (aq *AuditQueue) GetStats() map[string]interface{} {
	failures := atomic.LoadInt64(&aq.consecutiveFailures)
	return map[string]interface{}{
		"mode":                 aq.mode,
		"queued":               atomic.LoadUint64(&aq.queued),
		"processed":            atomic.LoadUint64(&aq.processed),
		"failed":               atomic.LoadUint64(&aq.failed),
		"fallback_writes":      atomic.LoadUint64(&aq.fallbackWrites),
		"pending":              len(aq.queue),
		"batch_pending":        len(aq.detectBatch),
		"consecutive_failures": failures,
		"breaker_open":         failures >= breakerThreshold,
	}
}
