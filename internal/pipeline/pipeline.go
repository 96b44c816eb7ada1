// Package pipeline turns queued item text into stored embedding vectors.
//
// Many producers (one scan loop per folder) enqueue concurrently; a single
// worker consumes the queue so the number of concurrent calls to the
// external embedding provider stays bounded. Jobs are batched per provider
// call; a failed batch is retried job-by-job up to the attempt cap, and one
// item's failure never blocks the rest of the queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/SimoKiihamaki/cognicore/internal/embedder"
	"github.com/SimoKiihamaki/cognicore/internal/events"
	"github.com/SimoKiihamaki/cognicore/internal/store"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// Pipeline tuning.
const (
	// MaxAttempts caps embedding attempts per job, counting the job's
	// share of a failed batch call as the first attempt.
	MaxAttempts = 3

	// casRetries bounds re-reads when a vector write loses a revision
	// race with a concurrent content update.
	casRetries = 3
)

// Job is one unit of embedding work. Transient; exists only while queued
// or in flight.
type Job struct {
	ItemID      string
	Text        string
	ContentHash string
	attempts    int
}

// Config tunes the pipeline.
type Config struct {
	BatchSize int // jobs per provider call (default embedder.DefaultBatchSize)
}

// Pipeline owns the embedding job queue and its single worker.
type Pipeline struct {
	provider  embedder.Provider
	store     store.Store
	bus       *events.Bus
	batchSize int

	mu        sync.Mutex
	queue     []*Job
	queued    map[string]*Job // itemID -> queued (not yet in-flight) job
	total     int
	completed int

	notify  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a pipeline writing vectors through st and reporting progress
// on bus. The bus may be nil in tests.
func New(provider embedder.Provider, st store.Store, bus *events.Bus, cfg Config) *Pipeline {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = embedder.DefaultBatchSize
	}
	if batchSize > embedder.MaxBatchSize {
		batchSize = embedder.MaxBatchSize
	}
	return &Pipeline{
		provider:  provider,
		store:     st,
		bus:       bus,
		batchSize: batchSize,
		queued:    make(map[string]*Job),
		notify:    make(chan struct{}, 1),
	}
}

// Start launches the worker. Calling Start twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the worker and waits for the in-flight batch to resolve.
// Queued jobs are dropped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

// Enqueue submits item text for embedding and returns immediately.
// Completion is observed via events, never by the caller waiting. If the
// item already has a queued (not yet in-flight) job, the job's text is
// replaced in place so only the latest content is embedded.
func (p *Pipeline) Enqueue(itemID, text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	if existing, ok := p.queued[itemID]; ok {
		existing.Text = text
		existing.ContentHash = types.ContentHash(text)
		p.mu.Unlock()
		return
	}
	job := &Job{
		ItemID:      itemID,
		Text:        text,
		ContentHash: types.ContentHash(text),
	}
	p.queue = append(p.queue, job)
	p.queued[itemID] = job
	p.total++
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Progress returns the monotonically increasing settled count and the
// total enqueued count.
func (p *Pipeline) Progress() (completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.total
}

// QueueLen returns the number of jobs waiting to be taken by the worker.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// run is the single consumer loop.
func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}

		for {
			batch := p.takeBatch()
			if len(batch) == 0 {
				break
			}
			p.processBatch(batch)
			if p.ctx.Err() != nil {
				return
			}
		}
	}
}

// takeBatch pops up to batchSize contiguous jobs off the queue.
func (p *Pipeline) takeBatch() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	if n == 0 {
		return nil
	}
	if n > p.batchSize {
		n = p.batchSize
	}
	batch := p.queue[:n]
	p.queue = p.queue[n:]
	for _, job := range batch {
		delete(p.queued, job.ItemID)
	}
	return batch
}

// processBatch embeds one batch, falling back to per-job retries when the
// batch call fails.
func (p *Pipeline) processBatch(batch []*Job) {
	texts := make([]string, len(batch))
	for i, job := range batch {
		texts[i] = job.Text
	}

	vectors, err := p.provider.EmbedBatch(p.ctx, texts)
	if err == nil && len(vectors) == len(batch) {
		for i, job := range batch {
			p.commit(job, vectors[i])
		}
		return
	}
	if p.ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("pipeline: batch of %d failed, retrying per job: %v", len(batch), err)
	}

	// The batch attempt counts as each job's first attempt.
	for _, job := range batch {
		job.attempts = 1
		p.retryJob(job, err)
	}
}

// retryJob embeds one job alone until it succeeds or exhausts MaxAttempts.
func (p *Pipeline) retryJob(job *Job, lastErr error) {
	for job.attempts < MaxAttempts {
		if p.ctx.Err() != nil {
			return
		}
		job.attempts++
		vectors, err := p.provider.EmbedBatch(p.ctx, []string{job.Text})
		if err == nil && len(vectors) == 1 {
			p.commit(job, vectors[0])
			return
		}
		lastErr = err
	}
	p.fail(job, lastErr)
}

// commit writes a finished vector back to the item, discarding stale
// results: the vector is only attached while the stored text is exactly
// the text that was embedded.
func (p *Pipeline) commit(job *Job, vector []float32) {
	for attempt := 0; attempt < casRetries; attempt++ {
		item, err := p.store.GetItem(p.ctx, job.ItemID)
		if err != nil {
			// Item gone (folder removed mid-flight); discard quietly.
			p.settle()
			return
		}
		if item.IsDeleted || types.ContentHash(item.TextContent) != job.ContentHash {
			// Content moved on; a fresher job owns this item now.
			p.settle()
			return
		}

		updated, err := p.store.UpdateItem(p.ctx, job.ItemID, item.Revision, store.ItemUpdate{
			SetVector: vector,
		})
		if err == nil {
			p.settle()
			if p.bus != nil {
				p.bus.Publish(events.Event{Kind: events.ItemUpdated, Item: updated})
			}
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			p.fail(job, err)
			return
		}
		// Lost the revision race; re-read and re-check the content.
	}
	p.settle()
}

// fail marks a job terminally failed and keeps the queue moving.
func (p *Pipeline) fail(job *Job, err error) {
	if err == nil {
		err = embedder.ErrProviderFailed
	}
	wrapped := fmt.Errorf("%w: item %s after %d attempts: %v", types.ErrEmbeddingFailed, job.ItemID, job.attempts, err)
	log.Printf("pipeline: %v", wrapped)
	p.settle()
	if p.bus != nil {
		p.bus.Publish(events.Event{
			Kind:   events.EmbedFailed,
			ItemID: job.ItemID,
			Err:    wrapped.Error(),
		})
	}
}

// settle advances the monotonic progress counter and publishes it.
func (p *Pipeline) settle() {
	p.mu.Lock()
	p.completed++
	completed, total := p.completed, p.total
	p.mu.Unlock()
	if p.bus != nil {
		p.bus.Publish(events.Event{
			Kind:      events.EmbedProgress,
			Completed: completed,
			Total:     total,
		})
	}
}
