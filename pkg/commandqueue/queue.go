package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/luna/internal/observability"
	"github.com/harun/luna/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var (
	ErrQueueFull   = errors.New("command queue is full")
	ErrQueueClosed = errors.New("command queue is closed")
	ErrDuplicate   = errors.New("duplicate request")
)

const (
	DefaultMaxConcurrent   = 16
	DefaultMaxPending      = 256
	DefaultLaneConcurrency = 1
	DefaultDedupTTL        = 5 * time.Minute
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// Config bounds the queue.
type Config struct {
	// Name labels the queue in metrics.
	Name            string        `json:"name" mapstructure:"name"`
	MaxConcurrent   int           `json:"max_concurrent" mapstructure:"max_concurrent"`
	MaxPending      int           `json:"max_pending" mapstructure:"max_pending"`
	LaneConcurrency int           `json:"lane_concurrency" mapstructure:"lane_concurrency"`
	DedupTTL        time.Duration `json:"dedup_ttl" mapstructure:"dedup_ttl"`
}

func DefaultConfig() Config {
	return Config{
		Name:            "main",
		MaxConcurrent:   DefaultMaxConcurrent,
		MaxPending:      DefaultMaxPending,
		LaneConcurrency: DefaultLaneConcurrency,
		DedupTTL:        DefaultDedupTTL,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "main"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxPending <= 0 {
		c.MaxPending = DefaultMaxPending
	}
	if c.LaneConcurrency <= 0 {
		c.LaneConcurrency = DefaultLaneConcurrency
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = DefaultDedupTTL
	}
	return c
}

// taskRecord tracks a task's execution state
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
}

// laneState manages execution state for a single lane
type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	activeIDs   map[string]bool
	mu          sync.Mutex
}

// EventHandler is a function that handles queue events
type EventHandler func(event Event)

// Event represents a queue event
type Event struct {
	Type   string                 // "enqueued", "completed" or "rejected"
	Lane   string                 // Lane name
	TaskID string                 // Task ID, empty for rejections
	Data   map[string]interface{} // Additional event data
}

// Stats summarizes the whole queue.
type Stats struct {
	Lanes   int
	Queued  int
	Running int
	Pending int
}

// CommandQueue provides lane-based task serialization with concurrency control
type CommandQueue struct {
	cfg       Config
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	sem     *semaphore.Weighted
	pending atomic.Int64 // queued or waiting for a global slot
	closed  atomic.Bool
	dedup   *dedupCache

	eventHandlers map[string][]EventHandler
	eventMu       sync.RWMutex
}

// New creates a CommandQueue.
func New(cfg Config) *CommandQueue {
	observability.EnsureRegistered()
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &CommandQueue{
		cfg:           cfg,
		lanes:         make(map[string]*laneState),
		ctx:           ctx,
		cancel:        cancel,
		sem:           semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		dedup:         newDedupCache(ctx, cfg.DedupTTL),
		eventHandlers: make(map[string][]EventHandler),
	}
}

// Submit queues task without waiting for it. An empty requestID skips
// duplicate detection. The task's outcome is reported on the "completed" event.
func (cq *CommandQueue) Submit(ctx context.Context, lane, requestID string, task Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestID != "" && !cq.dedup.MarkIfNew(requestID) {
		cq.reject(lane, "duplicate")
		return ErrDuplicate
	}

	return cq.submit(ctx, lane, task)
}

func (cq *CommandQueue) submit(ctx context.Context, lane string, task Task) error {
	if cq.closed.Load() {
		cq.reject(lane, "closed")
		return ErrQueueClosed
	}

	if pending := cq.pending.Add(1); pending > int64(cq.cfg.MaxPending) {
		cq.pending.Add(-1)
		cq.reject(lane, "full")
		return ErrQueueFull
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("lane", lane).Logger()

	cq.mu.Lock()
	if cq.closed.Load() {
		cq.mu.Unlock()
		cq.pending.Add(-1)
		cq.reject(lane, "closed")
		return ErrQueueClosed
	}
	cq.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", cq.cfg.Name, cq.taskIDSeq)

	ls, exists := cq.lanes[lane]
	if !exists {
		ls = &laneState{
			concurrency: cq.cfg.LaneConcurrency,
			activeIDs:   make(map[string]bool),
		}
		cq.lanes[lane] = ls
	}

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()
	cq.mu.Unlock()

	logger.Debug().
		Str("taskId", taskID).
		Int("queueSize", queueSize).
		Int64("pending", cq.pending.Load()).
		Msg("Task enqueued")

	observability.RecordQueueEnqueue(cq.cfg.Name, int(cq.pending.Load()))

	cq.emit(Event{
		Type:   "enqueued",
		Lane:   lane,
		TaskID: taskID,
		Data: map[string]interface{}{
			"queueSize": queueSize,
		},
	})

	go cq.processLane(lane, ls)

	return nil
}

func (cq *CommandQueue) reject(lane, reason string) {
	observability.RecordQueueRejected(reason)
	log.Warn().Str("lane", lane).Str("reason", reason).Msg("Task rejected")
	cq.emit(Event{
		Type: "rejected",
		Lane: lane,
		Data: map[string]interface{}{"reason": reason},
	})
}

// processLane starts queued tasks while the lane has capacity.
func (cq *CommandQueue) processLane(lane string, ls *laneState) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		if cq.closed.Load() {
			return
		}

		record := ls.queue[0]
		ls.queue = ls.queue[1:]

		ls.running++
		ls.activeIDs[record.id] = true

		cq.wg.Add(1)
		go cq.executeTask(lane, ls, record)
	}
}

// executeTask waits for a global slot and runs one task.
func (cq *CommandQueue) executeTask(lane string, ls *laneState, record *taskRecord) {
	defer cq.wg.Done()

	taskCtx, span := tracing.StartSpan(
		record.ctx,
		"luna.commandqueue",
		"commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(taskCtx, log.Logger).With().Str("lane", lane).Logger()

	var (
		err      error
		duration time.Duration
	)

	if acqErr := cq.sem.Acquire(cq.ctx, 1); acqErr != nil {
		cq.pending.Add(-1)
		err = ErrQueueClosed
	} else {
		cq.pending.Add(-1)
		logger.Debug().
			Str("taskId", record.id).
			Dur("waited", time.Since(record.enqueuedAt)).
			Msg("Task started")

		runCtx, cancel := context.WithCancel(taskCtx)
		stopCancel := context.AfterFunc(cq.ctx, cancel)

		startTime := time.Now()
		_, err = runTask(runCtx, record.task)
		duration = time.Since(startTime)

		stopCancel()
		cancel()
		cq.sem.Release(1)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("taskId", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	observability.RecordQueueCompletion(cq.cfg.Name, duration, err == nil, int(cq.pending.Load()))

	data := map[string]interface{}{
		"duration": duration.Milliseconds(),
		"success":  err == nil,
	}
	if err != nil {
		data["error"] = err
	}
	cq.emit(Event{Type: "completed", Lane: lane, TaskID: record.id, Data: data})

	cq.finishTask(lane, ls, record.id)
}

// finishTask releases the lane slot, drops the lane once idle and starts
// the next queued task.
func (cq *CommandQueue) finishTask(lane string, ls *laneState, taskID string) {
	cq.mu.Lock()
	ls.mu.Lock()
	ls.running--
	delete(ls.activeIDs, taskID)
	idle := ls.running == 0 && len(ls.queue) == 0
	if idle && cq.lanes[lane] == ls {
		delete(cq.lanes, lane)
	}
	ls.mu.Unlock()
	cq.mu.Unlock()

	if !idle {
		cq.processLane(lane, ls)
	}
}

func runTask(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Stats aggregates all lanes.
func (cq *CommandQueue) Stats() Stats {
	cq.mu.RLock()
	defer cq.mu.RUnlock()

	s := Stats{Lanes: len(cq.lanes), Pending: int(cq.pending.Load())}
	for _, ls := range cq.lanes {
		ls.mu.Lock()
		s.Queued += len(ls.queue)
		s.Running += ls.running
		ls.mu.Unlock()
	}
	return s
}

// WaitForActive waits for all active tasks to complete with timeout
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s := cq.Stats(); s.Running == 0 && s.Queued == 0 {
			return true
		}

		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}

		<-ticker.C
	}
}

// Close rejects queued tasks, cancels running ones and waits for them.
func (cq *CommandQueue) Close() error {
	if !cq.closed.CompareAndSwap(false, true) {
		return nil
	}

	cq.mu.Lock()
	dropped := 0
	for _, ls := range cq.lanes {
		ls.mu.Lock()
		for range ls.queue {
			cq.pending.Add(-1)
			dropped++
		}
		ls.queue = nil
		ls.mu.Unlock()
	}
	cq.mu.Unlock()

	cq.cancel()
	cq.wg.Wait()
	cq.dedup.Stop()

	observability.SetQueueSize(cq.cfg.Name, 0)
	log.Info().Int("dropped", dropped).Msg("Command queue closed")
	return nil
}

// On registers an event handler for a specific event type
func (cq *CommandQueue) On(eventType string, handler EventHandler) {
	cq.eventMu.Lock()
	defer cq.eventMu.Unlock()

	cq.eventHandlers[eventType] = append(cq.eventHandlers[eventType], handler)
}

// emit emits an event synchronously to all registered handlers
func (cq *CommandQueue) emit(event Event) {
	cq.eventMu.RLock()
	handlers := cq.eventHandlers[event.Type]
	cq.eventMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
