package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"carma/internal/events"
	"carma/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink delivers events to an external system.
type Sink interface {
	Name() string
	Accepts(eventType string) bool
	Deliver(ctx context.Context, event *events.Event) error
}

// Task is one event bound for one sink.
type Task struct {
	Sink      string       `json:"sink"`
	Event     events.Event `json:"event"`
	Attempt   int          `json:"attempt"`
	LastError string       `json:"last_error,omitempty"`
}

// Dispatcher fans bus events out to sinks in the background and retries
// failed deliveries with backoff. Tasks that run out of retries, or are
// still waiting when the dispatcher stops, are pushed to a Redis dead-letter
// list when Redis is configured.
type Dispatcher struct {
	sinks         map[string]Sink
	order         []string
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan Task
	deadLetterKey string
	logger        zerolog.Logger

	mu      sync.Mutex
	stopped bool
	pending map[*time.Timer]Task
}

func NewDispatcher(sinks []Sink, redisClient *redis.Client, retry RetryPolicy, queueSize int, deadLetterKey string, logger *zerolog.Logger) *Dispatcher {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	if deadLetterKey == "" {
		deadLetterKey = "carma:events:deadletter"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "dispatcher").Logger()
	}

	d := &Dispatcher{
		sinks:         make(map[string]Sink, len(sinks)),
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan Task, queueSize),
		deadLetterKey: deadLetterKey,
		logger:        l,
		pending:       make(map[*time.Timer]Task),
	}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		d.sinks[s.Name()] = s
		d.order = append(d.order, s.Name())
	}
	return d
}

// Sinks returns the registered sink names.
func (d *Dispatcher) Sinks() []string {
	return append([]string(nil), d.order...)
}

// Attach subscribes the dispatcher to every event on bus.
func (d *Dispatcher) Attach(bus *events.EventBus) (detach func()) {
	return bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		d.Enqueue(e)
		return nil
	})
}

// Enqueue schedules event for every sink that accepts it. It never blocks.
func (d *Dispatcher) Enqueue(e *events.Event) {
	for _, name := range d.order {
		if !d.sinks[name].Accepts(e.Type) {
			continue
		}
		d.push(Task{Sink: name, Event: *e})
	}
}

// push queues task, or dead-letters it when the queue is full or the
// dispatcher has stopped.
func (d *Dispatcher) push(task Task) {
	d.mu.Lock()
	stopped := d.stopped
	queued := false
	if !stopped {
		select {
		case d.queue <- task:
			queued = true
		default:
		}
	}
	d.mu.Unlock()

	switch {
	case queued:
	case stopped:
		d.logger.Warn().Str("sink", task.Sink).Str("event", task.Event.Type).Msg("dispatcher stopped, dead-lettering task")
		d.pushDeadLetter(context.Background(), &task)
	default:
		d.logger.Warn().Str("sink", task.Sink).Str("event", task.Event.Type).Msg("queue full, dead-lettering task")
		task.LastError = "queue full"
		d.pushDeadLetter(context.Background(), &task)
	}
}

// Start processes tasks until ctx is done. On return nothing is left
// waiting: queued tasks and scheduled retries go to the dead-letter list.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Strs("sinks", d.order).Msg("dispatcher started")
	defer d.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.queue:
			d.processTask(ctx, &task)
		}
	}
}

func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped = true
	pending := d.pending
	d.pending = make(map[*time.Timer]Task)
	d.mu.Unlock()

	var left []Task
	for timer, task := range pending {
		timer.Stop()
		left = append(left, task)
	}
	for drained := false; !drained; {
		select {
		case task := <-d.queue:
			left = append(left, task)
		default:
			drained = true
		}
	}

	ctx := context.Background()
	for i := range left {
		d.pushDeadLetter(ctx, &left[i])
	}
	d.logger.Info().Int("dead_lettered", len(left)).Msg("dispatcher stopped")
}

func (d *Dispatcher) processTask(ctx context.Context, task *Task) {
	sink, ok := d.sinks[task.Sink]
	if !ok {
		task.LastError = "unknown sink"
		d.pushDeadLetter(ctx, task)
		return
	}

	err := sink.Deliver(ctx, &task.Event)
	if err == nil {
		metrics.IncDelivery(task.Sink, "ok")
		return
	}

	metrics.IncDelivery(task.Sink, "error")
	task.Attempt++
	task.LastError = err.Error()
	d.retryOrFail(ctx, task)
}

func (d *Dispatcher) retryOrFail(ctx context.Context, task *Task) {
	if d.retryPolicy.Exhausted(task.Attempt) {
		d.logger.Error().Str("sink", task.Sink).Str("event", task.Event.Type).Str("error", task.LastError).Int("attempts", task.Attempt).Msg("delivery failed permanently")
		d.pushDeadLetter(ctx, task)
		return
	}

	delay := d.retryPolicy.NextDelay(task.Attempt)
	d.logger.Warn().Str("sink", task.Sink).Str("error", task.LastError).Dur("retry_in", delay).Msg("delivery failed, retrying")

	retry := *task
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.pushDeadLetter(ctx, &retry)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		_, ok := d.pending[timer]
		delete(d.pending, timer)
		d.mu.Unlock()
		// Absent means shutdown already took the task.
		if ok {
			d.push(retry)
		}
	})
	d.pending[timer] = retry
	d.mu.Unlock()
}

func (d *Dispatcher) pushDeadLetter(ctx context.Context, task *Task) {
	if d.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		d.logger.Error().Err(err).Msg("encode dead letter")
		return
	}
	if err := d.redis.LPush(context.WithoutCancel(ctx), d.deadLetterKey, data).Err(); err != nil {
		d.logger.Error().Err(err).Str("sink", task.Sink).Msg("dead letter push failed")
	}
}
