// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package queue schedules sync tasks on a Watermill topic and runs them
// through the synchronizers.
//
// Enqueue publishes a task unless an identical one is already waiting. The
// router handler executes it and maps the Result:
//   - Pushed and Skipped acknowledge the message
//   - Retry re-publishes the task with exponential backoff until MaxAttempts
//   - Fatal moves the message to the dead-letter topic
//
// Transport errors follow the configured ErrorAction. Under raise they go
// through the Retry middleware and end in the poison queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/regsync/internal/cache"
	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/syncer"
)

var (
	ErrInvalidTask  = errors.New("invalid task")
	ErrTaskInFlight = errors.New("task is already running")
	ErrClosed       = errors.New("queue closed")
)

// Mode switches test mode on and off.
type Mode string

const (
	// ModeDisabled is normal operation: test mode is off.
	ModeDisabled Mode = "normal"
	// ModeSkip drops every enqueue.
	ModeSkip Mode = "skip"
)

// Message metadata keys.
const (
	MetaTaskKey       = "task_key"
	MetaAttempt       = "attempt"
	MetaCorrelationID = "correlation_id"
	MetaReason        = "dead_letter_reason"
	MetaError         = "dead_letter_error"
	MetaOriginalUUID  = "original_uuid"
)

// Dead-letter reasons.
const (
	ReasonFatal       = "fatal"
	ReasonMaxAttempts = "max_attempts"
	ReasonInvalid     = "invalid"
)

const handlerName = "regsync_tasks"

// Runner executes one task. *syncer.Syncer implements it.
type Runner interface {
	Run(ctx context.Context, task models.Task) (syncer.Result, error)
}

// WindowFunc returns how long a queued task stays unique. Zero keeps it
// unique until execution starts.
type WindowFunc func(task models.Task) time.Duration

// Options configures a Queue.
type Options struct {
	Config config.QueueConfig
	Action syncer.ErrorAction
	Window WindowFunc

	// Jitter is the backoff randomization factor. Negative means the
	// cenkalti default.
	Jitter float64

	Logger zerolog.Logger
}

// Queue is the task queue. It implements syncer.Enqueuer.
type Queue struct {
	cfg      config.QueueConfig
	mode     Mode
	action   syncer.ErrorAction
	window   WindowFunc
	backend  Backend
	runner   Runner
	router   *message.Router
	requeuer *Requeuer
	validate *validator.Validate
	logger   zerolog.Logger

	queued  *locks
	running *locks
	seen    *cache.LRU

	started atomic.Bool
	closed  atomic.Bool
}

var _ syncer.Enqueuer = (*Queue)(nil)

// New wires the router, its middleware and the task handler.
//
//nolint:gocritic // Options carries a zerolog.Logger by value
func New(opts Options, backend Backend, runner Runner) (*Queue, error) {
	if backend.Publisher == nil || backend.Subscriber == nil {
		return nil, errors.New("queue backend requires a publisher and a subscriber")
	}
	if runner == nil {
		return nil, errors.New("queue requires a runner")
	}
	cfg := opts.Config
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	mode := Mode(cfg.Mode)
	if mode == "" {
		mode = ModeDisabled
	}
	action := opts.Action
	if action == "" {
		action = syncer.ActionLog
	}
	window := opts.Window
	if window == nil {
		window = func(models.Task) time.Duration { return 0 }
	}

	logger := opts.Logger.With().Str("component", "queue").Logger()
	wmLogger := logging.NewWatermillAdapter(logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	q := &Queue{
		cfg:      cfg,
		mode:     mode,
		action:   action,
		window:   window,
		backend:  backend,
		runner:   runner,
		router:   router,
		requeuer: NewRequeuer(cfg.InitialInterval, cfg.MaxInterval, cfg.Multiplier, opts.Jitter),
		validate: validator.New(),
		logger:   logger,
		queued:   newLocks(),
		running:  newLocks(),
		seen:     cache.NewLRU(10000, cfg.DedupTTL),
	}
	if err := q.addMiddleware(wmLogger); err != nil {
		return nil, err
	}
	router.AddConsumerHandler(handlerName, cfg.Topic, backend.Subscriber, q.handle)
	return q, nil
}

// Middleware, outer to inner:
//  1. Deduplicator drops redelivered messages by UUID
//  2. PoisonQueue routes handler errors to the dead-letter topic
//  3. Retry retries transport errors with backoff
//  4. Throttle caps throughput (if enabled)
//  5. Recoverer turns panics into errors
//
// The deduplicator sits outside Retry so in-handler retries are never
// mistaken for redeliveries.
func (q *Queue) addMiddleware(logger watermill.LoggerAdapter) error {
	dedup := middleware.Deduplicator{
		KeyFactory: func(msg *message.Message) (string, error) {
			return msg.UUID, nil
		},
		Repository: dedupRepository{seen: q.seen},
	}
	q.router.AddMiddleware(dedup.Middleware)

	poison, err := middleware.PoisonQueue(q.backend.Publisher, q.cfg.DeadLetterTopic)
	if err != nil {
		return fmt.Errorf("create poison queue middleware: %w", err)
	}
	q.router.AddMiddleware(poison)

	retry := middleware.Retry{
		MaxRetries:      q.cfg.HandlerRetries,
		InitialInterval: q.cfg.InitialInterval,
		MaxInterval:     q.cfg.MaxInterval,
		Multiplier:      q.cfg.Multiplier,
		Logger:          logger,
	}
	q.router.AddMiddleware(retry.Middleware)

	if q.cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(q.cfg.ThrottlePerSecond, time.Second)
		q.router.AddMiddleware(throttle.Middleware)
	}

	q.router.AddMiddleware(middleware.Recoverer)
	return nil
}

// Run starts the router and blocks until ctx is canceled or Close is called.
func (q *Queue) Run(ctx context.Context) error {
	if q.closed.Load() {
		return ErrClosed
	}
	q.started.Store(true)
	defer q.started.Store(false)
	return q.router.Run(ctx)
}

// Running returns a channel that closes once the handler is subscribed.
func (q *Queue) Running() <-chan struct{} {
	return q.router.Running()
}

// IsRunning reports whether the router is processing messages.
func (q *Queue) IsRunning() bool {
	return q.started.Load() && !q.closed.Load()
}

// Close stops pending re-deliveries, the router and the backend.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	dropped := q.requeuer.Stop()
	if dropped > 0 {
		q.logger.Warn().Int("pending", dropped).Msg("dropping scheduled re-deliveries on close")
	}
	return errors.Join(q.router.Close(), q.backend.Close())
}

// Enqueue publishes task unless an identical task is already queued.
func (q *Queue) Enqueue(ctx context.Context, task models.Task) error {
	op := string(task.Op)
	if q.mode == ModeSkip {
		metrics.RecordEnqueue(op, "skipped")
		return nil
	}
	if q.closed.Load() {
		metrics.RecordEnqueue(op, "error")
		return ErrClosed
	}
	task.Attempt = 0
	if err := q.validate.Struct(task); err != nil {
		metrics.RecordEnqueue(op, "error")
		return fmt.Errorf("%w %s: %v", ErrInvalidTask, task, err)
	}

	key := task.Key()
	if !q.queued.acquire(key, q.window(task)) {
		metrics.RecordEnqueue(op, "duplicate")
		logging.Ctx(ctx).Debug().Str("task", task.String()).Msg("task already queued")
		return nil
	}
	if err := q.publish(ctx, task); err != nil {
		q.queued.release(key)
		metrics.RecordEnqueue(op, "error")
		return err
	}
	metrics.RecordEnqueue(op, "published")
	return nil
}

func (q *Queue) publish(ctx context.Context, task models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task, err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(MetaTaskKey, task.Key())
	msg.Metadata.Set(MetaAttempt, strconv.Itoa(task.Attempt))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetaCorrelationID, id)
	}
	if err := q.backend.Publisher.Publish(q.cfg.Topic, msg); err != nil {
		return fmt.Errorf("publish task %s: %w", task, err)
	}
	return nil
}

func (q *Queue) handle(msg *message.Message) error {
	var task models.Task
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return q.deadLetter(msg, task, ReasonInvalid, err)
	}

	correlationID := msg.Metadata.Get(MetaCorrelationID)
	if correlationID == "" {
		correlationID = msg.UUID
	}
	log := q.logger.With().Str("task", task.String()).Int("attempt", task.Attempt).
		Str("correlation_id", correlationID).Logger()
	ctx := logging.ContextWithLogger(logging.ContextWithCorrelationID(msg.Context(), correlationID), log)

	key := task.Key()
	if q.window(task) == 0 {
		q.queued.release(key)
	}
	if !q.running.acquire(key, 0) {
		return q.requeue(ctx, msg, task, syncer.Result{Outcome: syncer.OutcomeRetry, Err: ErrTaskInFlight})
	}
	defer q.running.release(key)

	metrics.TrackInFlight(true)
	defer metrics.TrackInFlight(false)

	res, err := q.runner.Run(ctx, task)
	if err != nil {
		return q.transportFailure(&log, err)
	}
	switch res.Outcome {
	case syncer.OutcomeRetry:
		return q.requeue(ctx, msg, task, res)
	case syncer.OutcomeFatal:
		return q.deadLetter(msg, task, ReasonFatal, res.Err)
	default:
		return nil
	}
}

func (q *Queue) transportFailure(log *zerolog.Logger, err error) error {
	switch q.action {
	case syncer.ActionRaise:
		return err
	case syncer.ActionLog:
		log.Error().Err(err).Msg("sync task failed, dropping it")
		return nil
	default:
		return nil
	}
}

// requeue schedules the next attempt of task after a backoff delay.
func (q *Queue) requeue(ctx context.Context, msg *message.Message, task models.Task, res syncer.Result) error {
	next := task
	next.Attempt++
	if next.Attempt >= q.cfg.MaxAttempts {
		return q.deadLetter(msg, task, ReasonMaxAttempts, res.Err)
	}

	key := task.Key()
	window := q.window(task)
	if window == 0 && !q.queued.acquire(key, 0) {
		// A fresh copy was enqueued meanwhile and will run instead.
		metrics.RecordEnqueue(string(task.Op), "duplicate")
		return nil
	}

	delay := q.requeuer.Delay(next.Attempt)
	pubCtx := context.WithoutCancel(ctx)
	scheduled := q.requeuer.After(delay, func() {
		if err := q.publish(pubCtx, next); err != nil {
			if window == 0 {
				q.queued.release(key)
			}
			logging.Ctx(pubCtx).Error().Err(err).Msg("could not re-deliver task")
		}
	})
	if !scheduled {
		if window == 0 {
			q.queued.release(key)
		}
		return nil
	}
	metrics.QueueRequeued.WithLabelValues(string(task.Op)).Inc()
	logging.Ctx(ctx).Debug().Dur("delay", delay).Int("next_attempt", next.Attempt).
		AnErr("reason", res.Err).Msg("task re-delivery scheduled")
	return nil
}

// deadLetter copies msg to the dead-letter topic with the reason attached.
// A publish failure is returned so the message is nacked and redelivered.
func (q *Queue) deadLetter(msg *message.Message, task models.Task, reason string, cause error) error {
	dl := message.NewMessage(uuid.NewString(), msg.Payload)
	for k, v := range msg.Metadata {
		dl.Metadata.Set(k, v)
	}
	dl.Metadata.Set(MetaReason, reason)
	dl.Metadata.Set(MetaOriginalUUID, msg.UUID)
	if cause != nil {
		dl.Metadata.Set(MetaError, cause.Error())
	}
	if err := q.backend.Publisher.Publish(q.cfg.DeadLetterTopic, dl); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}

	op := string(task.Op)
	if op == "" {
		op = "unknown"
	}
	metrics.RecordDeadLetter(op, reason)
	q.logger.Error().Err(cause).Str("task", task.String()).Str("reason", reason).
		Str("message_uuid", msg.UUID).Msg("task moved to dead-letter topic")
	return nil
}

// dedupRepository adapts the LRU to middleware.ExpiringKeyRepository.
type dedupRepository struct {
	seen *cache.LRU
}

func (d dedupRepository) IsDuplicate(_ context.Context, key string) (bool, error) {
	if d.seen.Seen(key) {
		metrics.QueueDuplicates.Inc()
		return true, nil
	}
	return false, nil
}
