package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/metrics"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// Callback is the work of a scheduled task.
type Callback func(ctx context.Context) error

// Clock is the scheduler's source of time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
func RealClock() Clock { return realClock{} }

// Outcome of the latest run of a task.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// TaskStatus is a point-in-time view of a registered task.
type TaskStatus struct {
	Name        string        `json:"name"`
	Trigger     string        `json:"trigger"`
	NextRun     time.Time     `json:"next_run"`
	LastRun     time.Time     `json:"last_run,omitempty"`
	LastOutcome string        `json:"last_outcome,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Attempts    int           `json:"attempts,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// TaskOption customizes a registered task.
type TaskOption func(*task)

// WithArtifactCheck enables catch-up for the task. done reports whether the
// run due at now already produced its artifact.
func WithArtifactCheck(done func(now time.Time) bool) TaskOption {
	return func(t *task) {
		t.done = done
	}
}

// WithRetry overrides the scheduler's retry policy for one task.
func WithRetry(policy config.RetryConfig) TaskOption {
	return func(t *task) {
		t.retry = policy
	}
}

type task struct {
	name     string
	hour     int
	minute   int
	callback Callback
	done     func(now time.Time) bool
	retry    config.RetryConfig
	next     time.Time
	status   TaskStatus
}

// Scheduler fires registered tasks at wall-clock times in the venue zone on
// trading days. Tasks run one at a time on the scheduler loop.
type Scheduler struct {
	calendar *calendar.Calendar
	retry    config.RetryConfig
	clock    Clock
	metrics  *metrics.Recorder
	logger   *logger.Logger

	mu      sync.Mutex
	tasks   []*task
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cal *calendar.Calendar, retry config.RetryConfig, clock Clock, rec *metrics.Recorder, log *logger.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}

	return &Scheduler{
		calendar: cal,
		retry:    retry,
		clock:    clock,
		metrics:  rec,
		logger:   log.Component("scheduler"),
		tasks:    []*task{},
	}
}

// RegisterTask adds a task that fires daily at hour:minute venue time.
func (s *Scheduler) RegisterTask(name string, hour, minute int, callback Callback, opts ...TaskOption) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "invalid trigger %02d:%02d for task %s", hour, minute, name)
	}

	if callback == nil {
		return errors.Newf(errors.ErrCodeMissingParameter, "task %s has no callback", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Newf(errors.ErrCodeSchedulerRunning, "cannot register %s while the scheduler is running", name)
	}

	for _, t := range s.tasks {
		if t.name == name {
			return errors.Newf(errors.ErrCodeTaskAlreadyExists, "task %s already registered", name)
		}
	}

	t := &task{
		name:     name,
		hour:     hour,
		minute:   minute,
		callback: callback,
		retry:    s.retry,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.status = TaskStatus{Name: name, Trigger: fmt.Sprintf("%02d:%02d", hour, minute)}
	s.tasks = append(s.tasks, t)

	return nil
}

// NextTrigger returns the first trigger strictly after from: today at
// hour:minute if still ahead, otherwise a later day, skipping non-trading days.
func (s *Scheduler) NextTrigger(hour, minute int, from time.Time) time.Time {
	next := s.calendar.At(from, hour, minute)
	if !next.After(from) {
		next = s.calendar.At(next.AddDate(0, 0, 1), hour, minute)
	}

	for !s.calendar.IsTradingDay(next) {
		next = s.calendar.At(next.AddDate(0, 0, 1), hour, minute)
	}

	return next
}

// Start catches up missed tasks and runs the loop until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(errors.ErrCodeSchedulerRunning, "scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	now := s.clock.Now()
	for _, t := range s.tasks {
		t.next = s.NextTrigger(t.hour, t.minute, now)
		t.status.NextRun = t.next
	}

	go s.loop(loopCtx, s.done)

	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))

	return nil
}

// Stop ends the loop and waits for a running task to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return
	}

	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Scheduler stopped")
}

// Tasks returns the status of every task in trigger order.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.ordered() {
		out = append(out, t.status)
	}

	return out
}

// RunNow runs a task immediately with its retry policy, outside the loop.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *task

	for _, t := range s.tasks {
		if t.name == name {
			found = t
		}
	}
	s.mu.Unlock()

	if found == nil {
		return errors.Newf(errors.ErrCodeInvalidParameter, "unknown task %s", name)
	}

	return s.run(ctx, found, s.clock.Now())
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.catchUp(ctx)

	for {
		s.mu.Lock()
		due := s.earliest()
		s.mu.Unlock()

		if due == nil {
			<-ctx.Done()

			return
		}

		wait := due.next.Sub(s.clock.Now())

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}

		now := s.clock.Now()

		s.mu.Lock()
		ready := make([]*task, 0, len(s.tasks))
		for _, t := range s.ordered() {
			if !t.next.After(now) {
				ready = append(ready, t)
			}
		}
		s.mu.Unlock()

		for _, t := range ready {
			if ctx.Err() != nil {
				return
			}

			_ = s.run(ctx, t, t.next)

			s.mu.Lock()
			t.next = s.NextTrigger(t.hour, t.minute, s.clock.Now())
			t.status.NextRun = t.next
			s.mu.Unlock()
		}
	}
}

// catchUp fires tasks whose trigger already passed today and whose artifact
// is missing.
func (s *Scheduler) catchUp(ctx context.Context) {
	now := s.clock.Now()
	if !s.calendar.IsTradingDay(now) {
		return
	}

	s.mu.Lock()
	tasks := s.ordered()
	s.mu.Unlock()

	for _, t := range tasks {
		if t.done == nil || ctx.Err() != nil {
			continue
		}

		trigger := s.calendar.At(now, t.hour, t.minute)
		if trigger.After(now) || t.done(now) {
			continue
		}

		s.logger.Info("Catching up missed task",
			zap.String("task", t.name),
			zap.Time("trigger", trigger),
		)

		_ = s.run(ctx, t, trigger)
	}
}

func (s *Scheduler) run(ctx context.Context, t *task, trigger time.Time) error {
	log := s.logger.With(zap.String("task", t.name), zap.Time("trigger", trigger))
	start := s.clock.Now()
	attempts := 0

	log.Info("Task started")

	policy := backoff.NewExponentialBackOff()
	if t.retry.InitialInterval > 0 {
		policy.InitialInterval = t.retry.InitialInterval
	}

	if t.retry.MaxInterval > 0 {
		policy.MaxInterval = t.retry.MaxInterval
	}

	policy.MaxElapsedTime = 0

	operation := func() error {
		attempts++

		err := invoke(ctx, t.callback)
		if errors.HasCode(err, errors.ErrCodeStageSkipped) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		log.Warn("Task attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	retries := uint64(max(t.retry.MaxAttempts, 1) - 1)
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
	elapsed := s.clock.Now().Sub(start)

	outcome := OutcomeSuccess

	switch {
	case err == nil:
		log.Info("Task finished", zap.Int("attempts", attempts), zap.Duration("duration", elapsed))
	case errors.HasCode(err, errors.ErrCodeStageSkipped):
		outcome = OutcomeSkipped
		log.Info("Task skipped", zap.Duration("duration", elapsed), zap.String("reason", err.Error()))
	default:
		outcome = OutcomeFailure
		log.Error("Task failed",
			zap.Int("attempts", attempts),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
	}

	s.metrics.RecordTask(t.name, outcome, elapsed)

	s.mu.Lock()
	t.status.LastRun = start
	t.status.LastOutcome = outcome
	t.status.Attempts = attempts
	t.status.Duration = elapsed
	t.status.LastError = ""

	if err != nil && outcome == OutcomeFailure {
		t.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if outcome == OutcomeSkipped {
		return nil
	}

	return err
}

// invoke runs a callback, turning a panic into an error so the loop survives.
func invoke(ctx context.Context, callback Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeCallbackFailed, "task panicked: %v", r)
		}
	}()

	return callback(ctx)
}

// ordered returns tasks sorted by trigger time, registration order breaking ties.
func (s *Scheduler) ordered() []*task {
	out := append([]*task(nil), s.tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].hour != out[j].hour {
			return out[i].hour < out[j].hour
		}

		return out[i].minute < out[j].minute
	})

	return out
}

func (s *Scheduler) earliest() *task {
	var first *task

	for _, t := range s.tasks {
		if first == nil || t.next.Before(first.next) {
			first = t
		}
	}

	return first
}
