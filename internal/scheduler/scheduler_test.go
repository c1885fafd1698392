package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/metrics"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now

		return ch
	}

	c.waiters = append(c.waiters, waiter{deadline: c.now.Add(d), ch: ch})

	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now

			continue
		}

		pending = append(pending, w)
	}

	c.waiters = pending
}

func (c *fakeClock) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.waiters)
}

type SchedulerTestSuite struct {
	suite.Suite
	calendar  *calendar.Calendar
	clock     *fakeClock
	scheduler *Scheduler
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (suite *SchedulerTestSuite) SetupTest() {
	cal, err := calendar.New("America/New_York", []string{"2026-10-19"}, 9*time.Hour+30*time.Minute, 16*time.Hour)
	suite.Require().NoError(err)

	suite.calendar = cal
	// Thursday
	suite.clock = &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, cal.Location())}
	suite.scheduler = New(cal, config.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, suite.clock, metrics.New(), logger.NewNop())
}

func (suite *SchedulerTestSuite) TearDownTest() {
	suite.scheduler.Stop()
}

func (suite *SchedulerTestSuite) local(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, suite.calendar.Location())
}

func (suite *SchedulerTestSuite) waitForSleep() {
	suite.Eventually(func() bool { return suite.clock.Waiting() == 1 }, time.Second, time.Millisecond)
}

func (suite *SchedulerTestSuite) TestNextTrigger() {
	s := suite.scheduler

	suite.Equal(suite.local(2026, 10, 15, 9, 31), s.NextTrigger(9, 31, suite.local(2026, 10, 15, 9, 0)))
	// passed today
	suite.Equal(suite.local(2026, 10, 16, 9, 31), s.NextTrigger(9, 31, suite.local(2026, 10, 15, 9, 31)))
	// friday evening skips the weekend and the monday holiday
	suite.Equal(suite.local(2026, 10, 20, 20, 0), s.NextTrigger(20, 0, suite.local(2026, 10, 16, 20, 5)))
	suite.Equal(suite.local(2026, 10, 16, 20, 0), s.NextTrigger(20, 0, suite.local(2026, 10, 16, 19, 0)))
}

func (suite *SchedulerTestSuite) TestRegisterValidation() {
	noop := func(context.Context) error { return nil }

	suite.Require().NoError(suite.scheduler.RegisterTask("scan", 20, 0, noop))
	suite.True(errors.HasCode(suite.scheduler.RegisterTask("scan", 21, 0, noop), errors.ErrCodeTaskAlreadyExists))
	suite.True(errors.HasCode(suite.scheduler.RegisterTask("bad", 24, 0, noop), errors.ErrCodeInvalidParameter))
	suite.True(errors.HasCode(suite.scheduler.RegisterTask("nil", 9, 0, nil), errors.ErrCodeMissingParameter))

	suite.Require().NoError(suite.scheduler.Start(context.Background()))
	suite.True(errors.HasCode(suite.scheduler.RegisterTask("late", 9, 0, noop), errors.ErrCodeSchedulerRunning))
	suite.True(errors.HasCode(suite.scheduler.Start(context.Background()), errors.ErrCodeSchedulerRunning))
}

func (suite *SchedulerTestSuite) TestFiresAtTriggerAndReschedules() {
	var runs atomic.Int32

	suite.Require().NoError(suite.scheduler.RegisterTask("premarket", 9, 15, func(context.Context) error {
		runs.Add(1)

		return nil
	}))
	suite.Require().NoError(suite.scheduler.Start(context.Background()))
	suite.waitForSleep()
	suite.Zero(runs.Load())

	suite.clock.Advance(15 * time.Minute)
	suite.Eventually(func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	suite.waitForSleep()

	status := suite.scheduler.Tasks()
	suite.Require().Len(status, 1)
	suite.Equal(OutcomeSuccess, status[0].LastOutcome)
	suite.Equal(suite.local(2026, 10, 16, 9, 15), status[0].NextRun)
	suite.Equal("09:15", status[0].Trigger)
}

func (suite *SchedulerTestSuite) TestRunsTasksInTriggerOrder() {
	var (
		mu    sync.Mutex
		order []string
	)

	record := func(name string) Callback {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()

			order = append(order, name)

			return nil
		}
	}

	suite.Require().NoError(suite.scheduler.RegisterTask("confirm", 9, 10, record("confirm")))
	suite.Require().NoError(suite.scheduler.RegisterTask("premarket", 9, 5, record("premarket")))
	suite.Require().NoError(suite.scheduler.Start(context.Background()))
	suite.waitForSleep()

	suite.clock.Advance(time.Hour)
	suite.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(order) == 2
	}, time.Second, time.Millisecond)

	suite.Equal([]string{"premarket", "confirm"}, order)
}

func (suite *SchedulerTestSuite) TestFailureIsRetriedAndLoopContinues() {
	var calls atomic.Int32

	suite.Require().NoError(suite.scheduler.RegisterTask("scan", 9, 30, func(context.Context) error {
		calls.Add(1)

		return errors.New(errors.ErrCodeScanFailure, "provider down")
	}))
	suite.Require().NoError(suite.scheduler.Start(context.Background()))
	suite.waitForSleep()

	suite.clock.Advance(30 * time.Minute)
	suite.Eventually(func() bool {
		status := suite.scheduler.Tasks()

		return status[0].LastOutcome == OutcomeFailure
	}, time.Second, time.Millisecond)

	suite.Equal(int32(3), calls.Load())
	suite.waitForSleep()

	status := suite.scheduler.Tasks()[0]
	suite.Equal(3, status.Attempts)
	suite.Contains(status.LastError, "provider down")
	suite.Equal(suite.local(2026, 10, 16, 9, 30), status.NextRun)
}

func (suite *SchedulerTestSuite) TestRetryRecovers() {
	var calls atomic.Int32

	suite.Require().NoError(suite.scheduler.RegisterTask("filter", 9, 0, func(context.Context) error {
		if calls.Add(1) < 2 {
			return errors.New(errors.ErrCodeDataSourceUnavailable, "flaky")
		}

		return nil
	}))

	suite.Require().NoError(suite.scheduler.RunNow(context.Background(), "filter"))
	suite.Equal(int32(2), calls.Load())
	suite.Equal(OutcomeSuccess, suite.scheduler.Tasks()[0].LastOutcome)
}

func (suite *SchedulerTestSuite) TestSkippedStageIsNotRetried() {
	var calls atomic.Int32

	suite.Require().NoError(suite.scheduler.RegisterTask("entry", 9, 31, func(context.Context) error {
		calls.Add(1)

		return errors.New(errors.ErrCodeStageSkipped, "entry window closed")
	}))

	suite.Require().NoError(suite.scheduler.RunNow(context.Background(), "entry"))
	suite.Equal(int32(1), calls.Load())
	suite.Equal(OutcomeSkipped, suite.scheduler.Tasks()[0].LastOutcome)
}

func (suite *SchedulerTestSuite) TestPanicIsContained() {
	suite.Require().NoError(suite.scheduler.RegisterTask("eod", 16, 10, func(context.Context) error {
		panic("boom")
	}))

	err := suite.scheduler.RunNow(context.Background(), "eod")
	suite.True(errors.HasCode(err, errors.ErrCodeCallbackFailed))
}

func (suite *SchedulerTestSuite) TestCatchUpMissedTask() {
	suite.clock = &fakeClock{now: suite.local(2026, 10, 15, 11, 0)}
	suite.scheduler = New(suite.calendar, config.RetryConfig{MaxAttempts: 1}, suite.clock, nil, logger.NewNop())

	var missed, present, upcoming atomic.Int32

	suite.Require().NoError(suite.scheduler.RegisterTask("premarket", 9, 15, func(context.Context) error {
		missed.Add(1)

		return nil
	}, WithArtifactCheck(func(time.Time) bool { return false })))
	suite.Require().NoError(suite.scheduler.RegisterTask("entry", 9, 31, func(context.Context) error {
		present.Add(1)

		return nil
	}, WithArtifactCheck(func(time.Time) bool { return true })))
	suite.Require().NoError(suite.scheduler.RegisterTask("eod", 16, 10, func(context.Context) error {
		upcoming.Add(1)

		return nil
	}, WithArtifactCheck(func(time.Time) bool { return false })))

	suite.Require().NoError(suite.scheduler.Start(context.Background()))
	suite.Eventually(func() bool { return missed.Load() == 1 }, time.Second, time.Millisecond)
	suite.waitForSleep()

	suite.Zero(present.Load())
	suite.Zero(upcoming.Load())
}

func (suite *SchedulerTestSuite) TestNoCatchUpOnWeekend() {
	suite.clock = &fakeClock{now: suite.local(2026, 10, 17, 11, 0)}
	suite.scheduler = New(suite.calendar, config.RetryConfig{MaxAttempts: 1}, suite.clock, nil, logger.NewNop())

	var runs atomic.Int32

	suite.Require().NoError(suite.scheduler.RegisterTask("premarket", 9, 15, func(context.Context) error {
		runs.Add(1)

		return nil
	}, WithArtifactCheck(func(time.Time) bool { return false })))

	suite.Require().NoError(suite.scheduler.Start(context.Background()))
	suite.waitForSleep()
	suite.Zero(runs.Load())
	suite.Equal(suite.local(2026, 10, 20, 9, 15), suite.scheduler.Tasks()[0].NextRun)
}
