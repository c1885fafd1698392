package pipeline

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/scheduler"
	"github.com/rxtech-lab/argo-batch/internal/types"
)

// Register adds every daily stage to s at its configured trigger. Each task
// carries the artifact check used for missed trigger catch-up.
func (p *Pipeline) Register(s *scheduler.Scheduler) error {
	sched := p.config.Schedule

	tasks := []struct {
		name     string
		at       string
		callback scheduler.Callback
		done     func(now time.Time) bool
	}{
		{
			name: TaskNightlyScan,
			at:   sched.NightlyScan,
			callback: func(ctx context.Context) error {
				_, err := p.RunNightlyScan(ctx, nil)

				return err
			},
			done: func(now time.Time) bool {
				return p.store.HasBatch(p.calendar.TradeDateFor(now))
			},
		},
		{
			name: TaskPremarket,
			at:   sched.Premarket,
			callback: func(ctx context.Context) error {
				_, err := p.RunPremarket(ctx)

				return err
			},
			done: func(now time.Time) bool {
				return p.store.HasFiltered(p.calendar.Date(now))
			},
		},
		{
			name: TaskMonitorStart,
			at:   sched.MonitorStart,
			callback: func(ctx context.Context) error {
				_, err := p.RunMonitorStart(ctx)

				return err
			},
			done: func(now time.Time) bool {
				return p.monitor.Running() || !now.Before(p.calendar.MarketClose(now))
			},
		},
		{
			name:     TaskEntryImmediate,
			at:       sched.EntryImmediate,
			callback: p.entryTask(types.EntryGroupImmediate),
			done:     p.entriesDone(types.EntryGroupImmediate),
		},
		{
			name:     TaskEntryConfirm,
			at:       sched.EntryConfirm,
			callback: p.entryTask(types.EntryGroupConfirm),
			done:     p.entriesDone(types.EntryGroupConfirm),
		},
		{
			name: TaskEndOfDay,
			at:   sched.EndOfDay,
			callback: func(ctx context.Context) error {
				_, err := p.RunEndOfDay(ctx)

				return err
			},
			done: func(now time.Time) bool {
				return p.store.HasSnapshot(p.calendar.Date(now))
			},
		},
	}

	for _, t := range tasks {
		clock, err := config.ParseClock(t.at)
		if err != nil {
			return err
		}

		if err := s.RegisterTask(t.name, clock.Hour, clock.Minute, t.callback, scheduler.WithArtifactCheck(t.done)); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) entryTask(group types.EntryGroup) scheduler.Callback {
	return func(ctx context.Context) error {
		_, err := p.RunEntries(ctx, group)

		return err
	}
}

// entriesDone treats a closed entry window as done; a late catch-up must not
// enter.
func (p *Pipeline) entriesDone(group types.EntryGroup) func(now time.Time) bool {
	return func(now time.Time) bool {
		return p.store.HasEntries(p.calendar.Date(now), group) || !p.entries.IsWindowOpen(now)
	}
}
