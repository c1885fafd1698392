package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/broker"
	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/entry"
	"github.com/rxtech-lab/argo-batch/internal/exit"
	"github.com/rxtech-lab/argo-batch/internal/fetcher"
	"github.com/rxtech-lab/argo-batch/internal/gapfilter"
	"github.com/rxtech-lab/argo-batch/internal/indicator"
	"github.com/rxtech-lab/argo-batch/internal/journal"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/metrics"
	"github.com/rxtech-lab/argo-batch/internal/monitor"
	"github.com/rxtech-lab/argo-batch/internal/order"
	"github.com/rxtech-lab/argo-batch/internal/pipeline"
	"github.com/rxtech-lab/argo-batch/internal/ranker"
	"github.com/rxtech-lab/argo-batch/internal/regime"
	"github.com/rxtech-lab/argo-batch/internal/risk"
	"github.com/rxtech-lab/argo-batch/internal/scanner"
	"github.com/rxtech-lab/argo-batch/internal/scheduler"
	"github.com/rxtech-lab/argo-batch/internal/server"
	"github.com/rxtech-lab/argo-batch/internal/store"
	"github.com/rxtech-lab/argo-batch/internal/strategy"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// JournalFile is the order journal's parquet export under the data dir.
const JournalFile = "journal/orders.parquet"

// App holds every component built from one configuration.
type App struct {
	Config    *config.Config
	Calendar  *calendar.Calendar
	Store     *store.Store
	Broker    broker.Broker
	Journal   *journal.Journal
	Orders    *order.Manager
	Monitor   *monitor.Monitor
	Scheduler *scheduler.Scheduler
	Pipeline  *pipeline.Pipeline
	Metrics   *metrics.Recorder
	Server    *server.Server

	closers []func() error
	logger  *logger.Logger
}

// New wires the engine. Nothing is started.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, logger: log.Component("app")}

	cal, err := NewCalendar(cfg.Venue)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Storage.DataDir, log)
	if err != nil {
		return nil, err
	}

	md, err := broker.NewMarketData(cfg.Broker, log)
	if err != nil {
		return nil, err
	}

	if closer, ok := md.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	trading, err := broker.NewTrading(cfg.Broker, md, log)
	if err != nil {
		_ = a.close()

		return nil, err
	}

	j, err := journal.Open(filepath.Join(cfg.Storage.DataDir, JournalFile), log)
	if err != nil {
		_ = a.close()

		return nil, err
	}

	a.closers = append(a.closers, j.Close)

	rec := metrics.New()
	batchFetcher := fetcher.New(md, fetcher.Config{
		BatchSize:         cfg.Scan.BatchSize,
		RequestsPerSecond: cfg.Scan.RequestsPerSecond,
		Burst:             cfg.Scan.Burst,
		MinHistory:        cfg.Scan.MinHistory,
	}, log)

	sc, err := newScanner(cfg, batchFetcher, log)
	if err != nil {
		_ = a.close()

		return nil, err
	}

	orders := order.New(trading, j, cfg.Orders, log).WithMetrics(rec)

	mon := monitor.New(monitor.Deps{
		Feed:              md,
		Orders:            orders,
		Store:             st,
		Engine:            exit.New(cfg.Exit, cfg.Strategies, cal, log),
		Calendar:          cal,
		Metrics:           rec,
		ReconnectMax:      cfg.Exit.ReconnectMax,
		PersistInterval:   cfg.Exit.PersistInterval,
		ExitRetryCooldown: cfg.Exit.RetryCooldown,
		Now:               nil,
	}, log)

	entries := entry.New(entry.Deps{
		Calendar:    cal,
		WindowClose: config.MustClock(cfg.Entry.WindowClose),
		Strategies:  cfg.Strategies,
		Orders:      orders,
		Positions:   mon,
		Account:     trading,
		Prices:      batchFetcher,
		Blocks:      st,
		Risk:        risk.New(cfg.Risk, log),
		Now:         nil,
	}, log)

	b := broker.Compose(md, trading)

	p := pipeline.New(pipeline.Deps{
		Config:   cfg,
		Calendar: cal,
		Store:    st,
		Scanner:  sc,
		Ranker:   ranker.New(cfg.Ranking, cfg.Strategies, cfg.SymbolGroups(), log),
		Gap:      gapfilter.New(batchFetcher, log),
		Entries:  entries,
		Monitor:  mon,
		Broker:   b,
		Metrics:  rec,
		Now:      nil,
	}, log)

	sched := scheduler.New(cal, cfg.Schedule.Retry, scheduler.RealClock(), rec, log)
	if err := p.Register(sched); err != nil {
		_ = a.close()

		return nil, err
	}

	a.Calendar = cal
	a.Store = st
	a.Broker = b
	a.Journal = j
	a.Orders = orders
	a.Monitor = mon
	a.Scheduler = sched
	a.Pipeline = p
	a.Metrics = rec

	if cfg.Server.Enabled {
		a.Server = server.New(server.Deps{
			Addr:      cfg.Server.Addr,
			Tasks:     sched,
			Positions: mon,
			Batches:   st,
			Metrics:   rec.Handler(),
			Now:       nil,
		}, log)
	}

	return a, nil
}

// NewCalendar builds the venue calendar from its config section.
func NewCalendar(venue config.VenueConfig) (*calendar.Calendar, error) {
	open, err := config.ParseClock(venue.MarketOpen)
	if err != nil {
		return nil, err
	}

	closeAt, err := config.ParseClock(venue.MarketClose)
	if err != nil {
		return nil, err
	}

	return calendar.New(venue.Timezone, venue.Holidays, sinceMidnight(open), sinceMidnight(closeAt))
}

func sinceMidnight(c config.Clock) time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

func newScanner(cfg *config.Config, f *fetcher.BatchFetcher, log *logger.Logger) (*scanner.NightlyScanner, error) {
	names := cfg.EnabledStrategies()

	strategies, err := strategy.NewRegistry(names)
	if err != nil {
		return nil, err
	}

	params := make(map[string]map[string]float64, len(names))
	for _, name := range names {
		params[name] = cfg.Strategies[name].Params
	}

	return scanner.New(f, indicator.NewDefaultRegistry(), strategies, regime.NewDetector(regime.DefaultConfig()), scanner.Config{
		HistoryDays:   cfg.Scan.HistoryDays,
		Workers:       cfg.Scan.Workers,
		MaxAttempts:   cfg.Scan.MaxAttempts,
		RetryInterval: cfg.Scan.RetryInterval,
		Benchmark:     cfg.Universe.Benchmark,
		Params:        params,
	}, log), nil
}

// Run starts the scheduler and the HTTP server and blocks until ctx is
// cancelled. The monitor is stopped on the way out so the position table is
// persisted.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)

	if a.Server != nil {
		go func() {
			serverErr <- a.Server.Run(ctx)
		}()
	}

	a.logger.Info("Batch engine running", zap.Int("tasks", len(a.Scheduler.Tasks())))

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		if runErr != nil {
			a.logger.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	a.Scheduler.Stop()
	a.Monitor.Stop()

	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}

	a.logger.Info("Batch engine stopped")

	return runErr
}

// Close releases the journal and market data resources.
func (a *App) Close() error {
	if a.Monitor != nil {
		a.Monitor.Stop()
	}

	return a.close()
}

func (a *App) close() error {
	var first error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = errors.Wrap(errors.ErrCodeUnknown, "failed to release resource", err)
		}
	}

	a.closers = nil

	return first
}
