package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/argo-batch/internal/app"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/pipeline"
	"github.com/rxtech-lab/argo-batch/internal/store"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/version"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// env holds what every subcommand needs before it builds the engine.
type env struct {
	config *config.Config
	logger *logger.Logger
}

func setup(cmd *cli.Command) (*env, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}

	log, err := logger.NewLoggerWithOptions(logger.Options{
		Level:       level,
		Development: cfg.Log.Development || cmd.Bool("dev"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &env{config: cfg, logger: log}, nil
}

// withApp builds the engine, runs fn and releases the engine's resources.
func withApp(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, a *app.App) error) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals

	a, err := app.New(e.config, e.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx, a)

	if err := a.Close(); err != nil && runErr == nil {
		return err
	}

	return runErr
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals

	a, err := app.New(e.config, e.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e.logger.Info("Starting argo-batch", zap.String("version", version.GetVersion()), zap.String("data_dir", e.config.Storage.DataDir))

	return a.Run(ctx)
}

func scanAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		var bar *progressbar.ProgressBar

		progress := func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total, progressbar.OptionSetDescription("Fetching history"), progressbar.OptionShowCount())
			}

			_ = bar.Set(done)
		}

		result, err := a.Pipeline.RunNightlyScan(ctx, progress)
		if bar != nil {
			_ = bar.Finish()
			fmt.Println()
		}

		if err != nil {
			return err
		}

		return printJSON(result)
	})
}

func filterAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		result, err := a.Pipeline.RunPremarket(ctx)
		if err != nil {
			return err
		}

		return printJSON(result)
	})
}

func enterAction(ctx context.Context, cmd *cli.Command) error {
	group := types.EntryGroup(cmd.String("group"))
	if group != types.EntryGroupImmediate && group != types.EntryGroupConfirm {
		return fmt.Errorf("--group must be %s or %s", types.EntryGroupImmediate, types.EntryGroupConfirm)
	}

	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		report, err := a.Pipeline.RunEntries(ctx, group)
		if err != nil {
			return err
		}

		return printJSON(report)
	})
}

func reconcileAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		report, held, err := a.Pipeline.Reconcile(ctx)
		if err != nil {
			return err
		}

		return printJSON(map[string]any{"report": report, "positions": held})
	})
}

func taskAction(ctx context.Context, cmd *cli.Command) error {
	name := cmd.String("name")

	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Scheduler.RunNow(ctx, name); err != nil {
			return err
		}

		for _, t := range a.Scheduler.Tasks() {
			if t.Name == name {
				return printJSON(t)
			}
		}

		return nil
	})
}

// statusAction reads artifacts only; it does not connect to a broker.
func statusAction(_ context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	st, err := store.New(e.config.Storage.DataDir, e.logger)
	if err != nil {
		return err
	}

	held, err := st.LoadPositions()
	if err != nil {
		return err
	}

	snapshots := make([]types.PositionSnapshot, 0, len(held))
	for _, p := range held {
		snapshots = append(snapshots, p.Snapshot())
	}

	out := map[string]any{
		"version":   version.GetVersion(),
		"positions": snapshots,
	}

	if batch, err := st.LatestBatch(); err == nil {
		out["batch"] = map[string]any{
			"trade_date":   batch.TradeDate,
			"scan_date":    batch.ScanDate,
			"regime":       batch.Regime,
			"candidates":   batch.Candidates,
			"signal_count": batch.SignalCount,
			"metadata":     batch.Metadata,
		}
	}

	return printJSON(out)
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "argo-batch",
		Usage:   "Nightly scan, ranking, entry and position monitoring engine",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Human readable console logging",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the scheduler, position monitor and status server until interrupted",
				Action: runAction,
			},
			{
				Name:   "scan",
				Usage:  "Run the nightly scan and ranking now",
				Action: scanAction,
			},
			{
				Name:   "filter",
				Usage:  "Run the pre-market gap filter for today",
				Action: filterAction,
			},
			{
				Name:  "enter",
				Usage: "Run one entry group for today",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "group",
						Aliases:  []string{"g"},
						Usage:    "Entry group: immediate or confirm",
						Required: true,
					},
				},
				Action: enterAction,
			},
			{
				Name:   "reconcile",
				Usage:  "Reconcile the position table with the broker",
				Action: reconcileAction,
			},
			{
				Name:  "task",
				Usage: "Run one scheduled task now with its retry policy",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    fmt.Sprintf("Task name, e.g. %s or %s", pipeline.TaskNightlyScan, pipeline.TaskEndOfDay),
						Required: true,
					},
				},
				Action: taskAction,
			},
			{
				Name:   "status",
				Usage:  "Print the latest batch and the persisted positions",
				Action: statusAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the config file",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
