package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
)

func dashboardAction(_ context.Context, cmd *cli.Command) error {
	m := NewModel(cmd.String("addr"), cmd.Duration("interval"))

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "dashboard",
		Usage: "Watch the batch engine's scheduled stages and held positions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Engine HTTP address (prompted when empty)",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Polling interval",
				Value:   2 * time.Second,
			},
		},
		Action: dashboardAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
