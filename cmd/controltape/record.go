package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapehouse/controltape/internal/record"
	"github.com/tapehouse/controltape/internal/session"
)

func newRecordCmd() *cobra.Command {
	var overwrite bool
	var summary bool

	cmd := &cobra.Command{
		Use:   "record -- <command> [args...]",
		Short: "Run a command interactively, recording every exchange as a tape",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mode := record.New
			if overwrite {
				mode = record.Overwrite
			}

			s, err := session.New(joinArgs(args),
				session.WithTapesPath(cfg.Tapes.Path),
				session.WithRecordMode(mode),
				session.WithSummary(summary),
				session.WithTimeout(cfg.Session.Timeout()),
				session.WithAppName(cfg.Session.AppName),
			)
			if err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
			defer s.Close(true)

			fmt.Printf("recording %q to %s\n", s.Command(), cfg.Tapes.Path)
			return s.Interact(context.Background())
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing tape exchanges instead of only adding new ones")
	cmd.Flags().BoolVar(&summary, "summary", true, "print a tape usage summary when the session closes")
	return cmd
}
