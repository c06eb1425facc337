package main

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/tapehouse/controltape/internal/session"
)

func newRunCmd() *cobra.Command {
	var expectPattern string
	var send string
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a one-shot command, optionally expecting a pattern and sending a line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expect *regexp.Regexp
			if expectPattern != "" {
				re, err := regexp.Compile(expectPattern)
				if err != nil {
					return fmt.Errorf("invalid --expect pattern: %w", err)
				}
				expect = re
			}

			out, err := session.Run(joinArgs(args), expect, send, time.Duration(timeoutSeconds)*time.Second)
			os.Stdout.Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&expectPattern, "expect", "", "regexp to wait for before sending/returning")
	cmd.Flags().StringVar(&send, "send", "", "line to send after the expect pattern matches")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 30, "timeout in seconds")
	return cmd
}
