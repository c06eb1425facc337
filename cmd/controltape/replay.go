package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tapehouse/controltape/internal/session"
)

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func newReplayCmd() *cobra.Command {
	var proxy bool

	cmd := &cobra.Command{
		Use:   "replay -- <command> [args...]",
		Short: "Replay a command against previously recorded tapes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fallback := session.NotFound
			if proxy {
				fallback = session.Proxy
			}

			s, err := session.New(joinArgs(args),
				session.WithReplay(true, cfg.Tapes.Path),
				session.WithFallback(fallback),
				session.WithTimeout(cfg.Session.Timeout()),
				session.WithAppName(cfg.Session.AppName),
			)
			if err != nil {
				return fmt.Errorf("failed to start replay session: %w", err)
			}
			defer s.Close(true)

			fmt.Printf("replaying %q from %s\n", s.Command(), cfg.Tapes.Path)
			return replayREPL(s)
		},
	}

	cmd.Flags().BoolVar(&proxy, "proxy-on-miss", false, "fall back to a live child when no tape matches")
	return cmd
}

// replayREPL is the replay equivalent of Interact (which only works
// against a live PTY): it reads a line from stdin, sends it, and
// prints whatever output the replay transport produced.
func replayREPL(s *session.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	for s.IsAlive() && scanner.Scan() {
		if err := s.SendLine(scanner.Text()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		out, _ := s.ReadNonblocking(1<<16, 200*time.Millisecond)
		os.Stdout.Write(out)
	}
	return nil
}
