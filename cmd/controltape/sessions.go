package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage sessions on a running controltape observer server",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8420", "address of a running `controltape serve` instance")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions registered on the observer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(addr + "/sessions")
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", addr, err)
			}
			defer resp.Body.Close()

			var descs []map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&descs); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			for _, d := range descs {
				fmt.Printf("%v\t%v\talive=%v\n", d["ID"], d["Command"], d["Alive"])
			}
			return nil
		},
	})

	var force bool
	var maxAgeSeconds int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Close idle or dead sessions on the observer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if force {
				q.Set("force", "1")
			}
			q.Set("max_age", fmt.Sprintf("%d", maxAgeSeconds))

			resp, err := http.Post(addr+"/sessions/cleanup?"+q.Encode(), "application/json", nil)
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", addr, err)
			}
			defer resp.Body.Close()

			var result map[string]int
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Printf("closed %d session(s), reaped %d zombie process(es)\n", result["closed"], result["zombies_reaped"])
			return nil
		},
	}
	cleanupCmd.Flags().BoolVar(&force, "force", false, "close every session regardless of state")
	cleanupCmd.Flags().IntVar(&maxAgeSeconds, "max-age", 600, "close sessions idle longer than this many seconds")
	cmd.AddCommand(cleanupCmd)

	return cmd
}
