package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapehouse/controltape/internal/observer"
	"github.com/tapehouse/controltape/internal/registry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the observer HTTP+WS server fronting a session registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reg := registry.New(cfg.Session.MaxSessions)
			srv, err := observer.New(reg, cfg.Nats.URL, cfg.DB.URL)
			if err != nil {
				return err
			}
			defer srv.Close()

			fmt.Printf("observer listening on %s\n", addr)
			return srv.ListenAndServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8420", "address to listen on")
	return cmd
}
