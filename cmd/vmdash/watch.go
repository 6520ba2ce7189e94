package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWatchCommand(c *cli) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Serve a live dashboard over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := c.enterForms(cmd.Context())
			if err != nil {
				return err
			}
			cfg := c.cfg.Watch
			if listen != "" {
				cfg.Listen = listen
			}
			fmt.Fprintf(c.io.err, "Live dashboard on http://%s (Ctrl+C to stop)\n", cfg.Listen)
			return application.WatchServer(cfg).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}
