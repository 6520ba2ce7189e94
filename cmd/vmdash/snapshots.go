package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/view"
)

func newSnapshotCommand(c *cli) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:     "snapshots <vm-name>",
		Aliases: []string{"snapshot"},
		Short:   "List a VM's snapshots, or create, restore and delete them",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			name := args[0]
			snaps, err := application.Client.Snapshots(cmd.Context(), name, resolveProvider(application, name, p))
			if err != nil {
				if !application.Guard.HandleAuthExpired(cmd.Context(), err) {
					application.Notifications.Error("Error loading snapshots: " + apperrors.Message(err))
				}
				return reported(err)
			}
			if c.json() {
				return view.WriteJSON(c.io.out, snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintf(c.io.out, "No snapshots for VM '%s'\n", name)
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintln(c.io.out, s)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&provider, "provider", "", "Provider (vmware, nutanix)")

	snapshotAction := func(use, short string, run func(c *cli, cmd *cobra.Command, vm, snapshot string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <vm-name> <snapshot-name>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(c, cmd, args[0], args[1])
			},
		}
	}

	del := snapshotAction("delete", "Delete a snapshot after confirmation", func(c *cli, cmd *cobra.Command, vm, snapshot string) error {
		p, err := parseProvider(provider)
		if err != nil {
			return err
		}
		application, err := c.enter(cmd.Context())
		if err != nil {
			return err
		}
		return reported(application.Dispatcher.DeleteSnapshot(cmd.Context(), vm, snapshot, resolveProvider(application, vm, p)))
	})
	del.Flags().BoolVarP(&c.assumeYes, "yes", "y", false, "Do not ask for confirmation")

	cmd.AddCommand(
		snapshotAction("create", "Create a snapshot", func(c *cli, cmd *cobra.Command, vm, snapshot string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			return reported(application.Dispatcher.CreateSnapshot(cmd.Context(), vm, snapshot, resolveProvider(application, vm, p)))
		}),
		snapshotAction("restore", "Restore a VM to a snapshot", func(c *cli, cmd *cobra.Command, vm, snapshot string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			return reported(application.Dispatcher.RestoreSnapshot(cmd.Context(), vm, snapshot, resolveProvider(application, vm, p)))
		}),
		del,
	)
	return cmd
}
