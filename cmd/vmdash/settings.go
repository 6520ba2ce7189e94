package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/view"
)

func newSettingsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the provider configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			settings, err := application.Dispatcher.LoadSettings(cmd.Context())
			if err != nil {
				return reported(err)
			}
			if c.json() {
				return view.WriteJSON(c.io.out, settings)
			}
			fmt.Fprintf(c.io.out, "Default provider: %s\n", settings.DefaultProvider.DisplayName())
			fmt.Fprintf(c.io.out, "VMware:  enabled=%t vmrun=%s templates=%s\n",
				settings.VMware.Enabled, settings.VMware.VmrunPath, settings.VMware.TemplatesDirectory)
			fmt.Fprintf(c.io.out, "Nutanix: enabled=%t prism_central=%s prism_element=%s user=%s port=%d\n",
				settings.Nutanix.Enabled, settings.Nutanix.PrismCentralIP, settings.Nutanix.PrismElementIP,
				settings.Nutanix.Username, settings.Nutanix.Port)
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "default <provider>",
			Short: "Set the default provider",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				application, err := c.enter(cmd.Context())
				if err != nil {
					return err
				}
				return reported(application.Dispatcher.SetDefaultProvider(cmd.Context(), domain.ProviderID(args[0])))
			},
		},
		newVMwareSettingsCommand(c),
		newNutanixSettingsCommand(c),
	)
	return cmd
}

// loadSettings enters the session and reads the current configuration, so
// flags not given keep their stored value.
func loadSettings(c *cli, cmd *cobra.Command) (*domain.AppSettings, error) {
	application, err := c.enter(cmd.Context())
	if err != nil {
		return nil, err
	}
	settings, err := application.Dispatcher.LoadSettings(cmd.Context())
	if err != nil {
		return nil, reported(err)
	}
	return settings, nil
}

func newVMwareSettingsCommand(c *cli) *cobra.Command {
	var in domain.VMwareSettings

	cmd := &cobra.Command{
		Use:   "vmware",
		Short: "Update the VMware configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(c, cmd)
			if err != nil {
				return err
			}
			cfg := settings.VMware
			flags := cmd.Flags()
			if flags.Changed("enabled") {
				cfg.Enabled = in.Enabled
			}
			if flags.Changed("vmrun-path") {
				cfg.VmrunPath = in.VmrunPath
			}
			if flags.Changed("templates-dir") {
				cfg.TemplatesDirectory = in.TemplatesDirectory
			}
			return reported(c.app.Dispatcher.UpdateVMwareConfig(cmd.Context(), cfg))
		},
	}
	cmd.Flags().BoolVar(&in.Enabled, "enabled", false, "Enable the provider")
	cmd.Flags().StringVar(&in.VmrunPath, "vmrun-path", "", "Path to vmrun")
	cmd.Flags().StringVar(&in.TemplatesDirectory, "templates-dir", "", "Template directory")
	return cmd
}

func newNutanixSettingsCommand(c *cli) *cobra.Command {
	var in domain.NutanixSettings

	cmd := &cobra.Command{
		Use:   "nutanix",
		Short: "Update the Nutanix configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(c, cmd)
			if err != nil {
				return err
			}
			cfg := settings.Nutanix
			flags := cmd.Flags()
			if flags.Changed("enabled") {
				cfg.Enabled = in.Enabled
			}
			if flags.Changed("prism-central") {
				cfg.PrismCentralIP = in.PrismCentralIP
			}
			if flags.Changed("prism-element") {
				cfg.PrismElementIP = in.PrismElementIP
			}
			if flags.Changed("username") {
				cfg.Username = in.Username
			}
			if flags.Changed("password") {
				cfg.Password = in.Password
			}
			if flags.Changed("port") {
				cfg.Port = in.Port
			}
			return reported(c.app.Dispatcher.UpdateNutanixConfig(cmd.Context(), cfg))
		},
	}
	cmd.Flags().BoolVar(&in.Enabled, "enabled", false, "Enable the provider")
	cmd.Flags().StringVar(&in.PrismCentralIP, "prism-central", "", "Prism Central address")
	cmd.Flags().StringVar(&in.PrismElementIP, "prism-element", "", "Prism Element address")
	cmd.Flags().StringVar(&in.Username, "username", "", "Prism username")
	cmd.Flags().StringVar(&in.Password, "password", "", "Prism password (kept when empty)")
	cmd.Flags().IntVar(&in.Port, "port", 0, "Prism port")
	return cmd
}
