package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/form"
	"vmdash.io/vmdash/internal/view"
)

func newResourcesCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Show providers, templates, clusters and networks",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "providers",
			Short: "Show provider status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				application, err := c.enter(cmd.Context())
				if err != nil {
					return err
				}
				providers := application.Catalog.Providers()
				if c.json() {
					return view.WriteJSON(c.io.out, providers)
				}
				for _, p := range providers {
					fmt.Fprintln(c.io.out, form.ProviderLabel(p))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "templates",
			Short: "List templates of every provider",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				application, err := c.enterForms(cmd.Context())
				if err != nil {
					return err
				}
				templates := application.Catalog.CombinedTemplates()
				if c.json() {
					return view.WriteJSON(c.io.out, templates)
				}
				for _, t := range templates {
					fmt.Fprintln(c.io.out, t.Label())
				}
				return nil
			},
		},
		newResourceSetCommand(c, "clusters", func(a resourceSource, p domain.ProviderID) []string { return a.Clusters(p) }),
		newResourceSetCommand(c, "networks", func(a resourceSource, p domain.ProviderID) []string { return a.Networks(p) }),
	)
	return cmd
}

type resourceSource interface {
	Clusters(provider domain.ProviderID) []string
	Networks(provider domain.ProviderID) []string
}

func newResourceSetCommand(c *cli, name string, list func(resourceSource, domain.ProviderID) []string) *cobra.Command {
	provider := string(domain.ProviderNutanix)

	cmd := &cobra.Command{
		Use:   name,
		Short: "List " + name + " of a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			application, err := c.enterForms(cmd.Context())
			if err != nil {
				return err
			}
			names := list(application.Catalog, p)
			if c.json() {
				return view.WriteJSON(c.io.out, names)
			}
			for _, n := range names {
				fmt.Fprintln(c.io.out, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", provider, "Provider (vmware, nutanix)")
	return cmd
}
