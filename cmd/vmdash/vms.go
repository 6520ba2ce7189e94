package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vmdash.io/vmdash/internal/app"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/form"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/view"
)

// parseProvider accepts an empty value as "any provider".
func parseProvider(s string) (domain.ProviderID, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	id, ok := domain.ParseProviderID(s)
	if !ok {
		return "", apperrors.ErrInvalidProviderf(s)
	}
	return id, nil
}

type dashboard struct {
	Stats     domain.VMStats    `json:"stats"`
	Providers []domain.Provider `json:"providers"`
	VMs       []view.VMRow      `json:"vms"`
}

func newDashboardCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show VM counts, provider status and the VM table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			cat := application.Catalog
			d := dashboard{Stats: cat.Stats(), Providers: cat.Providers(), VMs: view.Rows(cat.VMs())}
			if c.json() {
				return view.WriteJSON(c.io.out, d)
			}
			if err := view.WriteStats(c.io.out, d.Stats); err != nil {
				return err
			}
			fmt.Fprintln(c.io.out)
			if err := view.WriteProviderStatus(c.io.out, d.Providers); err != nil {
				return err
			}
			fmt.Fprintln(c.io.out)
			return view.WriteVMTable(c.io.out, d.VMs)
		},
	}
}

func newVMsCommand(c *cli) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:     "vms",
		Aliases: []string{"vm"},
		Short:   "List virtual machines, or run an action on one",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			rows := view.Rows(application.Catalog.FilterVMs(p))
			if c.json() {
				return view.WriteJSON(c.io.out, rows)
			}
			return view.WriteVMTable(c.io.out, rows)
		},
	}
	cmd.PersistentFlags().StringVar(&provider, "provider", "", "Provider (vmware, nutanix)")

	for _, action := range []domain.Action{domain.ActionStart, domain.ActionStop, domain.ActionRestart, domain.ActionConsole} {
		cmd.AddCommand(newVMActionCommand(c, action, &provider))
	}
	cmd.AddCommand(newVMShowCommand(c, &provider))
	del := newVMActionCommand(c, domain.ActionDelete, &provider)
	del.Flags().BoolVarP(&c.assumeYes, "yes", "y", false, "Do not ask for confirmation")
	cmd.AddCommand(del)
	return cmd
}

func newVMActionCommand(c *cli, action domain.Action, provider *string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <vm-name>",
		Short: actionHelp(action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(*provider)
			if err != nil {
				return err
			}
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			name := args[0]
			return reported(application.Dispatcher.Dispatch(cmd.Context(), name, action, resolveProvider(application, name, p)))
		},
	}
}

func newVMShowCommand(c *cli, provider *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <vm-name>",
		Short: "Show one VM as the backend reports it now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(*provider)
			if err != nil {
				return err
			}
			application, err := c.enter(cmd.Context())
			if err != nil {
				return err
			}
			name := args[0]
			vm, err := application.Client.VM(cmd.Context(), name, resolveProvider(application, name, p))
			if err != nil {
				if !application.Guard.HandleAuthExpired(cmd.Context(), err) {
					application.Notifications.Error("Error loading VM details: " + apperrors.Message(err))
				}
				return reported(err)
			}
			if c.json() {
				return view.WriteJSON(c.io.out, vm)
			}
			return view.WriteVMDetails(c.io.out, *vm)
		},
	}
}

func actionHelp(action domain.Action) string {
	switch action {
	case domain.ActionDelete:
		return "Delete a VM after confirmation"
	case domain.ActionConsole:
		return "Open the VM console"
	default:
		return fmt.Sprintf("%s a VM", strings.ToUpper(string(action[:1]))+string(action[1:]))
	}
}

// resolveProvider fills in the VM's provider from the catalog when the user
// did not name one.
func resolveProvider(application *app.Application, name string, p domain.ProviderID) domain.ProviderID {
	if p != "" {
		return p
	}
	if vm, ok := application.Catalog.FindVM(name, ""); ok {
		return vm.Hypervisor
	}
	return ""
}

// placementFlags are the inputs shared by clone and create.
type placementFlags struct {
	provider string
	source   string
	cluster  string
	network  string
	cpu      int
	ram      int
	disk     int
}

func (pf *placementFlags) register(cmd *cobra.Command, sourceFlag, sourceHelp string) {
	cmd.Flags().StringVar(&pf.provider, "provider", "", "Provider (vmware, nutanix)")
	cmd.Flags().StringVar(&pf.source, sourceFlag, "", sourceHelp)
	cmd.Flags().StringVar(&pf.cluster, "cluster", "", "Nutanix cluster")
	cmd.Flags().StringVar(&pf.network, "network", "", "Nutanix network")
	cmd.Flags().IntVar(&pf.cpu, "cpu", 0, "CPU count")
	cmd.Flags().IntVar(&pf.ram, "ram", 0, "Memory in MB")
	cmd.Flags().IntVar(&pf.disk, "disk", 0, "Disk size in GB")
}

// fill drives the form the way a user filling the page would: provider
// first, then source, then placement and sizing.
func (pf *placementFlags) fill(f *form.Form, name string) error {
	p, err := parseProvider(pf.provider)
	if err != nil {
		return err
	}
	if p != "" {
		if err := f.SelectProvider(form.ProviderChange{Provider: p}); err != nil {
			return err
		}
	}
	if pf.source != "" {
		if err := selectSource(f, pf.source, p); err != nil {
			return err
		}
	}
	if err := f.SelectCluster(pf.cluster); err != nil {
		return err
	}
	if err := f.SelectNetwork(pf.network); err != nil {
		return err
	}
	f.SetName(name)
	f.SetSizing(pf.cpu, pf.ram, pf.disk)
	return nil
}

// selectSource accepts either a full label, "name (provider)", or a bare
// name that is unambiguous among the visible sources.
func selectSource(f *form.Form, source string, p domain.ProviderID) error {
	if strings.Contains(source, "(") {
		return f.SelectSourceLabel(source)
	}
	if p != "" {
		return f.SelectSourceLabel(domain.Template{Name: source, Provider: p}.Label())
	}
	var matches []form.Option
	for _, o := range f.View().VisibleSources() {
		if o.Value == source {
			matches = append(matches, o)
		}
	}
	switch len(matches) {
	case 1:
		return f.SelectSource(form.SourceChange{Option: matches[0]})
	case 0:
		return apperrors.Validation(apperrors.CodeValidationFailed, "unknown source: "+source)
	default:
		return apperrors.Validation(apperrors.CodeValidationFailed,
			fmt.Sprintf("source %q exists on several providers, use --provider", source))
	}
}

func submitForm(ctx context.Context, c *cli, pf *placementFlags, name string, pick func(*app.Application) *form.Form, submit func(context.Context, *app.Application, *form.Form) error) error {
	application, err := c.enterForms(ctx)
	if err != nil {
		return err
	}
	f := pick(application)
	if err := pf.fill(f, name); err != nil {
		application.Notifications.Error(apperrors.Message(err))
		return reported(err)
	}
	return reported(submit(ctx, application, f))
}

func newCloneCommand(c *cli) *cobra.Command {
	var pf placementFlags

	cmd := &cobra.Command{
		Use:   "clone <new-vm-name>",
		Short: "Clone a VM from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitForm(cmd.Context(), c, &pf, args[0],
				func(a *app.Application) *form.Form { return a.CloneForm },
				func(ctx context.Context, a *app.Application, f *form.Form) error { return a.Dispatcher.Clone(ctx, f) },
			)
		},
	}
	pf.register(cmd, "source", `Source, "name (provider)" or a bare name`)
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newCreateCommand(c *cli) *cobra.Command {
	var (
		pf     placementFlags
		osType string
	)

	cmd := &cobra.Command{
		Use:   "create <vm-name>",
		Short: "Create a VM from scratch or from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitForm(cmd.Context(), c, &pf, args[0],
				func(a *app.Application) *form.Form {
					a.CreateForm.SetOSType(osType)
					return a.CreateForm
				},
				func(ctx context.Context, a *app.Application, f *form.Form) error { return a.Dispatcher.Create(ctx, f) },
			)
		},
	}
	pf.register(cmd, "template", `Template, "name (provider)" or a bare name`)
	cmd.Flags().StringVar(&osType, "os-type", "", "Guest OS type")
	return cmd
}
