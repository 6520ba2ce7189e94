// Package dispatch issues VM lifecycle commands and reconciles the catalog.
//
// Every entry point handles its own failures: AuthExpired goes to the
// session guard, backend-reported failures are surfaced with the backend's
// text and transport failures with a generic action-specific message. The
// returned error is informational; it has already been reported.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/form"
	"vmdash.io/vmdash/internal/notification"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/view"
)

// Backend is the subset of the REST client the dispatcher calls.
// *apiclient.Client satisfies it.
type Backend interface {
	Power(ctx context.Context, name string, action domain.Action, provider domain.ProviderID) (string, error)
	Delete(ctx context.Context, name string, provider domain.ProviderID) (string, error)
	Console(ctx context.Context, name string, provider domain.ProviderID) (*domain.ConsoleResult, error)
	Clone(ctx context.Context, req domain.CloneRequest) (string, error)
	Create(ctx context.Context, req domain.CreateRequest) (string, error)
	Settings(ctx context.Context) (*domain.AppSettings, error)
	ProviderStatus(ctx context.Context) ([]domain.Provider, error)
	UpdateProviderConfig(ctx context.Context, provider domain.ProviderID, cfg any) (string, error)
	SetDefaultProvider(ctx context.Context, provider domain.ProviderID) (string, error)
	CreateSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) (string, error)
	RestoreSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) (string, error)
	DeleteSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) (string, error)
}

// Reloader refreshes the VM cache after a mutation. *catalog.Catalog
// satisfies it.
type Reloader interface {
	ReloadVMs(ctx context.Context) error
}

// AuthHandler receives AuthExpired failures. *session.Guard satisfies it.
type AuthHandler interface {
	HandleAuthExpired(ctx context.Context, err error) bool
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Outcome labels a finished action for observers.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeDeclined  Outcome = "declined"
)

// Observer is told how each action ended.
type Observer interface {
	ActionFinished(action string, outcome Outcome)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLoading sets the busy indicator.
func WithLoading(l view.Loading) Option {
	return func(d *Dispatcher) { d.loading = l }
}

// WithConfirmer sets the confirmation prompt. Without one, every
// confirmation is declined.
func WithConfirmer(c Confirmer) Option {
	return func(d *Dispatcher) { d.confirm = c }
}

// WithBrowser sets how web console URLs are opened.
func WithBrowser(b Browser) Option {
	return func(d *Dispatcher) { d.browser = b }
}

// WithObserver sets the action observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher runs user actions against the backend.
type Dispatcher struct {
	backend  Backend
	vms      Reloader
	notifier notification.Notifier
	auth     AuthHandler
	loading  view.Loading
	confirm  Confirmer
	browser  Browser
	observer Observer
	log      *zap.Logger
}

// New creates a Dispatcher.
func New(backend Backend, vms Reloader, notifier notification.Notifier, auth AuthHandler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:  backend,
		vms:      vms,
		notifier: notifier,
		auth:     auth,
		loading:  view.NopLoading{},
		confirm:  ConfirmFunc(func(context.Context, string) bool { return false }),
		log:      logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// failure describes how to report a failed action.
type failure struct {
	action string
	// prefix precedes the backend text of a structured failure.
	prefix string
	// generic is shown for transport failures.
	generic string
}

// fail reports err at the dispatcher boundary and returns it.
func (d *Dispatcher) fail(ctx context.Context, f failure, err error) error {
	d.observe(f.action, OutcomeFailed)
	if d.auth != nil && d.auth.HandleAuthExpired(ctx, err) {
		return err
	}
	if apperrors.IsTransport(err) {
		d.log.Warn("Action failed", zap.String("action", f.action), zap.Error(err))
		d.notifier.Notify(f.generic, notification.SeverityError)
		return err
	}
	d.log.Info("Action rejected", zap.String("action", f.action), zap.Error(err))
	d.notifier.Notify(f.prefix+apperrors.Message(err), notification.SeverityError)
	return err
}

func (d *Dispatcher) succeed(action, message string) {
	d.observe(action, OutcomeSucceeded)
	d.notifier.Notify(message, notification.SeveritySuccess)
}

func (d *Dispatcher) observe(action string, outcome Outcome) {
	if d.observer != nil {
		d.observer.ActionFinished(action, outcome)
	}
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// Dispatch runs a lifecycle action on one VM. Delete asks for confirmation
// first; a declined confirmation sends nothing and returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, vmName string, action domain.Action, provider domain.ProviderID) error {
	switch {
	case action.IsPower():
		return d.power(ctx, vmName, action, provider)
	case action == domain.ActionDelete:
		return d.delete(ctx, vmName, provider)
	case action == domain.ActionConsole:
		return d.OpenConsole(ctx, vmName, provider)
	default:
		return d.fail(ctx, failure{action: string(action), prefix: "Error: "}, apperrors.ErrInvalidActionf(string(action)))
	}
}

func (d *Dispatcher) power(ctx context.Context, vmName string, action domain.Action, provider domain.ProviderID) error {
	done := view.Begin(d.loading)
	defer done()

	msg, err := d.backend.Power(ctx, vmName, action, provider)
	if err != nil {
		return d.fail(ctx, failure{
			action:  string(action),
			prefix:  "Error: ",
			generic: fmt.Sprintf("Error %s VM", action),
		}, err)
	}
	d.succeed(string(action), orDefault(msg, fmt.Sprintf("VM '%s' %s requested", vmName, action)))
	_ = d.vms.ReloadVMs(ctx)
	return nil
}

// DeletePrompt is the confirmation text for deleting vmName.
func DeletePrompt(vmName string) string {
	return fmt.Sprintf("Are you sure you want to delete VM '%s'? This action cannot be undone.", vmName)
}

func (d *Dispatcher) delete(ctx context.Context, vmName string, provider domain.ProviderID) error {
	if !d.confirm.Confirm(ctx, DeletePrompt(vmName)) {
		d.log.Debug("Delete declined", zap.String("vm", vmName))
		d.observe(string(domain.ActionDelete), OutcomeDeclined)
		return nil
	}

	done := view.Begin(d.loading)
	defer done()

	msg, err := d.backend.Delete(ctx, vmName, provider)
	if err != nil {
		return d.fail(ctx, failure{action: string(domain.ActionDelete), prefix: "Error: ", generic: "Error deleting VM"}, err)
	}
	d.succeed(string(domain.ActionDelete), orDefault(msg, fmt.Sprintf("VM '%s' deleted", vmName)))
	_ = d.vms.ReloadVMs(ctx)
	return nil
}

// Clone submits the clone form. On success the form is reset; on failure it
// keeps its values for correction.
func (d *Dispatcher) Clone(ctx context.Context, f *form.Form) error {
	fl := failure{action: "clone", prefix: "Error cloning VM: ", generic: "Error cloning VM"}
	req, err := f.CloneRequest()
	if err != nil {
		return d.fail(ctx, fl, err)
	}

	done := view.Begin(d.loading)
	defer done()

	if _, err := d.backend.Clone(ctx, req); err != nil {
		return d.fail(ctx, fl, err)
	}
	d.succeed("clone", fmt.Sprintf("VM '%s' cloned successfully!", req.Name))
	f.Reset()
	_ = d.vms.ReloadVMs(ctx)
	return nil
}

// Create submits the create form, resetting it on success.
func (d *Dispatcher) Create(ctx context.Context, f *form.Form) error {
	fl := failure{action: "create", prefix: "Error creating VM: ", generic: "Error creating VM"}
	req, err := f.CreateRequest()
	if err != nil {
		return d.fail(ctx, fl, err)
	}

	done := view.Begin(d.loading)
	defer done()

	if _, err := d.backend.Create(ctx, req); err != nil {
		return d.fail(ctx, fl, err)
	}
	d.succeed("create", fmt.Sprintf("VM '%s' created successfully!", req.Name))
	f.Reset()
	_ = d.vms.ReloadVMs(ctx)
	return nil
}
