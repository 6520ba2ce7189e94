// Package app is the composition root. Bootstrap wires one client session:
// the backend client and its cookie jar, the session guard, the catalog,
// the forms, the dispatcher, notifications and metrics.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/apiclient"
	"vmdash.io/vmdash/internal/catalog"
	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/dispatch"
	"vmdash.io/vmdash/internal/form"
	"vmdash.io/vmdash/internal/metrics"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/pkg/worker"
	"vmdash.io/vmdash/internal/session"
	"vmdash.io/vmdash/internal/view"
)

// Options carries the presentation pieces the caller provides.
type Options struct {
	Loading   view.Loading
	Confirmer dispatch.Confirmer
	Browser   dispatch.Browser
	Navigator session.Navigator
	Sinks     []notification.Sink
	// Jar replaces the on-disk cookie jar.
	Jar http.CookieJar
}

// Application holds the composed dependencies.
type Application struct {
	Config        *config.Config
	Pools         *worker.Pools
	Notifications *notification.Center
	Jar           http.CookieJar
	Client        *apiclient.Client
	Guard         *session.Guard
	Catalog       *catalog.Catalog
	Dispatcher    *dispatch.Dispatcher
	Metrics       *metrics.Metrics
	CloneForm     *form.Form
	CreateForm    *form.Form

	fileJar *session.FileJar
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if opts.Loading == nil {
		opts.Loading = view.NopLoading{}
	}
	if opts.Navigator == nil {
		opts.Navigator = logNavigator()
	}

	app := &Application{Config: cfg, Jar: opts.Jar}
	if app.Jar == nil {
		fileJar, err := session.NewFileJar(cfg.Session.CookieFile)
		if err != nil {
			return nil, fmt.Errorf("open cookie jar: %w", err)
		}
		app.fileJar = fileJar
		app.Jar = fileJar
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		ReloadPoolSize:     cfg.Worker.ReloadPoolSize,
		BackgroundPoolSize: cfg.Worker.BackgroundPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	app.Pools = pools

	app.Metrics = metrics.New()
	sinks := append([]notification.Sink{notification.NewLogSink(), app.Metrics}, opts.Sinks...)
	app.Notifications = notification.NewCenter(cfg.Notification.TTL, sinks...)

	client, err := apiclient.New(cfg.Backend.BaseURL, app.Jar,
		apiclient.WithTimeout(cfg.Backend.Timeout),
		apiclient.WithInsecureSkipVerify(cfg.Backend.InsecureSkipVerify),
		apiclient.WithRoundTripper(app.Metrics.InstrumentTransport),
	)
	if err != nil {
		app.Shutdown()
		return nil, fmt.Errorf("init backend client: %w", err)
	}
	app.Client = client

	app.Guard = session.NewGuard(client, app.Jar, client.BaseURL(), opts.Navigator, app.Notifications, session.Options{
		LoginPath:    cfg.Session.LoginPath,
		RegisterPath: cfg.Session.RegisterPath,
		PagePath:     cfg.Session.PagePath,
	})

	app.Catalog = catalog.New(client, app.Notifications, app.Guard, pools.Reload,
		catalog.WithLoading(opts.Loading),
		catalog.WithObserver(app.Metrics),
	)
	app.Metrics.WatchVMs(app.Catalog)

	app.CloneForm = form.NewClone(app.Catalog)
	app.CreateForm = form.NewCreate(app.Catalog)
	app.Catalog.Subscribe(app.CloneForm.Handle)
	app.Catalog.Subscribe(app.CreateForm.Handle)

	dispatchOpts := []dispatch.Option{
		dispatch.WithLoading(opts.Loading),
		dispatch.WithObserver(app.Metrics),
	}
	if opts.Confirmer != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithConfirmer(opts.Confirmer))
	}
	if opts.Browser != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithBrowser(opts.Browser))
	}
	app.Dispatcher = dispatch.New(client, app.Catalog, app.Notifications, app.Guard, dispatchOpts...)

	// The forms follow through EventSessionEnded.
	app.Guard.OnSessionEnd(app.Catalog.Reset)

	logger.Info("Application bootstrapped",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("persistent_jar", app.fileJar != nil),
	)
	return app, nil
}

// logNavigator records navigations in the log when no UI is attached.
func logNavigator() session.Navigator {
	log := logger.Named("navigate")
	return session.NavigatorFunc(func(path string) {
		log.Info("Navigation requested", zap.String("path", path))
	})
}
