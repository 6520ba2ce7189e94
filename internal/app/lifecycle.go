package app

import (
	"context"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/web"
)

// Enter runs the page entry sequence: the session check, then the dashboard
// load when the session is valid.
func (a *Application) Enter(ctx context.Context) domain.Session {
	sess := a.Guard.CheckSession(ctx)
	if !sess.Authenticated {
		return sess
	}
	if err := a.Catalog.LoadDashboard(ctx); err != nil {
		logger.Debug("Dashboard load incomplete", zap.Error(err))
	}
	return a.Guard.Session()
}

// EnterForms runs the entry sequence of the create/clone view: the session
// check, then LoadAll so templates, clusters and networks are cached for the
// forms.
func (a *Application) EnterForms(ctx context.Context) domain.Session {
	sess := a.Guard.CheckSession(ctx)
	if !sess.Authenticated {
		return sess
	}
	if err := a.Catalog.LoadAll(ctx); err != nil {
		logger.Debug("Form data load incomplete", zap.Error(err))
	}
	return a.Guard.Session()
}

// WatchServer builds the live dashboard server on top of this session.
func (a *Application) WatchServer(cfg config.WatchConfig) *web.Server {
	return web.NewServer(cfg, a.Catalog, a.Notifications, a.Pools, a.Metrics.Handler())
}

// SaveSession writes the cookie jar to disk when it is file backed.
func (a *Application) SaveSession() error {
	if a.fileJar == nil {
		return nil
	}
	return a.fileJar.Save()
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	if err := a.SaveSession(); err != nil {
		logger.Warn("failed to save session cookies", zap.Error(err))
	}
	if a.Notifications != nil {
		a.Notifications.Close()
	}
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
}
