// Package mockapi is an in-memory double of the VM management backend. It
// serves the same REST contract as the real backend, validates traffic
// against the embedded OpenAPI document and issues real session cookies, so
// the client can be exercised end to end.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/api/middleware"
	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
)

const (
	tokenIssuer     = "vmdash-mockapi"
	defaultTokenTTL = time.Hour
	shutdownTimeout = 10 * time.Second
)

// Server is the fake backend HTTP server.
type Server struct {
	cfg    config.MockConfig
	store  *Store
	jwtCfg middleware.JWTConfig
	engine *gin.Engine
	log    *zap.Logger
}

// NewServer builds the router around store.
func NewServer(cfg config.MockConfig, store *Store) (*Server, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, middleware.ErrJWTSigningKeyMissing
	}
	doc, err := LoadContract()
	if err != nil {
		return nil, err
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	validator, err := middleware.NewOpenAPIValidator(doc)
	if err != nil {
		return nil, fmt.Errorf("init openapi validator: %w", err)
	}

	s := &Server{
		cfg:   cfg,
		store: store,
		jwtCfg: middleware.JWTConfig{
			SigningKey: []byte(cfg.SigningKey),
			Issuer:     tokenIssuer,
			ExpiresIn:  ttl,
		},
		log: logger.Named("mockapi"),
	}
	s.engine = s.newRouter(validator)
	return s, nil
}

// NewFromConfig seeds a store from cfg and builds the server. Without any
// configured user an admin/admin account is created.
func NewFromConfig(cfg config.MockConfig) (*Server, error) {
	seed, err := LoadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	store := NewStore(WithPasswordCost(cfg.PasswordCost))
	store.Seed(seed)

	users := cfg.Users
	if len(users) == 0 {
		logger.Warn("no mock users configured, creating admin/admin")
		users = []config.MockUser{{Username: "admin", Password: "admin", FirstName: "Admin"}}
	}
	for _, u := range users {
		user := domain.User{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
		if err := store.AddUser(user, u.Password); err != nil {
			return nil, fmt.Errorf("add mock user %q: %w", u.Username, err)
		}
	}
	return NewServer(cfg, store)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// JWTConfig returns the token settings, for tests that mint their own tokens.
func (s *Server) JWTConfig() middleware.JWTConfig {
	return s.jwtCfg
}

func (s *Server) newRouter(validator gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	// The validator wraps the error handler so rendered errors are checked too.
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(s.log), validator, middleware.ErrorHandler())

	router.POST("/api/register", s.register)
	router.POST("/api/login", s.login)
	router.GET("/logout", s.logout)

	api := router.Group("/api", middleware.CookieAuth(s.jwtCfg))
	api.GET("/profile", s.profile)
	api.GET("/providers/status", s.providerStatus)
	api.GET("/providers", s.providers)
	api.GET("/templates", s.templates)
	api.GET("/clusters", s.clusters)
	api.GET("/networks", s.networks)

	api.GET("/vms", s.listVMs)
	api.POST("/vms", s.createVM)
	api.POST("/vms/clone", s.cloneVM)
	api.GET("/vms/:vm_name", s.getVM)
	api.DELETE("/vms/:vm_name", s.deleteVM)
	api.POST("/vms/:vm_name/start", s.power(domain.ActionStart))
	api.POST("/vms/:vm_name/stop", s.power(domain.ActionStop))
	api.POST("/vms/:vm_name/restart", s.power(domain.ActionRestart))
	api.POST("/vms/:vm_name/console", s.console)

	api.GET("/vms/:vm_name/snapshots", s.listSnapshots)
	api.POST("/vms/:vm_name/snapshots", s.createSnapshot)
	api.POST("/vms/:vm_name/snapshots/:snapshot_name/restore", s.restoreSnapshot)
	api.DELETE("/vms/:vm_name/snapshots/:snapshot_name", s.deleteSnapshot)

	api.GET("/config", s.getConfig)
	api.POST("/config/providers", s.updateProviderConfig)
	api.POST("/config/default-provider", s.setDefaultProvider)
	return router
}

func queryProvider(c *gin.Context) domain.ProviderID {
	return domain.ProviderID(c.Query("provider"))
}

// respond renders a mutation result: the message on success, the error
// envelope otherwise.
func respond(c *gin.Context, message string, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func (s *Server) providerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "providers": s.store.ProviderStatus()})
}

func (s *Server) providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "providers": s.store.Providers()})
}

func (s *Server) templates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "templates": s.store.Templates()})
}

func (s *Server) clusters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "clusters": s.store.Clusters()})
}

func (s *Server) networks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "networks": s.store.Networks()})
}

func (s *Server) listVMs(c *gin.Context) {
	vms, err := s.store.ListVMs(queryProvider(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vms": vms})
}

func (s *Server) getVM(c *gin.Context) {
	vm, err := s.store.GetVM(c.Param("vm_name"), queryProvider(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vm": vm})
}

func (s *Server) createVM(c *gin.Context) {
	var req domain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Invalid request body"))
		return
	}
	msg, err := s.store.CreateVM(req)
	respond(c, msg, err)
}

func (s *Server) cloneVM(c *gin.Context) {
	var req domain.CloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Invalid request body"))
		return
	}
	msg, err := s.store.CloneVM(req)
	respond(c, msg, err)
}

func (s *Server) power(action domain.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, err := s.store.Power(c.Param("vm_name"), action, queryProvider(c))
		respond(c, msg, err)
	}
}

func (s *Server) deleteVM(c *gin.Context) {
	msg, err := s.store.DeleteVM(c.Param("vm_name"), queryProvider(c))
	respond(c, msg, err)
}

func (s *Server) console(c *gin.Context) {
	res, err := s.store.Console(c.Param("vm_name"), queryProvider(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	body := gin.H{"success": true, "console_type": res.Type, "message": res.Message}
	if res.URL != "" {
		body["console_url"] = res.URL
	}
	if res.Instructions != "" {
		body["instructions"] = res.Instructions
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listSnapshots(c *gin.Context) {
	snaps, err := s.store.Snapshots(c.Param("vm_name"), queryProvider(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "snapshots": snaps})
}

func (s *Server) createSnapshot(c *gin.Context) {
	var req domain.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Invalid request body"))
		return
	}
	msg, err := s.store.CreateSnapshot(c.Param("vm_name"), req.Name, req.Provider)
	respond(c, msg, err)
}

func (s *Server) restoreSnapshot(c *gin.Context) {
	msg, err := s.store.RestoreSnapshot(c.Param("vm_name"), c.Param("snapshot_name"), queryProvider(c))
	respond(c, msg, err)
}

func (s *Server) deleteSnapshot(c *gin.Context) {
	msg, err := s.store.DeleteSnapshot(c.Param("vm_name"), c.Param("snapshot_name"), queryProvider(c))
	respond(c, msg, err)
}

func (s *Server) getConfig(c *gin.Context) {
	settings := s.store.Settings()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config": gin.H{
			"default_provider": settings.DefaultProvider,
			"providers": gin.H{
				"vmware":  settings.VMware,
				"nutanix": settings.Nutanix,
			},
		},
	})
}

func (s *Server) updateProviderConfig(c *gin.Context) {
	var req struct {
		Provider domain.ProviderID `json:"provider"`
		Config   json.RawMessage   `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Provider == "" || len(req.Config) == 0 || string(req.Config) == "null" {
		_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Provider and config are required"))
		return
	}

	switch req.Provider {
	case domain.ProviderVMware:
		var cfg domain.VMwareSettings
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Invalid configuration"))
			return
		}
		respond(c, s.store.UpdateVMware(cfg), nil)
	case domain.ProviderNutanix:
		var cfg domain.NutanixSettings
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Invalid configuration"))
			return
		}
		respond(c, s.store.UpdateNutanix(cfg), nil)
	default:
		_ = c.Error(apperrors.Structured(http.StatusInternalServerError, "Failed to update configuration"))
	}
}

func (s *Server) setDefaultProvider(c *gin.Context) {
	var req struct {
		Provider domain.ProviderID `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Structured(http.StatusBadRequest, "Provider is required"))
		return
	}
	msg, err := s.store.SetDefaultProvider(req.Provider)
	respond(c, msg, err)
}

// Run serves on cfg.Listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { //nolint:naked-goroutine // server goroutine
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("Fake backend started", zap.String("addr", s.cfg.Listen))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("Fake backend stopped")
	return nil
}
