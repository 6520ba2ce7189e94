package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/api/middleware"
	"vmdash.io/vmdash/internal/catalog"
	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

// defaultAllowedOrigins is used when the configuration lists none.
var defaultAllowedOrigins = []string{"http://localhost:8090", "http://127.0.0.1:8090"}

// Catalog is what the server reads and refreshes.
type Catalog interface {
	Snapshot() catalog.Snapshot
	LoadAll(ctx context.Context) error
	Subscribe(handler domain.EventHandler)
}

// Notifications is the notification center as seen by the server.
type Notifications interface {
	Active() []notification.Notification
	Dismiss(id string) bool
	AddSink(s notification.Sink)
}

// Server is the live dashboard HTTP server.
type Server struct {
	cfg     config.WatchConfig
	catalog Catalog
	notes   Notifications
	pools   *worker.Pools
	hub     *Hub
	engine  *gin.Engine
	trigger chan struct{}
	log     *zap.Logger
}

// NewServer wires the hub into the catalog and the notification center and
// builds the router. metrics may be nil.
func NewServer(cfg config.WatchConfig, cat Catalog, notes Notifications, pools *worker.Pools, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: cat,
		notes:   notes,
		pools:   pools,
		trigger: make(chan struct{}, 1),
		log:     logger.Named("web"),
	}
	corsCfg := buildCORSConfig(cfg)
	s.hub = NewHub(originChecker(corsCfg), s.greeting)

	cat.Subscribe(func(_ context.Context, _ *domain.ChangeEvent) error {
		s.hub.Publish(MessageSnapshot, s.catalog.Snapshot())
		return nil
	})
	notes.AddSink(s.hub)

	s.engine = s.newRouter(corsCfg, metrics)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) greeting() []Message {
	msgs := []Message{{Type: MessageSnapshot, Data: s.catalog.Snapshot()}}
	for _, n := range s.notes.Active() {
		msgs = append(msgs, Message{Type: MessageNotification, Data: n})
	}
	return msgs
}

func (s *Server) newRouter(corsCfg cors.Config, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(s.log), middleware.ErrorHandler())
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.hub.Clients(), "pools": s.pools.Metrics()})
	})
	router.GET("/ws", gin.WrapF(s.hub.ServeWS))

	api := router.Group("/api")
	api.GET("/snapshot", s.getSnapshot)
	api.GET("/notifications", s.listNotifications)
	api.DELETE("/notifications/:id", s.dismissNotification)
	api.POST("/refresh", s.refresh)

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	level := gin.WrapH(logger.LevelHandler())
	router.GET("/log/level", level)
	router.PUT("/log/level", level)
	return router
}

func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Snapshot())
}

func (s *Server) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": s.notes.Active()})
}

func (s *Server) dismissNotification(c *gin.Context) {
	if !s.notes.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// refresh schedules a dashboard load. Requests made while one is pending
// coalesce into it.
func (s *Server) refresh(c *gin.Context) {
	select {
	case s.trigger <- struct{}{}:
		c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Refresh scheduled"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Refresh already pending"})
	}
}

// refreshLoop reloads the whole catalog on every tick and on demand.
func (s *Server) refreshLoop(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
		if err := s.catalog.LoadAll(ctx); err != nil {
			s.log.Debug("Catalog refresh failed", zap.Error(err))
		}
	}
}

// Run starts the hub and the refresh loop on the background pool, serves
// HTTP and shuts everything down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if free := s.pools.Background.Free(); free < worker.MinBackgroundPoolSize {
		return fmt.Errorf("background pool has %d idle workers, the live dashboard needs %d", free, worker.MinBackgroundPoolSize)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.pools.Background.Submit(runCtx, s.hub.Run); err != nil {
		return fmt.Errorf("start websocket hub: %w", err)
	}
	if err := s.pools.Background.Submit(runCtx, s.refreshLoop); err != nil {
		return fmt.Errorf("start refresh loop: %w", err)
	}

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
	s.log.Info("Live dashboard started", zap.String("addr", s.cfg.Listen))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("Live dashboard stopped")
	return nil
}

// buildCORSConfig restricts cross-origin access to the configured origins.
// A wildcard entry is dropped: the dashboard never allows every origin.
func buildCORSConfig(cfg config.WatchConfig) cors.Config {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins = append(origins, strings.TrimRight(o, "/"))
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// originChecker accepts websocket upgrades without an Origin header, from
// the server's own host, or from an allowed origin.
func originChecker(cfg cors.Config) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
