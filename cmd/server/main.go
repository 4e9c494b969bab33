package main

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/config"
	"kite_dashboard/internal/handlers"
	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/logger"
	"kite_dashboard/internal/middleware"
	"kite_dashboard/internal/session"
)

// App holds the application dependencies.
type App struct {
	config          *config.Config
	router          *chi.Mux
	sessions        session.Store
	cache           cache.Store
	sessionMW       *middleware.SessionMiddleware
	authHandler     *handlers.AuthHandler
	resourceHandler *handlers.ResourceHandler
	pageHandler     *handlers.PageHandler
}

func main() {
	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine; real deployments set the environment directly
		logger.Log.WithError(err).Debug("No .env file loaded")
	}

	cfg := config.New()
	logger.Init(cfg.IsDevelopment)

	// Missing broker credentials are unrecoverable; fail at startup, not per request
	if err := cfg.Validate(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}

	// Persistence cache: best-effort mirror, Noop when unconfigured
	var cacheStore cache.Store = cache.NewNoopStore()
	if cfg.CacheDBPath != "" {
		sqliteStore, err := cache.NewSQLiteStore(cfg.CacheDBPath)
		if err != nil {
			logger.Log.WithError(err).Warn("Cache unavailable, continuing without persistence")
		} else {
			cacheStore = sqliteStore
			logger.Log.WithField("path", cfg.CacheDBPath).Info("Persistence cache enabled")
		}
	}
	defer cacheStore.Close()

	// Session store: Redis when configured, in-memory otherwise
	var sessions session.Store = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore, err := session.NewRedisStore(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to Redis session store")
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Log.WithField("addr", cfg.RedisAddr).Info("Redis session store enabled")
	}

	client := kite.NewClient(cfg.APIKey, cfg.APISecret)

	sessionMW := middleware.NewSessionMiddleware(
		sessions, cacheStore, cfg.SessionSecret, cfg.SessionMaxAge, !cfg.IsDevelopment)

	templates, err := parseTemplates()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to parse templates")
	}

	app := &App{
		config:          cfg,
		sessions:        sessions,
		cache:           cacheStore,
		sessionMW:       sessionMW,
		authHandler:     handlers.NewAuthHandler(client, sessions, cacheStore, sessionMW, cfg.IsDevelopment),
		resourceHandler: handlers.NewResourceHandler(client, sessions, cacheStore, sessionMW),
		pageHandler:     handlers.NewPageHandler(templates),
	}
	app.setupRouter()

	// Hourly sweep of expired sessions in the store and the cache mirror
	sweeper := cron.New()
	sweeper.AddFunc("@hourly", app.sweepExpiredSessions)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.WithField("addr", cfg.Address()).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Log.Info("Server stopped")
}

func (app *App) setupRouter() {
	r := chi.NewRouter()

	// Chi middleware (aliased as chimw to avoid conflict with our middleware package)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Compress(5))

	// Security headers for all responses
	r.Use(middleware.SecurityHeaders)

	// Load the session from the cookie for all routes
	r.Use(app.sessionMW.LoadSession)

	// Static files
	workDir, _ := os.Getwd()
	staticPath := filepath.Join(workDir, "web", "static")
	fileServer := http.FileServer(http.Dir(staticPath))
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	// Health check
	r.Get("/health", app.handleHealth)

	// Auth flow
	r.Get("/login", app.authHandler.Login)
	r.Get("/login/qr", app.authHandler.LoginQR)
	r.Get("/kite-redirect", app.authHandler.Callback)

	// Logout works with or without a live session
	r.Post("/logout", app.authHandler.Logout)

	// Authenticated broker passthrough
	r.Group(func(r chi.Router) {
		r.Use(app.sessionMW.RequireSession)
		r.Get("/profile", app.resourceHandler.Profile)
		r.Get("/holdings", app.resourceHandler.Holdings)
		r.Get("/margins", app.resourceHandler.Margins)
		r.Get("/margins/{segment}", app.resourceHandler.Margins)
		r.Get("/portfolio/summary", app.resourceHandler.PortfolioSummary)
	})

	// Index renders dashboard or login based on session state
	r.Get("/", app.pageHandler.Index)

	app.router = r
}

// handleHealth returns the server health status.
func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// sweepExpiredSessions drops expired sessions from the primary store and
// the cache mirror.
func (app *App) sweepExpiredSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := app.sessions.PurgeExpired(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("Purging expired sessions failed")
	}

	mirrored, err := app.cache.DeleteExpiredSessions(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("Purging cached sessions failed")
	}

	if purged > 0 || mirrored > 0 {
		logger.Log.WithField("store", purged).WithField("cache", mirrored).Info("Expired sessions swept")
	}
}

// parseTemplates loads and parses all page templates against the base layout.
func parseTemplates() (map[string]*template.Template, error) {
	cache := make(map[string]*template.Template)

	layoutPath := filepath.Join("web", "templates", "layouts", "base.html")

	pagesGlob := filepath.Join("web", "templates", "pages", "*.html")
	pages, err := filepath.Glob(pagesGlob)
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		name := filepath.Base(page)

		tmpl, err := template.ParseFiles(layoutPath, page)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}

		cache[name] = tmpl
	}

	return cache, nil
}
