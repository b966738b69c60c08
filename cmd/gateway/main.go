// Шлюз: раздаёт события каналов по websocket, принимает и отдаёт файлы вложений.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collab/internal/blob"
	"github.com/collab/internal/config"
	"github.com/collab/internal/gateway"
	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
	"github.com/collab/internal/middleware"
	"github.com/collab/internal/realtime"
	"github.com/collab/internal/repository"
	"github.com/collab/internal/startup"
	"github.com/collab/migrations"
)

func main() {
	logger.SetPrefix("gateway")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting gateway")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startup.StartEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())

	sigCtx, sigStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	pool, err := startup.ConnectDBWithRetry(sigCtx, poolCfg, startup.Retry{MaxWait: 60 * time.Second})
	sigStop()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrations.Apply(migrateCtx, pool); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	migrateCancel()
	logger.Info("database connected, migrations applied")

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := gateway.NewHub(cfg.MaxWSConnections)
	relay := gateway.NewRelay(realtime.NewPGStream(pool, repository.NewMessageRepository(pool)), hub)

	var hubWg sync.WaitGroup
	hubWg.Add(2)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()
	go func() {
		defer hubWg.Done()
		if err := relay.Run(hubCtx); err != nil {
			logger.Errorf("relay: %v", err)
		}
	}()

	files := blob.NewLocal(cfg.UploadDir, cfg.MaxUploadSize, "")
	wsH := gateway.NewHandler(hub, cfg.CORSAllowedOrigins, cfg.WSSendBufferSize)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.Identity)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimit())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", wsH.ServeWS)
	r.Post("/api/files", files.HandleUpload)
	r.Get(blob.FilesPrefix+"*", func(w http.ResponseWriter, r *http.Request) {
		files.Serve(w, r, chi.URLParam(r, "*"))
	})

	srv := &http.Server{
		Addr:         cfg.GatewayAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("gateway listening on %s", cfg.GatewayAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("gateway stopped")
}
