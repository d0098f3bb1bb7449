package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"church-messaging/internal/audit"
	"church-messaging/internal/auth"
	"church-messaging/internal/config"
	"church-messaging/internal/httpapi"
	"church-messaging/internal/identity"
	"church-messaging/internal/messaging"
	"church-messaging/internal/reporting"
	"church-messaging/internal/storage"
	"church-messaging/internal/telephony"
	"church-messaging/migrations"
	"church-messaging/pkg/logger"
	"church-messaging/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, logger.Options{File: cfg.App.LogFile})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		applied, err := utils.ApplyMigrations(rootCtx, db, migrations.FS)
		if err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		log.Info("migrations applied", "versions", applied)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	} else {
		log.Warn("redis disabled; phone index and sync gate are off")
	}

	deps, err := buildDeps(cfg, db, rdb)
	if err != nil {
		log.Error("wiring failed", "err", err)
		os.Exit(1)
	}
	deps.AuthMW = auth.RequireAccessToken(authManager)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// buildDeps constructs every service once. rdb may be nil.
func buildDeps(cfg config.Config, db *sql.DB, rdb *redis.Client) (routeDeps, error) {
	messages := storage.NewMessageRepo(db)
	counters := storage.NewCounterRepo(db)
	auditSvc := audit.NewService(storage.NewAuditRepo(db))

	provider := telephony.NewTwilioClient(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		BaseURL:    cfg.Twilio.BaseURL,
	})

	dir := storage.NewDirectoryRepo(db)
	scan := identity.NewScanResolver(dir)
	var resolver identity.Resolver = scan
	var gate messaging.SyncGate
	if rdb != nil {
		resolver = identity.NewIndexedResolver(scan, dir, rdb, cfg.Sync.PhoneIndexTTL)
		g, err := utils.NewSlotGate(rdb, "syncgate:", cfg.Sync.MaxConcurrentPerChurch, cfg.Sync.LockTTL)
		if err != nil {
			return routeDeps{}, err
		}
		gate = g
	}

	persister := messaging.NewPersister(messages)
	reconciler := messaging.NewReconciler(messages, counters)

	return routeDeps{
		DB:          db,
		CORSOrigins: cfg.HTTP.CORSAllowedOrigins,
		Webhook: telephony.TwilioSMSWebhookHandler{
			Pipeline: &messaging.Pipeline{Resolver: resolver, Persister: persister, Reconciler: reconciler},
		},
		API: httpapi.Handlers{
			Sync:     &messaging.SyncService{Provider: provider, Store: messages, Reconciler: reconciler, Gate: gate},
			Outbound: &messaging.Outbound{Provider: provider, Persister: persister, Audit: auditSvc, FromNumber: cfg.Twilio.FromNumber},
			Read:     &messaging.ReadService{Store: messages, Reconciler: reconciler, Audit: auditSvc},
			Counters: counters,
			Reports:  reporting.NewService(messages),
			Roster:   dir,
		},
	}, nil
}
