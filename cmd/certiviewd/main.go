package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/certiview/certiview/internal/config"
	"github.com/certiview/certiview/internal/platform/audit"
	"github.com/certiview/certiview/internal/platform/auth"
	"github.com/certiview/certiview/internal/platform/clock"
	"github.com/certiview/certiview/internal/platform/metrics"
	"github.com/certiview/certiview/internal/server"
	"github.com/certiview/certiview/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	clk := clock.RealClock{}
	m := metrics.New(prometheus.DefaultRegisterer)

	var auditStore audit.Store
	var db *sql.DB
	if cfg.DB.URL != "" {
		mig, err := migrate.New(cfg.DB.MigrationsURL, cfg.DB.URL)
		if err != nil {
			log.WithError(err).Fatal("create migrate instance")
		}
		if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.WithError(err).Fatal("apply migrations")
		}

		db, err = sql.Open("pgx", cfg.DB.URL)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
		db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Fatal("ping database")
		}
		defer db.Close()

		auditStore = audit.NewPostgresStore(db, clk)
		log.Info("connected to postgres, audit chain persisted")
	} else {
		auditStore = audit.NewMemoryStore(clk)
		log.Warn("no database configured, audit chain is in-memory only")
	}

	recorder := service.NewAuditRecorder(auditStore, m)
	var analysis *service.Analysis
	if db != nil {
		analysis = service.NewAnalysis(db, clk, m, recorder)
	}

	var verifier *auth.Verifier
	if cfg.Auth.Secret != "" {
		verifier = auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience)
	} else {
		log.Warn("no auth secret configured, internal endpoints disabled")
	}

	e := echo.New()
	e.HideBanner = true
	server.New(analysis, recorder, verifier).Register(e)

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()
	log.WithField("addr", cfg.HTTPAddr).Info("certiviewd started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown http server")
	}
}
