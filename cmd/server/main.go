// Command server runs the payment request API.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/vanitypay/vanitypay/internal/app"
	"github.com/vanitypay/vanitypay/internal/app/auth"
	"github.com/vanitypay/vanitypay/internal/app/httpapi"
	"github.com/vanitypay/vanitypay/internal/app/storage/postgres"
	"github.com/vanitypay/vanitypay/internal/config"
	"github.com/vanitypay/vanitypay/internal/database"
	"github.com/vanitypay/vanitypay/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (overrides CONFIG_PATH)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("CONFIG_PATH", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = ephemeralSecret()
		log.Warn("JWT secret not configured; using an ephemeral secret, tokens will not survive restarts")
	}
	authMgr := auth.NewManager(secret, time.Duration(cfg.Auth.TokenTTL)*time.Second, cfg.Auth.Users)

	var stores app.Stores
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = database.Open(cfg.Database)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			log.Fatalf("migrate database: %v", err)
		}

		store := postgres.New(db)
		stores = app.Stores{Accounts: store, Requests: store}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured; using in-memory storage")
	}

	application, err := app.New(stores, log)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}

	handler, err := httpapi.NewHandler(application, authMgr, log, httpapi.Options{
		AuditPath:      cfg.HTTP.AuditLogPath,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("build handler: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("server stopped")
}

func ephemeralSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
