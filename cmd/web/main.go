package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lmsquiz/internal/app"
	"lmsquiz/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := app.LoadConfig()
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			log.Printf("JWT_SECRET is required in production")
			os.Exit(1)
		}
		cfg.JWTSecret = "lmsquiz-dev-secret"
		log.Printf("JWT_SECRET not set, using development secret")
	}

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbConn, err := db.OpenWithConfig(ctx, driver, cfg.DBDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbConn, driver); err != nil {
			log.Printf("migrate: %v", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, dbConn, app.Deps{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("lmsquiz listening on %s (%s)", cfg.HTTPAddr, driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
