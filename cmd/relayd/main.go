// File: cmd/relayd/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/carelinkhq/carelink/internal/config"
	"github.com/carelinkhq/carelink/internal/logging"
	"github.com/carelinkhq/carelink/internal/relay"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.Load()
	logger := logging.New("relayd")

	if cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = "dev-only-secret"
		logger.Warn("JWT_SECRET_KEY not set; using a development secret")
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		log.Fatalf("DB Error: %v", err)
	}
	if err := relay.Migrate(db); err != nil {
		log.Fatalf("DB Migration Error: %v", err)
	}

	hub := relay.NewHub(logger)
	svc, err := relay.NewService(relay.NewRepository(db), hub, []byte(cfg.JWTSecretKey), logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize relay service: %v", err)
	}
	handler := relay.NewHandler(svc, hub, logger)

	router := relay.NewRouter(handler, svc, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: corsMiddleware(router),
	}

	go func() {
		logger.Info("relay listening", "addr", srv.Addr, "database", cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	logger.Info("server stopped")
}
