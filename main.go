package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/config"
	"github.com/AntonyShaga/booking-notes-chat/internals/initializers"
	"github.com/AntonyShaga/booking-notes-chat/internals/routes"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"
)

func main() {
	initializers.LoadEnvVariables()
	cfg := config.Load()

	db, err := initializers.ConnectToDb(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	redisClient, err := initializers.ConnectToRedis(cfg.RedisAddr, cfg.RedisPass)
	if err != nil {
		log.Fatalf("connecting to redis: %v", err)
	}

	initializers.StartVerificationCleanup(db, cfg.CleanupInterval)

	mailer := utils.NewEmailManager(cfg.SMTP, cfg.AppName, cfg.AppURL)
	router, err := routes.SetupRouter(cfg, db, redisClient, mailer)
	if err != nil {
		log.Fatalf("setting up router: %v", err)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
