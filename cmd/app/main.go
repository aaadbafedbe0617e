package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"investly/configs"
	"investly/internal/app"
	httpdelivery "investly/internal/delivery/http"
	"investly/internal/infra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := configs.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	services, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer services.Close()

	warmCtx, warmCancel := context.WithTimeout(ctx, 15*time.Second)
	log.Printf("[OK] Loaded %d step sizes", services.Gateway.WarmStepSizes(warmCtx))
	warmCancel()

	scheduler := infra.NewScheduler(services.StepSizes, cfg.Scheduler.StepSizeRefresh)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true

	turnTimeout := app.TurnTimeout(cfg)
	httpdelivery.SetupRoutes(e, &httpdelivery.RouterConfig{
		ChatHandler: httpdelivery.NewChatHandler(services.Orchestrator, services.Store, services.Dispatcher.Tools(), turnTimeout),
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Investly API starting on %s", addr)
	log.Printf("Environment: %s", cfg.Server.Env)
	log.Println("========================================")

	srv := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: turnTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERR] Server forced to shutdown: %v", err)
	}

	log.Println("[OK] Server exited gracefully")
}
