package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stayverify/stayverify/internal/ai"
	"github.com/stayverify/stayverify/internal/database"
	"github.com/stayverify/stayverify/internal/docstore"
	"github.com/stayverify/stayverify/internal/email"
	"github.com/stayverify/stayverify/internal/logging"
	"github.com/stayverify/stayverify/internal/payment"
	"github.com/stayverify/stayverify/internal/push"
	"github.com/stayverify/stayverify/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := logging.Setup(os.Getenv("STAYVERIFY_LOG_LEVEL"))

	port := os.Getenv("STAYVERIFY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("STAYVERIFY_DB_PATH")
	if dbPath == "" {
		dbPath = "stayverify.db"
	}

	baseURL := os.Getenv("STAYVERIFY_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("STAYVERIFY_POSTMARK_TOKEN"),
		os.Getenv("STAYVERIFY_FROM_EMAIL"),
		baseURL,
	)

	payments := payment.NewClient(payment.Config{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PriceID:       os.Getenv("STRIPE_PRICE_ID"),
		SuccessURL:    baseURL + "/dashboard?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     baseURL + "/pricing",
	})

	analysis := ai.NewClient(
		os.Getenv("STAYVERIFY_AI_URL"),
		os.Getenv("STAYVERIFY_AI_KEY"),
	)

	docs := docstore.New(docstore.Config{
		Endpoint:  os.Getenv("STAYVERIFY_S3_ENDPOINT"),
		Bucket:    os.Getenv("STAYVERIFY_S3_BUCKET"),
		Region:    os.Getenv("STAYVERIFY_S3_REGION"),
		AccessKey: os.Getenv("STAYVERIFY_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("STAYVERIFY_S3_SECRET_KEY"),
	})

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("STAYVERIFY_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("STAYVERIFY_VAPID_PRIVATE_KEY"),
	}

	srv := server.New(db, emailClient, payments, analysis, docs, pushCfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	srv.Sweeper().Start(sweepCtx)

	// Hourly maintenance: expired sessions, stale magic links, rate
	// limiter buckets.
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if n := srv.TokenStore().Sweep(); n > 0 {
					slog.Info("swept expired magic links", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("stayverify starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	sweepCancel()
	srv.Sweeper().Stop()
	srv.TokenStore().Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
