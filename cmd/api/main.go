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

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/video-factory/internal/config"
	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/db"
	"github.com/suPer8Hu/video-factory/internal/events"
	"github.com/suPer8Hu/video-factory/internal/httpapi"
	"github.com/suPer8Hu/video-factory/internal/httpapi/handlers"
	"github.com/suPer8Hu/video-factory/internal/httpapi/middleware"
	"github.com/suPer8Hu/video-factory/internal/publish"
	"github.com/suPer8Hu/video-factory/internal/queue"
	"github.com/suPer8Hu/video-factory/internal/store/rabbitmq"
	"github.com/suPer8Hu/video-factory/internal/store/redisstore"
	"github.com/suPer8Hu/video-factory/internal/youtube"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rds.Ping(pingCtx); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		cancel()
		defer rds.Close()
		limiter = rds
	}
	if cfg.JWTSecret == "" {
		log.Printf("warning: JWT_SECRET is empty, API authentication is disabled")
	}

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	items := content.NewRepo(gdb)
	q := queue.New(gdb, queue.Options{
		MaxConcurrent:     cfg.MaxConcurrentJobs,
		DefaultMaxRetries: cfg.JobMaxRetries,
	})

	// scheduling works without YouTube credentials; only publishing needs them
	var uploader publish.Uploader
	if up, err := youtube.New(youtubeConfig(cfg)); err == nil {
		uploader = up
	} else {
		log.Printf("publication disabled: %v", err)
	}
	sched := publish.New(items, uploader, publisher, publish.Config{Interval: cfg.PublishInterval})

	h := handlers.NewHandler(q, items, sched)
	r := httpapi.NewRouter(h, cfg, limiter)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func youtubeConfig(cfg config.Config) youtube.Config {
	return youtube.Config{
		ClientID:      cfg.YouTubeClientID,
		ClientSecret:  cfg.YouTubeClientSecret,
		RefreshToken:  cfg.YouTubeRefreshToken,
		PrivacyStatus: cfg.YouTubePrivacyStatus,
		CategoryID:    cfg.YouTubeCategoryID,
		Language:      cfg.YouTubeLanguage,
	}
}
