package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/video-factory/internal/config"
	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/db"
	"github.com/suPer8Hu/video-factory/internal/events"
	"github.com/suPer8Hu/video-factory/internal/publish"
	"github.com/suPer8Hu/video-factory/internal/store/rabbitmq"
	"github.com/suPer8Hu/video-factory/internal/youtube"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	uploader, err := youtube.New(youtube.Config{
		ClientID:      cfg.YouTubeClientID,
		ClientSecret:  cfg.YouTubeClientSecret,
		RefreshToken:  cfg.YouTubeRefreshToken,
		PrivacyStatus: cfg.YouTubePrivacyStatus,
		CategoryID:    cfg.YouTubeCategoryID,
		Language:      cfg.YouTubeLanguage,
	})
	if err != nil {
		log.Fatalf("youtube: %v", err)
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

	sched := publish.New(content.NewRepo(gdb), uploader, publisher, publish.Config{
		Interval: cfg.PublishInterval,
		Pause:    2 * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
}
