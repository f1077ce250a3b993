package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/video-factory/internal/ai"
	"github.com/suPer8Hu/video-factory/internal/config"
	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/credentials"
	"github.com/suPer8Hu/video-factory/internal/db"
	"github.com/suPer8Hu/video-factory/internal/events"
	"github.com/suPer8Hu/video-factory/internal/media"
	"github.com/suPer8Hu/video-factory/internal/narration"
	"github.com/suPer8Hu/video-factory/internal/queue"
	"github.com/suPer8Hu/video-factory/internal/store/rabbitmq"
	"github.com/suPer8Hu/video-factory/internal/store/s3"
	"github.com/suPer8Hu/video-factory/internal/transcribe"
	"github.com/suPer8Hu/video-factory/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Provider registry, selected by AI_PROVIDER
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	if len(cfg.ElevenLabsAPIKeys) == 0 {
		log.Printf("warning: no ELEVENLABS_API_KEYS configured, audio stages will fail")
	}
	pool := credentials.NewPool(cfg.ElevenLabsAPIKeys, cfg.CredentialCooldown)

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	deps := worker.Deps{
		Queue: queue.New(gdb, queue.Options{
			MaxConcurrent:     cfg.MaxConcurrentJobs,
			DefaultMaxRetries: cfg.JobMaxRetries,
		}),
		Items:       content.NewRepo(gdb),
		Credentials: pool,
		Scripts:     ai.NewScriptWriter(provider),
		Narrator:    narration.NewElevenLabs(cfg.ElevenLabsBaseURL, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID),
		Transcriber: transcribe.NewAssemblyAI(cfg.AssemblyAIBaseURL, cfg.AssemblyAIAPIKey, cfg.AssemblyAILanguage),
		Renderer:    media.NewFFmpeg(cfg.FFmpegPath, cfg.TemplateDir),
		Events:      publisher,
	}

	if cfg.S3Endpoint != "" {
		store, err := s3.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("s3 bucket: %v", err)
		}
		deps.Artifacts = store
	}

	w := worker.New(deps, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		StaleAfter:   cfg.StaleJobTimeout,
		MediaRoot:    cfg.MediaRoot,
	})

	log.Printf("worker starting provider=%s credentials=%d", cfg.AIProvider, pool.Size())
	if err := w.Run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
	log.Printf("worker stopped")
}
