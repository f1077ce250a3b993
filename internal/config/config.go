package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBDSN     string
	HTTPAddr  string
	JWTSecret string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	// rabbitMQ
	RabbitURL      string
	RabbitExchange string

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// queue / worker
	MaxConcurrentJobs  int
	WorkerPollInterval time.Duration
	JobMaxRetries      int
	StaleJobTimeout    time.Duration

	// narration
	ElevenLabsAPIKeys  []string
	ElevenLabsBaseURL  string
	ElevenLabsVoiceID  string
	ElevenLabsModelID  string
	CredentialCooldown time.Duration

	// transcription
	AssemblyAIBaseURL  string
	AssemblyAIAPIKey   string
	AssemblyAILanguage string

	// media
	MediaRoot   string
	TemplateDir string
	FFmpegPath  string

	// object storage, disabled when S3Endpoint is empty
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// publication
	YouTubeClientID      string
	YouTubeClientSecret  string
	YouTubeRefreshToken  string
	YouTubePrivacyStatus string
	YouTubeCategoryID    string
	YouTubeLanguage      string
	PublishInterval      time.Duration
}

// source resolves a key from the environment first, then from the optional
// YAML file named by CONFIG_FILE.
type source struct {
	file map[string]string
}

func newSource() source {
	s := source{file: map[string]string{}}
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return s
	}
	m, err := readFile(path)
	if err != nil {
		log.Printf("config: ignoring %s: %v", path, err)
		return s
	}
	s.file = m
	return s
}

// readFile loads a flat YAML map. Keys are matched case-insensitively against
// the environment variable names.
func readFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v
	}
	return def
}

func (s source) getInt(key string, def int) int {
	if v := s.get(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s source) getBool(key string, def bool) bool {
	if v := s.get(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func (s source) getDuration(key string, def time.Duration) time.Duration {
	v := s.get(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func Load() Config {
	src := newSource()

	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/video_factory?charset=utf8mb4&parseTime=true&loc=UTC
	// sqlite:video_factory.db for local runs
	dsn := src.get("DB_DSN", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		"app", "apppass", "127.0.0.1", "3306", "video_factory",
	))

	maxConcurrent := src.getInt("MAX_CONCURRENT_VIDEO_JOBS", 2)
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if maxConcurrent > 50 {
		maxConcurrent = 50
	}

	maxRetries := src.getInt("JOB_MAX_RETRIES", 1)
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return Config{
		DBDSN:     dsn,
		HTTPAddr:  src.get("HTTP_ADDR", ":8080"),
		JWTSecret: src.get("JWT_SECRET", ""),

		RedisAddr:          src.get("REDIS_ADDR", ""),
		RedisPassword:      src.get("REDIS_PASSWORD", ""),
		RedisDB:            src.getInt("REDIS_DB", 0),
		RateLimitPerMinute: src.getInt("RATE_LIMIT_PER_MINUTE", 120),

		RabbitURL:      src.get("RABBIT_URL", ""),
		RabbitExchange: src.get("RABBIT_EXCHANGE", "video_factory.events"),

		AIProvider:        strings.ToLower(src.get("AI_PROVIDER", "ollama")),
		OllamaBaseURL:     src.get("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       src.get("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: src.get("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  src.get("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   src.get("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: src.get("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName: src.get("OPENROUTER_APP_NAME", ""),

		MaxConcurrentJobs:  maxConcurrent,
		WorkerPollInterval: src.getDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		JobMaxRetries:      maxRetries,
		StaleJobTimeout:    src.getDuration("STALE_JOB_TIMEOUT", 2*time.Hour),

		ElevenLabsAPIKeys:  narrationKeys(src),
		ElevenLabsBaseURL:  src.get("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsVoiceID:  src.get("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModelID:  src.get("ELEVENLABS_MODEL_ID", ""),
		CredentialCooldown: src.getDuration("CREDENTIAL_COOLDOWN", 24*time.Hour),

		AssemblyAIBaseURL:  src.get("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
		AssemblyAIAPIKey:   src.get("ASSEMBLYAI_API_KEY", ""),
		AssemblyAILanguage: src.get("ASSEMBLYAI_LANGUAGE", "fr"),

		MediaRoot:   src.get("MEDIA_ROOT", "media"),
		TemplateDir: src.get("TEMPLATE_DIR", "templates"),
		FFmpegPath:  src.get("FFMPEG_PATH", "ffmpeg"),

		S3Endpoint:  src.get("S3_ENDPOINT", ""),
		S3AccessKey: src.get("S3_ACCESS_KEY", ""),
		S3SecretKey: src.get("S3_SECRET_KEY", ""),
		S3Bucket:    src.get("S3_BUCKET", "videos"),
		S3UseSSL:    src.getBool("S3_USE_SSL", false),

		YouTubeClientID:      src.get("YOUTUBE_CLIENT_ID", ""),
		YouTubeClientSecret:  src.get("YOUTUBE_CLIENT_SECRET", ""),
		YouTubeRefreshToken:  src.get("YOUTUBE_REFRESH_TOKEN", ""),
		YouTubePrivacyStatus: src.get("YOUTUBE_PRIVACY_STATUS", "public"),
		YouTubeCategoryID:    src.get("YOUTUBE_CATEGORY_ID", "27"),
		YouTubeLanguage:      src.get("YOUTUBE_LANGUAGE", "fr"),
		PublishInterval:      src.getDuration("PUBLISH_INTERVAL", 60*time.Second),
	}
}

const maxNumberedKeys = 5

// narrationKeys merges ELEVENLABS_API_KEYS (comma separated) with
// ELEVENLABS_API_KEY1..5. Values that do not look like ElevenLabs keys are
// dropped, duplicates keep their first position.
func narrationKeys(src source) []string {
	var raw []string
	raw = append(raw, strings.Split(src.get("ELEVENLABS_API_KEYS", ""), ",")...)
	for i := 1; i <= maxNumberedKeys; i++ {
		raw = append(raw, src.get(fmt.Sprintf("ELEVENLABS_API_KEY%d", i), ""))
	}

	seen := map[string]bool{}
	var keys []string
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if !strings.HasPrefix(k, "sk_") || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
