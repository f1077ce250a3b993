package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_CONCURRENT_VIDEO_JOBS", "")
	t.Setenv("JOB_MAX_RETRIES", "")
	t.Setenv("WORKER_POLL_INTERVAL", "")

	cfg := Load()
	if cfg.MaxConcurrentJobs != 2 || cfg.JobMaxRetries != 1 {
		t.Fatalf("unexpected queue defaults: %+v", cfg)
	}
	if cfg.WorkerPollInterval != 5*time.Second || cfg.PublishInterval != time.Minute {
		t.Fatalf("unexpected intervals: poll=%s publish=%s", cfg.WorkerPollInterval, cfg.PublishInterval)
	}
	if cfg.CredentialCooldown != 24*time.Hour || cfg.StaleJobTimeout != 2*time.Hour {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_CONCURRENT_VIDEO_JOBS", "500")
	t.Setenv("JOB_MAX_RETRIES", "3")
	t.Setenv("WORKER_POLL_INTERVAL", "2")
	t.Setenv("PUBLISH_INTERVAL", "90s")
	t.Setenv("S3_USE_SSL", "true")

	cfg := Load()
	if cfg.MaxConcurrentJobs != 50 {
		t.Fatalf("expected cap clamped to 50, got %d", cfg.MaxConcurrentJobs)
	}
	if cfg.JobMaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.JobMaxRetries)
	}
	if cfg.WorkerPollInterval != 2*time.Second || cfg.PublishInterval != 90*time.Second {
		t.Fatalf("unexpected intervals: poll=%s publish=%s", cfg.WorkerPollInterval, cfg.PublishInterval)
	}
	if !cfg.S3UseSSL {
		t.Fatalf("expected S3_USE_SSL parsed")
	}
}

func TestNarrationKeys(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ELEVENLABS_API_KEYS", "sk_one, sk_two ,not-a-key,")
	t.Setenv("ELEVENLABS_API_KEY1", "sk_two")
	t.Setenv("ELEVENLABS_API_KEY2", "sk_three")
	t.Setenv("ELEVENLABS_API_KEY3", "")
	t.Setenv("ELEVENLABS_API_KEY4", "")
	t.Setenv("ELEVENLABS_API_KEY5", "placeholder")

	got := Load().ElevenLabsAPIKeys
	want := []string{"sk_one", "sk_two", "sk_three"}
	if len(got) != len(want) {
		t.Fatalf("unexpected keys %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_FileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "http_addr: \":9090\"\nmax_concurrent_video_jobs: 4\nrabbit_exchange: from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("MAX_CONCURRENT_VIDEO_JOBS", "")
	t.Setenv("RABBIT_EXCHANGE", "from-env")

	cfg := Load()
	if cfg.HTTPAddr != ":9090" || cfg.MaxConcurrentJobs != 4 {
		t.Fatalf("file values not applied: addr=%s cap=%d", cfg.HTTPAddr, cfg.MaxConcurrentJobs)
	}
	if cfg.RabbitExchange != "from-env" {
		t.Fatalf("env should win over file, got %s", cfg.RabbitExchange)
	}
}
