package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestGroupWords(t *testing.T) {
	words := []Word{
		{Text: "Did", Start: 0, End: 200},
		{Text: "you", Start: 200, End: 400},
		{Text: "know", Start: 400, End: 600},
		{Text: "octopuses", Start: 600, End: 1100},
		{Text: "have", Start: 1100, End: 1300},
		{Text: "extraordinarily-long-arms", Start: 1300, End: 2000},
	}
	segs := GroupWords(words, 20)
	if len(segs) != 3 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if segs[0].Text != "Did you know" || segs[0].StartMs != 0 || segs[0].EndMs != 600 {
		t.Fatalf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Text != "octopuses have" || segs[1].StartMs != 600 || segs[1].EndMs != 1300 {
		t.Fatalf("unexpected second segment: %+v", segs[1])
	}
	if segs[2].Text != "extraordinarily-long-arms" {
		t.Fatalf("long word should stand alone: %+v", segs[2])
	}
}

func TestTranscribe_UploadsAndPolls(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			t.Errorf("missing authorization header")
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/upload":
			_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/audio"})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["audio_url"] != "https://cdn.example/audio" {
				t.Errorf("unexpected audio_url %q", body["audio_url"])
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/transcript/tr-1":
			if atomic.AddInt32(&polls, 1) < 2 {
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "tr-1",
				"status": "completed",
				"words": []Word{
					{Text: "Hello", Start: 0, End: 300},
					{Text: "world", Start: 300, End: 700},
				},
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "combined_audio.mp3")
	if err := os.WriteFile(audio, []byte("mp3"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	c := NewAssemblyAI(srv.URL, "key", "en")
	c.PollInterval = 10 * time.Millisecond
	segs, err := c.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "Hello world" || segs[0].EndMs != 700 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if atomic.LoadInt32(&polls) != 2 {
		t.Fatalf("expected two polls, got %d", polls)
	}
}

func TestTranscribe_FailedTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/upload":
			_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "u"})
		case "/v2/transcript":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "x"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "audio too short"})
		}
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.mp3")
	_ = os.WriteFile(audio, []byte("mp3"), 0o644)

	c := NewAssemblyAI(srv.URL, "key", "")
	c.PollInterval = time.Millisecond
	if _, err := c.Transcribe(context.Background(), audio); err == nil {
		t.Fatalf("expected error")
	}
}
