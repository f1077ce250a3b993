package youtube

import (
	"errors"
	"strings"
	"testing"
)

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{ClientID: "id"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	u, err := New(Config{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if u.cfg.PrivacyStatus != "public" || u.cfg.CategoryID != "27" {
		t.Fatalf("defaults not applied: %+v", u.cfg)
	}
}

func TestTruncate_CountsRunes(t *testing.T) {
	title := strings.Repeat("é", 120)
	if got := truncate(title, 100); len([]rune(got)) != 100 {
		t.Fatalf("expected 100 runes, got %d", len([]rune(got)))
	}
	if WatchURL("abc") != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("unexpected watch url")
	}
}
