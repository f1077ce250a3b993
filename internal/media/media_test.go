package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suPer8Hu/video-factory/internal/content"
)

func TestFormatSRT(t *testing.T) {
	got := FormatSRT([]content.SubtitleSegment{
		{Text: "Did you know", StartMs: 0, EndMs: 600},
		{Text: "  ", StartMs: 600, EndMs: 700},
		{Text: "octopuses have", StartMs: 3_725_042, EndMs: 3_726_000},
	})
	want := "1\n00:00:00,000 --> 00:00:00,600\nDid you know\n\n" +
		"2\n01:02:05,042 --> 01:02:06,000\noctopuses have\n\n"
	if got != want {
		t.Fatalf("unexpected srt:\n%s", got)
	}
}

func TestConcatList_QuotesPaths(t *testing.T) {
	got := ConcatList([]string{"/a/phrase_001.mp3", "/b/it's.mp3"})
	if !strings.Contains(got, "file '/a/phrase_001.mp3'\n") {
		t.Fatalf("unexpected list: %q", got)
	}
	if !strings.Contains(got, `file '/b/it'\''s.mp3'`) {
		t.Fatalf("quote not escaped: %q", got)
	}
}

func TestPickTemplate(t *testing.T) {
	dir := t.TempDir()
	if _, err := PickTemplate(dir, "short"); err == nil {
		t.Fatalf("expected error for empty dir")
	}

	_ = os.WriteFile(filepath.Join(dir, "wide.mp4"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	got, err := PickTemplate(dir, "short")
	if err != nil || filepath.Base(got) != "wide.mp4" {
		t.Fatalf("expected wide.mp4, got %q %v", got, err)
	}

	_ = os.MkdirAll(filepath.Join(dir, "short"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "short", "tall.MP4"), []byte("x"), 0o644)
	got, err = PickTemplate(dir, "short")
	if err != nil || filepath.Base(got) != "tall.MP4" {
		t.Fatalf("expected the short template, got %q %v", got, err)
	}
}
