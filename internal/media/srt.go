package media

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/video-factory/internal/content"
)

// FormatSRT renders segments as a SubRip file.
func FormatSRT(segs []content.SubtitleSegment) string {
	var b strings.Builder
	n := 0
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, srtTimestamp(s.StartMs), srtTimestamp(s.EndMs), text)
	}
	return b.String()
}

func srtTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
