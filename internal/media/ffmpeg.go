package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suPer8Hu/video-factory/internal/content"
)

type RenderRequest struct {
	AudioPath  string
	Subtitles  []content.SubtitleSegment
	OutputPath string
	VideoType  string
}

// FFmpeg joins narration clips and renders the final video over a background
// template picked at random from TemplateDir.
type FFmpeg struct {
	Bin         string
	TemplateDir string
}

func NewFFmpeg(bin, templateDir string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{Bin: bin, TemplateDir: templateDir}
}

// JoinAudio concatenates mp3 clips in order into out.
func (f *FFmpeg) JoinAudio(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return errors.New("join audio: no inputs")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}

	listFile := strings.TrimSuffix(out, filepath.Ext(out)) + "_concat.txt"
	if err := os.WriteFile(listFile, []byte(ConcatList(inputs)), 0o644); err != nil {
		return err
	}
	defer os.Remove(listFile)

	return f.run(ctx, "join audio",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		out,
	)
}

// Render loops the template under the narration, burns in the subtitles
// and writes an mp4 at req.OutputPath.
func (f *FFmpeg) Render(ctx context.Context, req RenderRequest) (string, error) {
	template, err := PickTemplate(f.TemplateDir, req.VideoType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", err
	}

	srtPath := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + ".srt"
	if err := os.WriteFile(srtPath, []byte(FormatSRT(req.Subtitles)), 0o644); err != nil {
		return "", err
	}

	scale := "scale=1920:1080:force_original_aspect_ratio=increase,crop=1920:1080"
	if req.VideoType == content.VideoTypeShort {
		scale = "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920"
	}
	style := "FontName=Arial,FontSize=18,Bold=1,Outline=2,Alignment=2,MarginV=60"

	log.Printf("[render] template=%s out=%s", filepath.Base(template), req.OutputPath)
	err = f.run(ctx, "render",
		"-y",
		"-stream_loop", "-1",
		"-i", template,
		"-i", req.AudioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-vf", fmt.Sprintf("%s,subtitles=%s:force_style='%s'", scale, escapeFilterPath(srtPath), style),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		req.OutputPath,
	)
	if err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func (f *FFmpeg) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 400 {
			tail = tail[len(tail)-400:]
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", op, err, strings.TrimSpace(tail))
	}
	return nil
}

// ConcatList renders the input file for ffmpeg's concat demuxer.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	return b.String()
}

// PickTemplate returns a random .mp4 from dir. A "short" or "normal"
// subdirectory matching videoType is preferred when present.
func PickTemplate(dir, videoType string) (string, error) {
	if dir == "" {
		return "", errors.New("no template directory configured")
	}
	candidates := listVideos(filepath.Join(dir, videoType))
	if len(candidates) == 0 {
		candidates = listVideos(dir)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no .mp4 templates in %s", dir)
	}
	return candidates[rand.IntN(len(candidates))], nil
}

func listVideos(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out
}

// subtitles= takes a filter argument; ':' and '\' in the path must be escaped.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, ":", `\:`)
	return strings.ReplaceAll(p, "'", `\'`)
}
