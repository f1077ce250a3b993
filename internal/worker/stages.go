package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/credentials"
	"github.com/suPer8Hu/video-factory/internal/media"
)

func (w *Worker) generateScript(ctx context.Context, idea *content.Idea) error {
	draft, err := w.deps.Scripts.WriteScript(ctx, idea)
	if err != nil {
		return err
	}
	if strings.TrimSpace(draft.Script) == "" {
		return errors.New("script writer returned an empty script")
	}
	// a fresh script invalidates any earlier adaptation
	return w.deps.Items.SaveScript(ctx, &content.Script{
		IdeaID:         idea.ID,
		OriginalScript: draft.Script,
		Description:    draft.Description,
	})
}

func (w *Worker) adaptScript(ctx context.Context, idea *content.Idea) error {
	script, err := w.deps.Items.GetScript(ctx, idea.ID)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	adapted, phrases, err := w.deps.Scripts.AdaptScript(ctx, script.OriginalScript)
	if err != nil {
		return err
	}
	if len(phrases) == 0 {
		return errors.New("adapted script has no phrases")
	}
	script.AdaptedScript = adapted
	script.Phrases = phrases
	return w.deps.Items.SaveScript(ctx, script)
}

func (w *Worker) generateAudio(ctx context.Context, idea *content.Idea) error {
	script, err := w.deps.Items.GetScript(ctx, idea.ID)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	if len(script.Phrases) == 0 {
		return errors.New("script has no phrases to narrate")
	}

	dir := filepath.Join(w.cfg.MediaRoot, idea.ID, "audio")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	phrases := make([]content.AudioPhrase, 0, len(script.Phrases))
	paths := make([]string, 0, len(script.Phrases))
	var cursor int64
	for i, text := range script.Phrases {
		audio, durationMs, err := w.synthesize(ctx, text)
		if err != nil {
			return fmt.Errorf("phrase %d: %w", i+1, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("phrase_%03d.mp3", i+1))
		if err := os.WriteFile(path, audio, 0o644); err != nil {
			return err
		}
		phrases = append(phrases, content.AudioPhrase{
			Index:      i + 1,
			Text:       text,
			Path:       path,
			DurationMs: durationMs,
			StartMs:    cursor,
			EndMs:      cursor + durationMs,
		})
		paths = append(paths, path)
		cursor += durationMs
	}

	combined := filepath.Join(dir, "combined_audio.mp3")
	if err := w.deps.Renderer.JoinAudio(ctx, paths, combined); err != nil {
		return err
	}

	// subtitles are left empty so the video stage transcribes the new track
	return w.deps.Items.SaveAudioTrack(ctx, &content.AudioTrack{
		IdeaID:          idea.ID,
		Directory:       dir,
		CombinedPath:    combined,
		Phrases:         phrases,
		TotalDurationMs: cursor,
	})
}

// synthesize rotates through the credential pool on quota errors. Any other
// error, or an exhausted pool, fails the stage.
func (w *Worker) synthesize(ctx context.Context, text string) ([]byte, int64, error) {
	for {
		cred, err := w.deps.Credentials.Acquire()
		if err != nil {
			return nil, 0, err
		}
		audio, durationMs, err := w.deps.Narrator.Synthesize(ctx, text, cred)
		if err == nil {
			return audio, durationMs, nil
		}
		if !credentials.IsQuotaError(err) {
			return nil, 0, err
		}
		w.deps.Credentials.ReportQuotaError(cred)
		log.Printf("[worker] %s out of quota, %d left", cred, w.deps.Credentials.AvailableCount())
	}
}

func (w *Worker) generateVideo(ctx context.Context, idea *content.Idea) error {
	track, err := w.deps.Items.GetAudioTrack(ctx, idea.ID)
	if err != nil {
		return fmt.Errorf("load audio track: %w", err)
	}

	// segments from an earlier attempt are reused
	if len(track.Subtitles) == 0 {
		segs, err := w.deps.Transcriber.Transcribe(ctx, track.CombinedPath)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		if err := w.deps.Items.SaveSubtitles(ctx, track, segs); err != nil {
			return err
		}
	}

	out := filepath.Join(w.cfg.MediaRoot, idea.ID, "video", "final_video.mp4")
	path, err := w.deps.Renderer.Render(ctx, media.RenderRequest{
		AudioPath:  track.CombinedPath,
		Subtitles:  track.Subtitles,
		OutputPath: out,
		VideoType:  idea.VideoType,
	})
	if err != nil {
		return err
	}

	video := &content.Video{
		IdeaID:     idea.ID,
		FilePath:   path,
		DurationMs: track.TotalDurationMs,
		Title:      idea.Title,
		Tags:       idea.Keywords,
	}
	if script, err := w.deps.Items.GetScript(ctx, idea.ID); err == nil {
		video.Description = script.Description
	}

	if w.deps.Artifacts != nil {
		key := fmt.Sprintf("videos/%s/final_video.mp4", idea.ID)
		loc, err := w.deps.Artifacts.PutFile(ctx, key, path)
		if err != nil {
			// archiving is best effort
			log.Printf("[worker] item=%s archive failed err=%v", idea.ID, err)
		} else {
			video.StorageURL = loc
		}
	}

	return w.deps.Items.SaveRenderedVideo(ctx, video)
}
