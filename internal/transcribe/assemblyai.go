package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/suPer8Hu/video-factory/internal/content"
)

const DefaultCharsPerSegment = 20

// AssemblyAI turns narration audio into timed subtitle segments.
type AssemblyAI struct {
	BaseURL         string
	APIKey          string
	LanguageCode    string
	CharsPerSegment int
	PollInterval    time.Duration
	Client          *http.Client
}

func NewAssemblyAI(baseURL, apiKey, language string) *AssemblyAI {
	if baseURL == "" {
		baseURL = "https://api.assemblyai.com"
	}
	if language == "" {
		language = "fr"
	}
	return &AssemblyAI{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		APIKey:          apiKey,
		LanguageCode:    language,
		CharsPerSegment: DefaultCharsPerSegment,
		PollInterval:    3 * time.Second,
		Client:          &http.Client{Timeout: 5 * time.Minute},
	}
}

type Word struct {
	Text  string `json:"text"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

type transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Words  []Word `json:"words"`
}

func (c *AssemblyAI) Transcribe(ctx context.Context, audioPath string) ([]content.SubtitleSegment, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("assemblyai: api key is required")
	}

	uploadURL, err := c.upload(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	var created transcript
	if err := c.doJSON(ctx, http.MethodPost, "/v2/transcript", map[string]any{
		"audio_url":     uploadURL,
		"language_code": c.LanguageCode,
	}, &created); err != nil {
		return nil, fmt.Errorf("assemblyai: create transcript: %w", err)
	}

	words, err := c.wait(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	segs := GroupWords(words, c.CharsPerSegment)
	if len(segs) == 0 {
		return nil, errors.New("assemblyai: transcript has no words")
	}
	return segs, nil
}

func (c *AssemblyAI) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("assemblyai: open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("upload", resp)
	}

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", errors.New("assemblyai: upload returned no url")
	}
	return out.UploadURL, nil
}

func (c *AssemblyAI) wait(ctx context.Context, id string) ([]Word, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		var t transcript
		if err := c.doJSON(ctx, http.MethodGet, "/v2/transcript/"+id, nil, &t); err != nil {
			return nil, fmt.Errorf("assemblyai: poll transcript: %w", err)
		}
		switch t.Status {
		case "completed":
			return t.Words, nil
		case "error":
			return nil, fmt.Errorf("assemblyai: transcript failed: %s", t.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *AssemblyAI) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	return fmt.Errorf("assemblyai: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
}

// GroupWords packs consecutive words into captions of at most maxChars
// characters. A single longer word becomes its own caption.
func GroupWords(words []Word, maxChars int) []content.SubtitleSegment {
	if maxChars <= 0 {
		maxChars = DefaultCharsPerSegment
	}
	var out []content.SubtitleSegment
	var cur *content.SubtitleSegment
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if cur != nil && len([]rune(cur.Text))+1+len([]rune(text)) <= maxChars {
			cur.Text += " " + text
			cur.EndMs = w.End
			continue
		}
		if cur != nil {
			out = append(out, *cur)
		}
		cur = &content.SubtitleSegment{Text: text, StartMs: w.Start, EndMs: w.End}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
