package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/video-factory/internal/credentials"
)

const (
	DefaultVoiceID      = "nPczCjzI2devNBz1zQrb"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"

	// bitrate of DefaultOutputFormat in kbit/s; used to derive clip length
	outputKbps = 128
)

// ElevenLabs synthesizes narration through the ElevenLabs text-to-speech API.
// The API key comes from the credential passed to each call.
type ElevenLabs struct {
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Client       *http.Client
}

func NewElevenLabs(baseURL, voiceID, modelID string) *ElevenLabs {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &ElevenLabs{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		VoiceID:      voiceID,
		ModelID:      modelID,
		OutputFormat: DefaultOutputFormat,
		Client:       &http.Client{Timeout: 2 * time.Minute},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsReq struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// APIError is a non-2xx answer from the API. Error() spells out the status
// code of the detail so quota failures read as "quota exceeded".
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	code := strings.ReplaceAll(e.Code, "_", " ")
	if code == "" {
		return fmt.Sprintf("elevenlabs: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("elevenlabs: status %d: %s (%s)", e.StatusCode, e.Message, code)
}

// Synthesize returns mp3 bytes for text and their duration in milliseconds.
func (c *ElevenLabs) Synthesize(ctx context.Context, text string, cred credentials.Credential) ([]byte, int64, error) {
	if c.Client == nil {
		return nil, 0, errors.New("elevenlabs: http client is nil")
	}
	if strings.TrimSpace(text) == "" {
		return nil, 0, errors.New("elevenlabs: empty text")
	}

	b, err := json.Marshal(ttsReq{
		Text:    text,
		ModelID: c.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.25,
			SimilarityBoost: 0.85,
			Style:           0.70,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, 0, err
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.BaseURL, url.PathEscape(c.VoiceID), url.QueryEscape(c.OutputFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", cred.Key)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, decodeAPIError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, 0, errors.New("elevenlabs: empty audio")
	}
	return audio, EstimateDurationMs(len(audio)), nil
}

// EstimateDurationMs derives clip length from size at the constant output bitrate.
func EstimateDurationMs(size int) int64 {
	return int64(size) * 8 / outputKbps
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Detail, &detail); err == nil {
			apiErr.Code = detail.Status
			apiErr.Message = detail.Message
		} else {
			var s string
			if json.Unmarshal(body.Detail, &s) == nil {
				apiErr.Message = s
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
