package youtube

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

type Config struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	PrivacyStatus string
	CategoryID    string
	Language      string
}

type UploadRequest struct {
	FilePath    string
	Title       string
	Description string
	Tags        []string
}

// Uploader publishes rendered videos through the YouTube Data API v3.
type Uploader struct {
	cfg Config
}

var ErrNotConfigured = errors.New("youtube: client id, secret and refresh token are required")

func New(cfg Config) (*Uploader, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, ErrNotConfigured
	}
	if cfg.PrivacyStatus == "" {
		cfg.PrivacyStatus = "public"
	}
	if cfg.CategoryID == "" {
		cfg.CategoryID = "27" // Education
	}
	return &Uploader{cfg: cfg}, nil
}

// Upload sends the file and returns the platform video id and watch url.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (string, string, error) {
	svc, err := yt.NewService(ctx, option.WithHTTPClient(u.httpClient(ctx)))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	f, err := os.Open(req.FilePath)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:                truncate(req.Title, 100),
			Description:          truncate(req.Description, 5000),
			Tags:                 req.Tags,
			CategoryId:           u.cfg.CategoryID,
			DefaultLanguage:      u.cfg.Language,
			DefaultAudioLanguage: u.cfg.Language,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           u.cfg.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
		},
	}

	if fi, err := f.Stat(); err == nil {
		log.Printf("[upload] title=%q size=%.1fMB", req.Title, float64(fi.Size())/1024/1024)
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}
	return uploaded.Id, WatchURL(uploaded.Id), nil
}

// httpClient refreshes an access token from the stored refresh token on first use.
func (u *Uploader) httpClient(ctx context.Context) *http.Client {
	conf := &oauth2.Config{
		ClientID:     u.cfg.ClientID,
		ClientSecret: u.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{yt.YoutubeUploadScope, yt.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: u.cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.Client(ctx, token)
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
