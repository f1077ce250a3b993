package s3

import "testing"

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"/media/x/final_video.mp4": "video/mp4",
		"/media/x/COMBINED.MP3":    "audio/mpeg",
		"/media/x/subs.srt":        "application/octet-stream",
	}
	for in, want := range cases {
		if got := contentType(in); got != want {
			t.Fatalf("contentType(%q) = %q want %q", in, got, want)
		}
	}
}

func TestNew_BuildsClient(t *testing.T) {
	s, err := New("localhost:9000", "minio", "minio123", "videos", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Client == nil || s.Bucket != "videos" {
		t.Fatalf("unexpected store: %+v", s)
	}
}
