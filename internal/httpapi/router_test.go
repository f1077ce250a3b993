package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/auth"
	"github.com/suPer8Hu/video-factory/internal/config"
	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/db"
	"github.com/suPer8Hu/video-factory/internal/httpapi/handlers"
	"github.com/suPer8Hu/video-factory/internal/httpapi/middleware"
	"github.com/suPer8Hu/video-factory/internal/publish"
	"github.com/suPer8Hu/video-factory/internal/queue"
	"github.com/suPer8Hu/video-factory/internal/youtube"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stubUploader struct{ n int }

func (u *stubUploader) Upload(ctx context.Context, req youtube.UploadRequest) (string, string, error) {
	u.n++
	return "yt1", youtube.WatchURL("yt1"), nil
}

type countingLimiter struct{ hits int }

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	l.hits++
	return l.hits <= limit, max(limit-l.hits, 0), window, nil
}

type testEnv struct {
	router *gin.Engine
	items  *content.Repo
	queue  *queue.Queue
}

func newTestEnv(t *testing.T, cfg config.Config, limiter middleware.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	items := content.NewRepo(gdb)
	q := queue.New(gdb, queue.Options{MaxConcurrent: 2, DefaultMaxRetries: 1})
	sched := publish.New(items, &stubUploader{}, nil, publish.Config{})
	h := handlers.NewHandler(q, items, sched)
	return &testEnv{router: NewRouter(h, cfg, limiter), items: items, queue: q}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (e *testEnv) seedIdea(t *testing.T, status content.Status) *content.Idea {
	t.Helper()
	idea := &content.Idea{Title: "t", VideoType: content.VideoTypeShort, DurationSeconds: 30, Status: status}
	if err := e.items.CreateIdea(context.Background(), idea); err != nil {
		t.Fatalf("create idea: %v", err)
	}
	return idea
}

func TestJobs_EnqueueIsIdempotent(t *testing.T) {
	e := newTestEnv(t, config.Config{}, nil)
	idea := e.seedIdea(t, content.StatusValidated)

	w, env := e.do(t, http.MethodPost, "/jobs/"+idea.ID, `{"priority":5}`)
	if w.Code != http.StatusCreated || env.Code != 0 {
		t.Fatalf("unexpected first enqueue: %d %s", w.Code, w.Body.String())
	}
	var first struct {
		Job      queue.Job `json:"job"`
		Created  bool      `json:"created"`
		Position *int      `json:"queue_position"`
	}
	_ = json.Unmarshal(env.Data, &first)
	if !first.Created || first.Job.Priority != 5 || first.Position == nil || *first.Position != 0 {
		t.Fatalf("unexpected payload: %s", env.Data)
	}

	w, env = e.do(t, http.MethodPost, "/jobs/"+idea.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat enqueue, got %d", w.Code)
	}
	var second struct {
		Job     queue.Job `json:"job"`
		Created bool      `json:"created"`
	}
	_ = json.Unmarshal(env.Data, &second)
	if second.Created || second.Job.ID != first.Job.ID {
		t.Fatalf("expected the same job back: %s", env.Data)
	}
}

func TestJobs_ErrorMapping(t *testing.T) {
	e := newTestEnv(t, config.Config{}, nil)
	pending := e.seedIdea(t, content.StatusPending)
	validated := e.seedIdea(t, content.StatusValidated)

	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/jobs/missing", "", http.StatusNotFound},
		{http.MethodGet, "/jobs/missing", "", http.StatusNotFound},
		{http.MethodPost, "/jobs/" + pending.ID, "", http.StatusConflict},
		{http.MethodPost, "/jobs/" + validated.ID, `{"start_from":"nope"}`, http.StatusBadRequest},
		{http.MethodGet, "/jobs/" + validated.ID, "", http.StatusNotFound},
		{http.MethodPost, "/jobs/" + validated.ID + "/cancel", "", http.StatusNotFound},
		{http.MethodGet, "/queue/jobs?status=weird", "", http.StatusBadRequest},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		w, _ := e.do(t, tc.method, tc.path, tc.body)
		if w.Code != tc.status {
			t.Fatalf("%s %s: got %d want %d body=%s", tc.method, tc.path, w.Code, tc.status, w.Body.String())
		}
	}
}

func TestJobs_StatusCancelAndStats(t *testing.T) {
	e := newTestEnv(t, config.Config{}, nil)
	a := e.seedIdea(t, content.StatusValidated)
	b := e.seedIdea(t, content.StatusValidated)
	e.do(t, http.MethodPost, "/jobs/"+a.ID, "")
	e.do(t, http.MethodPost, "/jobs/"+b.ID, "")

	w, env := e.do(t, http.MethodGet, "/jobs/"+b.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get job: %d", w.Code)
	}
	var st struct {
		Job      queue.Job `json:"job"`
		Position *int      `json:"queue_position"`
		Item     struct {
			Status content.Status `json:"status"`
		} `json:"item"`
	}
	_ = json.Unmarshal(env.Data, &st)
	if st.Position == nil || *st.Position != 1 || st.Item.Status != content.StatusQueued {
		t.Fatalf("unexpected job status payload: %s", env.Data)
	}

	w, _ = e.do(t, http.MethodPost, "/jobs/"+b.ID+"/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	w, _ = e.do(t, http.MethodPost, "/jobs/"+b.ID+"/cancel", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel should find no active job, got %d", w.Code)
	}

	_, env = e.do(t, http.MethodGet, "/queue/stats", "")
	var stats queue.Stats
	_ = json.Unmarshal(env.Data, &stats)
	if stats.Queued != 1 || stats.MaxConcurrent != 2 || stats.AvailableSlots != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	_, env = e.do(t, http.MethodGet, "/queue/jobs?status=cancelled", "")
	var list struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if list.Count != 1 {
		t.Fatalf("expected one cancelled job: %s", env.Data)
	}
}

func TestIdeas_Lifecycle(t *testing.T) {
	e := newTestEnv(t, config.Config{}, nil)

	w, env := e.do(t, http.MethodPost, "/ideas", `{"title":"Deep sea","keywords":["ocean"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var idea content.Idea
	_ = json.Unmarshal(env.Data, &idea)
	if idea.Status != content.StatusPending {
		t.Fatalf("expected pending, got %s", idea.Status)
	}

	w, _ = e.do(t, http.MethodPatch, "/ideas/"+idea.ID+"/validate", `{"video_type":"vertical","duration_seconds":30}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad video type, got %d", w.Code)
	}

	w, env = e.do(t, http.MethodPatch, "/ideas/"+idea.ID+"/validate", `{"video_type":"short","duration_seconds":45}`)
	if w.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", w.Code, w.Body.String())
	}
	got, _ := e.items.GetIdea(context.Background(), idea.ID)
	if got.Status != content.StatusValidated || got.DurationSeconds != 45 || got.ValidatedAt == nil || len(got.Keywords) != 1 {
		t.Fatalf("unexpected validated idea: %+v", got)
	}

	// validated again: not allowed by the transition table
	w, _ = e.do(t, http.MethodPatch, "/ideas/"+idea.ID+"/validate", `{}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w, _ = e.do(t, http.MethodPatch, "/ideas/"+idea.ID+"/reject", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reject: %d", w.Code)
	}
	w, _ = e.do(t, http.MethodPost, "/jobs/"+idea.ID, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("rejected idea must not be enqueueable, got %d", w.Code)
	}
	w, _ = e.do(t, http.MethodGet, "/ideas/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestVideos_ScheduleAndPublish(t *testing.T) {
	e := newTestEnv(t, config.Config{}, nil)
	ctx := context.Background()
	idea := e.seedIdea(t, content.StatusVideoGenerated)
	v := &content.Video{IdeaID: idea.ID, Title: "t", FilePath: "/v.mp4"}
	if err := e.items.SaveRenderedVideo(ctx, v); err != nil {
		t.Fatalf("save video: %v", err)
	}

	w, _ := e.do(t, http.MethodPost, "/videos/"+v.ID+"/schedule", `{"publish_at":"tomorrow"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w, _ = e.do(t, http.MethodPost, "/videos/missing/schedule", `{"publish_at":"2026-01-01T10:00:00Z"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	past := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	w, _ = e.do(t, http.MethodPost, "/videos/"+v.ID+"/schedule", `{"publish_at":"`+past+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("schedule: %d %s", w.Code, w.Body.String())
	}

	_, env := e.do(t, http.MethodGet, "/publication/status", "")
	var st publish.Status
	_ = json.Unmarshal(env.Data, &st)
	if st.PendingPublication != 1 {
		t.Fatalf("expected one due video: %s", env.Data)
	}

	w, env = e.do(t, http.MethodPost, "/publication/process", "")
	var res publish.Result
	_ = json.Unmarshal(env.Data, &res)
	if w.Code != http.StatusOK || res.Published != 1 {
		t.Fatalf("process: %d %s", w.Code, env.Data)
	}

	w, _ = e.do(t, http.MethodPost, "/videos/"+v.ID+"/schedule", `{"publish_at":"`+past+`"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("published video must not be rescheduled, got %d", w.Code)
	}
	w, _ = e.do(t, http.MethodDelete, "/videos/"+v.ID+"/schedule", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("published video must not be unscheduled, got %d", w.Code)
	}
}

func TestVideos_BulkSchedule(t *testing.T) {
	e := newTestEnv(t, config.Config{}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		idea := e.seedIdea(t, content.StatusVideoGenerated)
		if err := e.items.SaveRenderedVideo(ctx, &content.Video{IdeaID: idea.ID, Title: "v"}); err != nil {
			t.Fatalf("save video: %v", err)
		}
	}

	w, _ := e.do(t, http.MethodPost, "/videos/schedule/bulk", `{"start_date":"2026-05-01","publish_times":["10:99"]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad time, got %d", w.Code)
	}

	w, env := e.do(t, http.MethodPost, "/videos/schedule/bulk", `{"start_date":"2026-05-01","publish_times":["10:00","20:00"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("bulk: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(env.Data, &out)
	if out.Count != 3 {
		t.Fatalf("expected 3 scheduled videos: %s", env.Data)
	}
}

func TestAuth_RequiredWhenSecretSet(t *testing.T) {
	e := newTestEnv(t, config.Config{JWTSecret: "s3cret"}, nil)

	w, _ := e.do(t, http.MethodGet, "/queue/stats", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	w, _ = e.do(t, http.MethodGet, "/queue/stats", "", "Authorization", "Bearer junk")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}

	tok, _ := auth.SignJWT("ops", "s3cret", time.Hour)
	w, _ = e.do(t, http.MethodGet, "/queue/stats", "", "Authorization", "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	w, _ = e.do(t, http.MethodGet, "/ping", "")
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("ping should be public and carry a request id")
	}
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{}
	e := newTestEnv(t, config.Config{RateLimitPerMinute: 2}, lim)

	for i := 0; i < 2; i++ {
		if w, _ := e.do(t, http.MethodGet, "/queue/stats", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}
	w, env := e.do(t, http.MethodGet, "/queue/stats", "")
	if w.Code != http.StatusTooManyRequests || env.Code != 42900 {
		t.Fatalf("expected 429, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected remaining header %q", w.Header().Get("X-RateLimit-Remaining"))
	}
}
