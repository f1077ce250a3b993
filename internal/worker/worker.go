package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/credentials"
	"github.com/suPer8Hu/video-factory/internal/events"
	"github.com/suPer8Hu/video-factory/internal/media"
	"github.com/suPer8Hu/video-factory/internal/queue"
)

type ScriptWriter interface {
	WriteScript(ctx context.Context, idea *content.Idea) (content.ScriptDraft, error)
	AdaptScript(ctx context.Context, script string) (adapted string, phrases []string, err error)
}

type Narrator interface {
	Synthesize(ctx context.Context, text string, cred credentials.Credential) (audio []byte, durationMs int64, err error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]content.SubtitleSegment, error)
}

type Renderer interface {
	JoinAudio(ctx context.Context, inputs []string, out string) error
	Render(ctx context.Context, req media.RenderRequest) (string, error)
}

// ArtifactStore is optional; rendered videos are archived when set.
type ArtifactStore interface {
	PutFile(ctx context.Context, key, path string) (string, error)
}

type Deps struct {
	Queue       *queue.Queue
	Items       *content.Repo
	Credentials *credentials.Pool
	Scripts     ScriptWriter
	Narrator    Narrator
	Transcriber Transcriber
	Renderer    Renderer
	Artifacts   ArtifactStore
	Events      events.Publisher
}

type Config struct {
	PollInterval time.Duration
	// Processing jobs older than this are treated as abandoned. 0 disables recovery.
	StaleAfter time.Duration
	// Idle ticks between stale sweeps.
	RecoverEvery int
	MediaRoot    string
}

type TickResult int

const (
	TickIdle TickResult = iota
	TickBusy
	TickClaimed
)

type Worker struct {
	deps Deps
	cfg  Config

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(deps Deps, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RecoverEvery <= 0 {
		cfg.RecoverEvery = 12
	}
	if cfg.MediaRoot == "" {
		cfg.MediaRoot = "media"
	}
	if deps.Events == nil {
		deps.Events = events.LogPublisher{}
	}
	return &Worker{deps: deps, cfg: cfg, inflight: make(map[string]struct{})}
}

// Run polls until ctx is cancelled, then waits for jobs already running.
// A job that has started always runs to the end; it is not tied to ctx.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("[worker] started max_concurrent=%d poll=%s", w.deps.Queue.MaxConcurrent(), w.cfg.PollInterval)

	if w.cfg.StaleAfter > 0 {
		if n, err := w.RecoverStale(ctx); err != nil {
			log.Printf("[worker] stale recovery failed err=%v", err)
		} else if n > 0 {
			log.Printf("[worker] recovered %d stale job(s)", n)
		}
	}

	idle := 0
	for {
		res, err := w.Tick(ctx)
		if err != nil {
			log.Printf("[worker] tick failed err=%v", err)
		}

		if res == TickClaimed {
			// a free slot may remain; look again right away
			select {
			case <-ctx.Done():
				return w.shutdown()
			default:
				continue
			}
		}

		idle++
		if w.cfg.StaleAfter > 0 && idle%w.cfg.RecoverEvery == 0 {
			if _, err := w.RecoverStale(ctx); err != nil {
				log.Printf("[worker] stale recovery failed err=%v", err)
			}
		}

		select {
		case <-ctx.Done():
			return w.shutdown()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) shutdown() error {
	log.Printf("[worker] shutting down, waiting for running jobs")
	w.wg.Wait()
	return nil
}

// Tick makes one claim attempt. A claimed job runs in its own goroutine.
func (w *Worker) Tick(ctx context.Context) (TickResult, error) {
	ok, err := w.deps.Queue.CanProcessMore(ctx)
	if err != nil {
		return TickIdle, err
	}
	if !ok {
		return TickBusy, nil
	}

	job, err := w.deps.Queue.ClaimNext(ctx)
	if err != nil {
		return TickIdle, err
	}
	if job == nil {
		return TickIdle, nil
	}

	w.track(job.ID, true)
	w.wg.Add(1)
	jobCtx := context.WithoutCancel(ctx)
	go func() {
		defer w.wg.Done()
		defer w.track(job.ID, false)
		_ = w.ProcessJob(jobCtx, job)
	}()
	return TickClaimed, nil
}

// Wait blocks until every job started by Tick has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) track(jobID string, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.inflight[jobID] = struct{}{}
	} else {
		delete(w.inflight, jobID)
	}
}

func (w *Worker) running(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[jobID]
	return ok
}

// ProcessJob runs the stages the item still needs, starting after its last
// successful step, then completes or fails the job.
func (w *Worker) ProcessJob(ctx context.Context, job *queue.Job) error {
	start := time.Now()

	if held, err := w.deps.Queue.Holds(ctx, job); err == nil && !held {
		return w.dropSuperseded(job, "start")
	}

	idea, err := w.deps.Items.GetIdea(ctx, job.ItemID)
	if err != nil {
		return w.failJob(ctx, job, nil, fmt.Errorf("load item: %w", err))
	}

	stages := content.RemainingStages(idea.LastSuccessfulStep)
	if len(stages) == 0 {
		// already rendered: nothing to redo
		if idea.Status == content.StatusError {
			if err := w.deps.Items.Advance(ctx, idea, content.StatusQueued, nil); err != nil {
				return w.failJob(ctx, job, idea, err)
			}
		}
		if idea.Status != content.StatusVideoGenerated {
			if err := w.deps.Items.Advance(ctx, idea, content.StatusVideoGenerated, map[string]any{"error_message": ""}); err != nil {
				return w.failJob(ctx, job, idea, err)
			}
		}
		return w.completeJob(ctx, job, idea, start)
	}

	if err := w.deps.Items.Advance(ctx, idea, content.StatusProcessing, map[string]any{"error_message": ""}); err != nil {
		return w.failJob(ctx, job, idea, err)
	}

	log.Printf("[worker] job=%s item=%s attempt=%d/%d stages=%v",
		job.ID, idea.ID, job.RetryCount+1, job.MaxRetries, stages)

	for _, st := range stages {
		if held, err := w.deps.Queue.Holds(ctx, job); err == nil && !held {
			return w.dropSuperseded(job, st)
		}
		t0 := time.Now()
		if err := w.runStage(ctx, idea, st); err != nil {
			return w.failJob(ctx, job, idea, fmt.Errorf("%s stage: %w", st, err))
		}
		log.Printf("[worker] job=%s item=%s stage=%s done cost=%s", job.ID, idea.ID, st, time.Since(t0))
	}

	return w.completeJob(ctx, job, idea, start)
}

func (w *Worker) runStage(ctx context.Context, idea *content.Idea, st content.Stage) error {
	if err := w.deps.Items.Advance(ctx, idea, st.Generating(), nil); err != nil {
		return err
	}

	var err error
	switch st {
	case content.StageScript:
		err = w.generateScript(ctx, idea)
	case content.StageAdapt:
		err = w.adaptScript(ctx, idea)
	case content.StageAudio:
		err = w.generateAudio(ctx, idea)
	case content.StageVideo:
		err = w.generateVideo(ctx, idea)
	default:
		err = fmt.Errorf("unknown stage %q", st)
	}
	if err != nil {
		return err
	}
	return w.deps.Items.CompleteStage(ctx, idea, st)
}

func (w *Worker) completeJob(ctx context.Context, job *queue.Job, idea *content.Idea, start time.Time) error {
	if err := w.deps.Queue.Complete(ctx, job); err != nil {
		if errors.Is(err, queue.ErrAttemptSuperseded) {
			return w.dropSuperseded(job, "complete")
		}
		log.Printf("[worker] job=%s complete failed err=%v", job.ID, err)
		return err
	}
	log.Printf("[worker] job=%s item=%s completed status=%s total=%s", job.ID, idea.ID, idea.Status, time.Since(start))
	events.Emit(ctx, w.deps.Events, events.Event{
		Type:   events.JobCompleted,
		JobID:  job.ID,
		ItemID: idea.ID,
	})
	return nil
}

// failJob marks the item as errored (keeping its last successful step) and
// spends one attempt of the job's retry budget.
func (w *Worker) failJob(ctx context.Context, job *queue.Job, idea *content.Idea, cause error) error {
	msg := content.TruncateMessage(cause.Error())

	// the item belongs to whichever attempt holds the job now
	if held, err := w.deps.Queue.Holds(ctx, job); err == nil && !held {
		_ = w.dropSuperseded(job, "fail")
		return errors.Join(cause, queue.ErrAttemptSuperseded)
	}

	if idea != nil && content.CanTransition(idea.Status, content.StatusError) {
		if err := w.deps.Items.MarkError(ctx, idea, msg); err != nil {
			log.Printf("[worker] job=%s item=%s mark error failed err=%v", job.ID, idea.ID, err)
		}
	}

	failed, err := w.deps.Queue.Fail(ctx, job, msg)
	if err != nil {
		log.Printf("[worker] job=%s fail bookkeeping failed err=%v", job.ID, err)
		return errors.Join(cause, err)
	}

	evType := events.JobRequeued
	if failed.Status == queue.JobFailed {
		evType = events.JobFailed
	}
	log.Printf("[worker] job=%s item=%s failed retry=%d/%d status=%s err=%v",
		job.ID, job.ItemID, failed.RetryCount, failed.MaxRetries, failed.Status, cause)
	events.Emit(ctx, w.deps.Events, events.Event{
		Type:    evType,
		JobID:   job.ID,
		ItemID:  job.ItemID,
		Message: msg,
	})
	return cause
}

func (w *Worker) dropSuperseded(job *queue.Job, at any) error {
	log.Printf("[worker] job=%s item=%s attempt superseded at=%v, dropping result", job.ID, job.ItemID, at)
	return queue.ErrAttemptSuperseded
}

// RecoverStale fails processing jobs that outlived StaleAfter and are not
// running in this process. They go through the normal retry path.
func (w *Worker) RecoverStale(ctx context.Context) (int, error) {
	if w.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	jobs, err := w.deps.Queue.ListStale(ctx, w.cfg.StaleAfter)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range jobs {
		job := &jobs[i]
		if w.running(job.ID) {
			continue
		}
		idea, err := w.deps.Items.GetIdea(ctx, job.ItemID)
		if err != nil {
			idea = nil
		}
		err = w.failJob(ctx, job, idea, fmt.Errorf("abandoned: processing for longer than %s", w.cfg.StaleAfter))
		if errors.Is(err, queue.ErrAttemptSuperseded) {
			continue
		}
		n++
	}
	return n, nil
}
