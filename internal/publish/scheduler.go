package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/events"
	"github.com/suPer8Hu/video-factory/internal/youtube"
)

var (
	ErrAlreadyPublished = errors.New("video already published")
	ErrNoUploader       = errors.New("no uploader configured")
	ErrInvalidSlot      = errors.New("invalid publish time, expected HH:MM")
)

type Uploader interface {
	Upload(ctx context.Context, req youtube.UploadRequest) (platformID, url string, err error)
}

type Config struct {
	Interval time.Duration
	// Pause between two uploads of the same pass.
	Pause     time.Duration
	BatchSize int
	Now       func() time.Time
}

// Scheduler uploads scheduled videos once their time has come.
type Scheduler struct {
	items    *content.Repo
	uploader Uploader
	events   events.Publisher
	cfg      Config
}

func New(items *content.Repo, up Uploader, ev events.Publisher, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if ev == nil {
		ev = events.LogPublisher{}
	}
	return &Scheduler{items: items, uploader: up, events: ev, cfg: cfg}
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Now().UTC()
}

type Result struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Run processes due videos every Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.uploader == nil {
		return ErrNoUploader
	}
	log.Printf("[publish] started interval=%s", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		res, err := s.ProcessDue(ctx)
		if err != nil {
			log.Printf("[publish] pass failed err=%v", err)
		} else if res.Published+res.Failed+res.Skipped > 0 {
			log.Printf("[publish] pass published=%d failed=%d skipped=%d", res.Published, res.Failed, res.Skipped)
		}

		select {
		case <-ctx.Done():
			log.Printf("[publish] stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessDue uploads every scheduled, unpublished video whose time has come.
// A video is only uploaded by the caller that clears its scheduled flag.
// Failures are recorded on the video and are not retried automatically.
func (s *Scheduler) ProcessDue(ctx context.Context) (Result, error) {
	var res Result
	if s.uploader == nil {
		return res, ErrNoUploader
	}

	due, err := s.items.ListDueVideos(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	for i := range due {
		if i > 0 && s.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(s.cfg.Pause):
			}
		}

		v := &due[i]
		claimed, err := s.items.ClaimScheduled(ctx, v.ID)
		if err != nil {
			return res, err
		}
		if !claimed {
			res.Skipped++
			continue
		}
		if err := s.publish(ctx, v); err != nil {
			res.Failed++
			continue
		}
		res.Published++
	}
	return res, nil
}

const unrecordedPrefix = "uploaded as "

// uploadedUnrecorded reports a video whose upload went through but whose
// platform id could not be saved.
func uploadedUnrecorded(v *content.Video) bool {
	return v.PublicationError != nil && strings.HasPrefix(*v.PublicationError, unrecordedPrefix)
}

func (s *Scheduler) publish(ctx context.Context, v *content.Video) error {
	t0 := time.Now()
	id, url, err := s.uploader.Upload(ctx, youtube.UploadRequest{
		FilePath:    v.FilePath,
		Title:       v.Title,
		Description: v.Description,
		Tags:        v.Tags,
	})
	if err != nil {
		msg := content.TruncateMessage(err.Error())
		if merr := s.items.MarkVideoPublishError(ctx, v.ID, msg, s.now()); merr != nil {
			log.Printf("[publish] video=%s record error failed err=%v", v.ID, merr)
		}
		log.Printf("[publish] video=%s upload failed cost=%s err=%v", v.ID, time.Since(t0), err)
		events.Emit(ctx, s.events, events.Event{
			Type:    events.VideoPublishFailed,
			VideoID: v.ID,
			ItemID:  v.IdeaID,
			Message: msg,
		})
		return err
	}

	if err := s.items.MarkVideoPublished(ctx, v.ID, id, url, s.now()); err != nil {
		// the video is live; leave it unscheduled and flag it so nobody publishes it twice
		log.Printf("[publish] video=%s platform_id=%s record failed err=%v", v.ID, id, err)
		msg := content.TruncateMessage(fmt.Sprintf("%s%s (%s) but not recorded: %v", unrecordedPrefix, id, url, err))
		if merr := s.items.MarkVideoPublishError(ctx, v.ID, msg, s.now()); merr != nil {
			log.Printf("[publish] video=%s record error failed err=%v", v.ID, merr)
		}
		events.Emit(ctx, s.events, events.Event{
			Type:       events.VideoPublishFailed,
			VideoID:    v.ID,
			ItemID:     v.IdeaID,
			PlatformID: id,
			Message:    msg,
		})
		return err
	}
	if err := s.items.Transition(ctx, v.IdeaID, content.StatusVideoGenerated, content.StatusUploaded, nil); err != nil {
		log.Printf("[publish] video=%s item=%s status not updated err=%v", v.ID, v.IdeaID, err)
	}

	log.Printf("[publish] video=%s platform_id=%s cost=%s", v.ID, id, time.Since(t0))
	events.Emit(ctx, s.events, events.Event{
		Type:       events.VideoPublished,
		VideoID:    v.ID,
		ItemID:     v.IdeaID,
		PlatformID: id,
	})
	return nil
}

// Schedule sets (or moves) the publish time of a video and clears any
// earlier publication error.
func (s *Scheduler) Schedule(ctx context.Context, videoID string, at time.Time) (*content.Video, error) {
	v, err := s.items.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v.Published() || uploadedUnrecorded(v) {
		return nil, ErrAlreadyPublished
	}
	if err := s.items.ScheduleVideo(ctx, videoID, at); err != nil {
		return nil, err
	}
	return s.items.GetVideo(ctx, videoID)
}

func (s *Scheduler) Unschedule(ctx context.Context, videoID string) (*content.Video, error) {
	v, err := s.items.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v.Published() {
		return nil, ErrAlreadyPublished
	}
	if err := s.items.UnscheduleVideo(ctx, videoID); err != nil {
		return nil, err
	}
	return s.items.GetVideo(ctx, videoID)
}

type Slot struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

const bulkLimit = 500

// BulkSchedule assigns publish slots to unscheduled, unpublished videos in
// creation order. Slots use times in turn and move to the next day once every
// time of the current day is taken. Times are HH:MM in UTC.
func (s *Scheduler) BulkSchedule(ctx context.Context, startDate time.Time, times []string) ([]Slot, error) {
	offsets := make([]time.Duration, 0, len(times))
	for _, t := range times {
		d, err := parseClock(t)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, d)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: no publish times given", ErrInvalidSlot)
	}

	vids, err := s.items.ListSchedulable(ctx, bulkLimit)
	if err != nil {
		return nil, err
	}

	day := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]Slot, 0, len(vids))
	i := 0
	for _, v := range vids {
		if uploadedUnrecorded(&v) {
			continue
		}
		at := day.AddDate(0, 0, i/len(offsets)).Add(offsets[i%len(offsets)])
		i++
		if err := s.items.ScheduleVideo(ctx, v.ID, at); err != nil {
			return out, err
		}
		out = append(out, Slot{VideoID: v.ID, Title: v.Title, ScheduledAt: at})
	}
	return out, nil
}

func parseClock(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

type Status struct {
	content.PublicationCounts
	CheckedAt time.Time `json:"checked_at"`
}

func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	now := s.now()
	counts, err := s.items.CountPublication(ctx, now)
	if err != nil {
		return Status{}, err
	}
	return Status{PublicationCounts: counts, CheckedAt: now}, nil
}
