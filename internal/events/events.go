package events

import (
	"context"
	"log"
	"time"
)

const (
	JobCompleted       = "job.completed"
	JobRequeued        = "job.requeued"
	JobFailed          = "job.failed"
	VideoPublished     = "video.published"
	VideoPublishFailed = "video.publish_failed"
)

type Event struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	VideoID    string    `json:"video_id,omitempty"`
	PlatformID string    `json:"platform_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the process log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev Event) error {
	log.Printf("event type=%s job=%s item=%s video=%s msg=%q", ev.Type, ev.JobID, ev.ItemID, ev.VideoID, ev.Message)
	return nil
}

// Emit publishes ev and logs instead of failing the caller when delivery fails.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Printf("event publish failed type=%s err=%v", ev.Type, err)
	}
}
