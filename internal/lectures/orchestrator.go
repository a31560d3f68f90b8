package lectures

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/studyhall/backend/internal/models"
	"github.com/studyhall/backend/internal/outline"
	"github.com/studyhall/backend/internal/stream"
)

// generationStore is the slice of Store the orchestrator needs. Narrow so
// orchestrator tests run against a fake instead of Postgres.
type generationStore interface {
	LectureForGeneration(ctx context.Context, lectureID int64) (title, content string, err error)
	GetSubtopics(ctx context.Context, lectureID int64) ([]models.Subtopic, error)
	CreateSubtopics(ctx context.Context, lectureID int64, candidates []outline.Candidate) ([]models.Subtopic, error)
	UpdateLectureTitle(ctx context.Context, lectureID int64, title string) error
}

type outliner interface {
	Breakdown(ctx context.Context, documentText string) (*outline.Breakdown, error)
	Select(ctx context.Context, candidates []outline.Candidate, n int) []outline.Candidate
}

// Orchestrator drives the breakdown stream for one lecture: outline the
// document, cap it, persist subtopics, then emit them one at a time with a
// short pacing delay so clients render progressively. Every stream ends
// with exactly one done or error event.
type Orchestrator struct {
	store   generationStore
	outline outliner
	pace    time.Duration
}

func NewOrchestrator(store generationStore, gen outliner) *Orchestrator {
	return &Orchestrator{store: store, outline: gen, pace: paceFromEnv()}
}

func paceFromEnv() time.Duration {
	if raw := os.Getenv("SUBTOPIC_PACE_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return 150 * time.Millisecond
}

// Stream runs the breakdown and returns a channel of progress events. The
// channel closes after the terminal event. cached, when non-nil, is a
// pre-computed outline (from PDF vision analysis) used instead of a fresh
// breakdown call.
func (o *Orchestrator) Stream(ctx context.Context, lectureID int64, cached *outline.Breakdown) <-chan stream.Event {
	ch := make(chan stream.Event)
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("WARN: breakdown stream for lecture %d panicked: %v", lectureID, r)
				o.send(ctx, ch, stream.ErrorEvent("generation failed unexpectedly"))
			}
		}()
		o.run(ctx, lectureID, cached, ch)
	}()
	return ch
}

func (o *Orchestrator) run(ctx context.Context, lectureID int64, cached *outline.Breakdown, ch chan<- stream.Event) {
	existing, err := o.store.GetSubtopics(ctx, lectureID)
	if err != nil {
		o.send(ctx, ch, stream.ErrorEvent("could not load lecture"))
		return
	}

	// A reconnecting client catches up on everything already persisted and
	// the stream ends; the breakdown never runs twice for one lecture.
	if len(existing) > 0 {
		title, _, err := o.store.LectureForGeneration(ctx, lectureID)
		if err == nil && title != models.PlaceholderTitle {
			if !o.send(ctx, ch, stream.TitleEvent(title)) {
				return
			}
		}
		for i := range existing {
			if !o.send(ctx, ch, stream.SubtopicEvent(&existing[i])) {
				return
			}
		}
		o.send(ctx, ch, stream.DoneEvent())
		return
	}

	title, content, err := o.store.LectureForGeneration(ctx, lectureID)
	if err != nil {
		o.send(ctx, ch, stream.ErrorEvent("could not load lecture"))
		return
	}

	bd := cached
	if bd == nil {
		bd, err = o.outline.Breakdown(ctx, content)
		if err != nil {
			log.Printf("WARN: breakdown for lecture %d failed: %v", lectureID, err)
			o.send(ctx, ch, stream.ErrorEvent("could not analyze the document"))
			return
		}
	}

	candidates := bd.Subtopics
	if len(candidates) > models.MaxSubtopics {
		candidates = o.outline.Select(ctx, candidates, models.MaxSubtopics)
	}

	// Persist everything before the first emission so a dropped connection
	// never loses subtopics the client briefly saw.
	created, err := o.store.CreateSubtopics(ctx, lectureID, candidates)
	if err != nil {
		log.Printf("WARN: persisting subtopics for lecture %d: %v", lectureID, err)
		o.send(ctx, ch, stream.ErrorEvent("could not save the lecture outline"))
		return
	}

	if bd.Topic != "" && title == models.PlaceholderTitle {
		if err := o.store.UpdateLectureTitle(ctx, lectureID, bd.Topic); err != nil {
			log.Printf("WARN: updating title for lecture %d: %v", lectureID, err)
		} else if !o.send(ctx, ch, stream.TitleEvent(bd.Topic)) {
			return
		}
	}

	for i := range created {
		if i > 0 && o.pace > 0 {
			select {
			case <-time.After(o.pace):
			case <-ctx.Done():
				return
			}
		}
		if !o.send(ctx, ch, stream.SubtopicEvent(&created[i])) {
			return
		}
	}

	o.send(ctx, ch, stream.DoneEvent())
}

func (o *Orchestrator) send(ctx context.Context, ch chan<- stream.Event, e stream.Event) bool {
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
