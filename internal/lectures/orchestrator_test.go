package lectures

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/studyhall/backend/internal/models"
	"github.com/studyhall/backend/internal/outline"
	"github.com/studyhall/backend/internal/stream"
)

// fakeStore is an in-memory generationStore/Storage for pipeline tests.
type fakeStore struct {
	mu         sync.Mutex
	title      string
	content    string
	subtopics  []models.Subtopic
	questions  []models.QuizQuestion
	nextID     int64
	titleSet   string
	explSet    map[int64]string
	failCreate bool
}

func newFakeStore(title, content string) *fakeStore {
	return &fakeStore{title: title, content: content, explSet: make(map[int64]string)}
}

func (f *fakeStore) LectureForGeneration(ctx context.Context, lectureID int64) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, f.content, nil
}

func (f *fakeStore) GetSubtopics(ctx context.Context, lectureID int64) ([]models.Subtopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Subtopic, len(f.subtopics))
	copy(out, f.subtopics)
	return out, nil
}

func (f *fakeStore) CreateSubtopics(ctx context.Context, lectureID int64, candidates []outline.Candidate) ([]models.Subtopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, fmt.Errorf("insert failed")
	}
	for i, c := range candidates {
		f.nextID++
		f.subtopics = append(f.subtopics, models.Subtopic{
			ID: f.nextID, LectureID: lectureID, Order: i,
			Title: c.Title, Importance: c.Importance, Difficulty: c.Difficulty, Overview: c.Overview,
		})
	}
	out := make([]models.Subtopic, len(f.subtopics))
	copy(out, f.subtopics)
	return out, nil
}

func (f *fakeStore) UpdateLectureTitle(ctx context.Context, lectureID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	f.titleSet = title
	return nil
}

// fakeOutliner returns a canned breakdown or error.
type fakeOutliner struct {
	breakdown *outline.Breakdown
	err       error
	calls     int
}

func (f *fakeOutliner) Breakdown(ctx context.Context, documentText string) (*outline.Breakdown, error) {
	f.calls++
	return f.breakdown, f.err
}

func (f *fakeOutliner) Select(ctx context.Context, candidates []outline.Candidate, n int) []outline.Candidate {
	if len(candidates) <= n {
		return candidates
	}
	return candidates[:n]
}

func testBreakdown(n int) *outline.Breakdown {
	bd := &outline.Breakdown{Topic: "Cell Biology"}
	for i := 0; i < n; i++ {
		bd.Subtopics = append(bd.Subtopics, outline.Candidate{
			Title:      fmt.Sprintf("Part %d", i+1),
			Importance: models.ImportanceHigh,
			Difficulty: 2,
			Overview:   fmt.Sprintf("Overview of part %d", i+1),
		})
	}
	return bd
}

func collect(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var events []stream.Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func newTestOrchestrator(store generationStore, gen outliner) *Orchestrator {
	o := NewOrchestrator(store, gen)
	o.pace = 0
	return o
}

func TestStreamEmitsOrderedSubtopicsThenDone(t *testing.T) {
	store := newFakeStore(models.PlaceholderTitle, "document text")
	o := newTestOrchestrator(store, &fakeOutliner{breakdown: testBreakdown(3)})

	events := collect(t, o.Stream(context.Background(), 1, nil))

	if len(events) != 5 {
		t.Fatalf("got %d events, want title + 3 subtopics + done", len(events))
	}
	if events[0].Type != stream.EventTitle || events[0].Title != "Cell Biology" {
		t.Errorf("first event should carry the resolved title: %+v", events[0])
	}
	for i := 1; i <= 3; i++ {
		e := events[i]
		if e.Type != stream.EventSubtopic || e.Subtopic == nil {
			t.Fatalf("event %d not a subtopic: %+v", i, e)
		}
		if e.Subtopic.Order != i-1 {
			t.Errorf("subtopic %d out of order: got order %d", i, e.Subtopic.Order)
		}
	}
	if events[4].Type != stream.EventDone {
		t.Errorf("last event = %q, want done", events[4].Type)
	}
	if store.titleSet != "Cell Biology" {
		t.Error("resolved title not persisted")
	}
}

func TestStreamSingleTerminalEvent(t *testing.T) {
	store := newFakeStore(models.PlaceholderTitle, "document text")
	o := newTestOrchestrator(store, &fakeOutliner{breakdown: testBreakdown(2)})

	events := collect(t, o.Stream(context.Background(), 1, nil))

	terminals := 0
	for i, e := range events {
		if e.Type == stream.EventDone || e.Type == stream.EventError {
			terminals++
			if i != len(events)-1 {
				t.Error("terminal event before end of stream")
			}
		}
	}
	if terminals != 1 {
		t.Errorf("got %d terminal events, want exactly 1", terminals)
	}
}

func TestStreamBreakdownErrorTerminates(t *testing.T) {
	store := newFakeStore(models.PlaceholderTitle, "document text")
	o := newTestOrchestrator(store, &fakeOutliner{err: fmt.Errorf("model unreachable")})

	events := collect(t, o.Stream(context.Background(), 1, nil))

	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("want a single error event, got %+v", events)
	}
	if len(store.subtopics) != 0 {
		t.Error("nothing should be persisted when the breakdown fails")
	}
}

func TestStreamPersistFailureTerminates(t *testing.T) {
	store := newFakeStore(models.PlaceholderTitle, "document text")
	store.failCreate = true
	o := newTestOrchestrator(store, &fakeOutliner{breakdown: testBreakdown(2)})

	events := collect(t, o.Stream(context.Background(), 1, nil))
	last := events[len(events)-1]
	if last.Type != stream.EventError {
		t.Errorf("persist failure should end with an error event, got %+v", events)
	}
}

func TestStreamCapsOversizedBreakdown(t *testing.T) {
	store := newFakeStore(models.PlaceholderTitle, "document text")
	o := newTestOrchestrator(store, &fakeOutliner{breakdown: testBreakdown(22)})

	events := collect(t, o.Stream(context.Background(), 1, nil))

	subtopics := 0
	for _, e := range events {
		if e.Type == stream.EventSubtopic {
			subtopics++
		}
	}
	if subtopics != models.MaxSubtopics {
		t.Errorf("got %d subtopics, want cap of %d", subtopics, models.MaxSubtopics)
	}
}

func TestStreamCatchUpReplaysPersisted(t *testing.T) {
	store := newFakeStore("Cell Biology", "document text")
	gen := &fakeOutliner{breakdown: testBreakdown(2)}
	o := newTestOrchestrator(store, gen)

	first := collect(t, o.Stream(context.Background(), 1, nil))
	second := collect(t, o.Stream(context.Background(), 1, nil))

	if gen.calls != 1 {
		t.Fatalf("breakdown ran %d times, want once", gen.calls)
	}
	subtopicsOf := func(events []stream.Event) []string {
		var titles []string
		for _, e := range events {
			if e.Type == stream.EventSubtopic {
				titles = append(titles, e.Subtopic.Title)
			}
		}
		return titles
	}
	a, b := subtopicsOf(first), subtopicsOf(second)
	if len(a) != len(b) {
		t.Fatalf("catch-up emitted %d subtopics, original %d", len(b), len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("catch-up order diverges at %d: %q vs %q", i, a[i], b[i])
		}
	}
	if second[len(second)-1].Type != stream.EventDone {
		t.Error("catch-up stream should end with done")
	}
}

func TestStreamUsesCachedVisionOutline(t *testing.T) {
	store := newFakeStore(models.PlaceholderTitle, "overview text")
	gen := &fakeOutliner{err: fmt.Errorf("should not be called")}
	o := newTestOrchestrator(store, gen)

	events := collect(t, o.Stream(context.Background(), 1, testBreakdown(2)))

	if gen.calls != 0 {
		t.Error("cached outline should bypass the breakdown call")
	}
	if events[len(events)-1].Type != stream.EventDone {
		t.Errorf("expected done, got %+v", events[len(events)-1])
	}
}

func TestStreamKeepsExistingTitle(t *testing.T) {
	store := newFakeStore("My Custom Title", "document text")
	o := newTestOrchestrator(store, &fakeOutliner{breakdown: testBreakdown(1)})

	events := collect(t, o.Stream(context.Background(), 1, nil))
	for _, e := range events {
		if e.Type == stream.EventTitle {
			t.Errorf("non-placeholder title must not be replaced: %+v", e)
		}
	}
	if store.titleSet != "" {
		t.Error("title should not be rewritten")
	}
}
