package lectures

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studyhall/backend/internal/llm"
	"github.com/studyhall/backend/internal/models"
	"github.com/studyhall/backend/internal/outline"
	"github.com/studyhall/backend/internal/quiz"
	"github.com/studyhall/backend/internal/section"
)

// Remaining Storage methods for fakeStore (the generation half lives in
// orchestrator_test.go).

func (f *fakeStore) CreateLecture(ctx context.Context, ownerID int64, title, content string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	f.content = content
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) GetLecture(ctx context.Context, lectureID, ownerID int64) (*models.Lecture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.Lecture{ID: lectureID, OwnerID: ownerID, Title: f.title, Subtopics: f.subtopics}, nil
}

func (f *fakeStore) ListLectures(ctx context.Context, ownerID int64) ([]models.LectureSummary, error) {
	return nil, nil
}

func (f *fakeStore) GetSubtopic(ctx context.Context, subtopicID int64) (*models.Subtopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.subtopics {
		if f.subtopics[i].ID == subtopicID {
			st := f.subtopics[i]
			if text, ok := f.explSet[subtopicID]; ok {
				st.Explanation = &text
			}
			return &st, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) SetExplanation(ctx context.Context, subtopicID int64, explanation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explSet[subtopicID] = explanation
	return nil
}

func (f *fakeStore) GetLectureContent(ctx context.Context, lectureID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}

func (f *fakeStore) GetQuizQuestions(ctx context.Context, subtopicID int64) ([]models.QuizQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.QuizQuestion
	for _, q := range f.questions {
		if q.SubtopicID == subtopicID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertQuizQuestions(ctx context.Context, subtopicID int64, questions []models.QuizQuestion, replace bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if replace {
		kept := f.questions[:0]
		for _, q := range f.questions {
			if q.SubtopicID != subtopicID {
				kept = append(kept, q)
			}
		}
		f.questions = kept
	}
	for _, q := range questions {
		dup := false
		for _, existing := range f.questions {
			if existing.SubtopicID == subtopicID && existing.Prompt == q.Prompt {
				dup = true
				break
			}
		}
		if !dup {
			f.nextID++
			q.ID = f.nextID
			f.questions = append(f.questions, q)
		}
	}
	return nil
}

func (f *fakeStore) LectureOwner(ctx context.Context, lectureID int64) (int64, error) {
	return 1, nil
}

// countingLLM counts upstream calls and can hold them open until released,
// so tests can pile up concurrent requests.
type countingLLM struct {
	text   string
	json   string
	chunks []string
	calls  int64
	gate   chan struct{}
}

func (c *countingLLM) wait() {
	if c.gate != nil {
		<-c.gate
	}
}

func (c *countingLLM) GenerateText(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	atomic.AddInt64(&c.calls, 1)
	c.wait()
	return c.text, nil
}

func (c *countingLLM) GenerateJSON(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	atomic.AddInt64(&c.calls, 1)
	c.wait()
	return c.json, nil
}

func (c *countingLLM) StreamText(ctx context.Context, prompt string, onDelta func(string) error, opts ...llm.Option) (string, error) {
	atomic.AddInt64(&c.calls, 1)
	c.wait()
	chunks := c.chunks
	if chunks == nil {
		chunks = strings.SplitAfter(c.text, " ")
	}
	var sb strings.Builder
	for _, chunk := range chunks {
		sb.WriteString(chunk)
		if err := onDelta(chunk); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

type noVision struct{}

func (noVision) AnalyzePDF(ctx context.Context, data []byte) (*outline.Breakdown, error) {
	return nil, fmt.Errorf("vision unavailable")
}

func newTestService(store *fakeStore, client llm.Client) *Service {
	gen := outline.NewGenerator(client)
	return NewService(store,
		section.NewWriter(client),
		quiz.NewWriter(client),
		newTestOrchestrator(store, gen),
		noVision{})
}

func storeWithSubtopic(id int64) *fakeStore {
	store := newFakeStore("Cell Biology", "Mitochondria produce energy in the cell through respiration.")
	store.subtopics = []models.Subtopic{{
		ID: id, LectureID: 1, Order: 0, Title: "Mitochondria",
		Importance: models.ImportanceHigh, Difficulty: 2,
		Overview: "Energy production in the cell",
	}}
	store.nextID = id
	return store
}

func TestCreateFromTextEmptyRejected(t *testing.T) {
	svc := newTestService(newFakeStore("", ""), &countingLLM{})
	if _, err := svc.CreateFromText(context.Background(), 1, "   \n\t  "); err != ErrEmptyDocument {
		t.Errorf("want ErrEmptyDocument, got %v", err)
	}
}

func TestCreateFromTextUsesPlaceholderTitle(t *testing.T) {
	store := newFakeStore("", "")
	svc := newTestService(store, &countingLLM{})

	resp, err := svc.CreateFromText(context.Background(), 1, "Some pasted study notes.")
	if err != nil {
		t.Fatalf("CreateFromText: %v", err)
	}
	if resp.Title != models.PlaceholderTitle {
		t.Errorf("title = %q, want placeholder", resp.Title)
	}
	if store.title != models.PlaceholderTitle {
		t.Error("placeholder title not persisted")
	}
}

func TestExplanationStoredSkipsGeneration(t *testing.T) {
	store := storeWithSubtopic(10)
	store.explSet[10] = "Already written explanation."
	client := &countingLLM{text: "fresh text"}
	svc := newTestService(store, client)

	got, err := svc.Explanation(context.Background(), 10, models.StyleDefault)
	if err != nil {
		t.Fatalf("Explanation: %v", err)
	}
	if got != "Already written explanation." {
		t.Errorf("got %q", got)
	}
	if atomic.LoadInt64(&client.calls) != 0 {
		t.Error("stored explanation must not trigger generation")
	}
}

func TestExplanationGeneratesAndPersists(t *testing.T) {
	store := storeWithSubtopic(10)
	client := &countingLLM{text: "Mitochondria turn glucose into usable energy."}
	svc := newTestService(store, client)

	got, err := svc.Explanation(context.Background(), 10, models.StyleDefault)
	if err != nil {
		t.Fatalf("Explanation: %v", err)
	}
	if got != client.text {
		t.Errorf("got %q", got)
	}
	if store.explSet[10] != client.text {
		t.Error("explanation not persisted")
	}
}

func TestConcurrentExplanationsShareOneCall(t *testing.T) {
	store := storeWithSubtopic(10)
	client := &countingLLM{text: "Shared explanation text.", gate: make(chan struct{})}
	svc := newTestService(store, client)

	const parallel = 8
	results := make([]string, parallel)
	errs := make([]error, parallel)
	var wg sync.WaitGroup
	var started sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = svc.Explanation(context.Background(), 10, models.StyleDefault)
		}(i)
	}
	started.Wait()
	// Let every request reach the collapse point before the upstream call
	// is allowed to finish.
	time.Sleep(50 * time.Millisecond)
	close(client.gate)
	wg.Wait()

	for i := 0; i < parallel; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if results[i] != "Shared explanation text." {
			t.Errorf("request %d got %q", i, results[i])
		}
	}
	if calls := atomic.LoadInt64(&client.calls); calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
}

func TestStreamExplanationStoredDeliveredWhole(t *testing.T) {
	store := storeWithSubtopic(10)
	store.explSet[10] = "Stored text."
	client := &countingLLM{}
	svc := newTestService(store, client)

	var deltas []string
	got, err := svc.StreamExplanation(context.Background(), 10, models.StyleDefault, true, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamExplanation: %v", err)
	}
	if got != "Stored text." || len(deltas) != 1 || deltas[0] != "Stored text." {
		t.Errorf("stored explanation should arrive as one delta: %v", deltas)
	}
	if atomic.LoadInt64(&client.calls) != 0 {
		t.Error("no generation expected")
	}
}

func TestStreamExplanationStreamsAndPersists(t *testing.T) {
	store := storeWithSubtopic(10)
	client := &countingLLM{text: "Energy flows from glucose to ATP."}
	svc := newTestService(store, client)

	var deltas []string
	got, err := svc.StreamExplanation(context.Background(), 10, models.StyleDefault, true, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamExplanation: %v", err)
	}
	if got != client.text {
		t.Errorf("final text %q", got)
	}
	if len(deltas) < 2 {
		t.Errorf("expected incremental deltas, got %v", deltas)
	}
	if store.explSet[10] != client.text {
		t.Error("streamed explanation not persisted")
	}
}

func TestStreamExplanationMidWordDeltasPreserved(t *testing.T) {
	store := storeWithSubtopic(10)
	// Upstream token deltas split inside words; the final text must still be
	// the exact concatenation, with no injected spaces or dropped letters.
	client := &countingLLM{chunks: []string{"The mito", "chondria proces", "s sugars."}}
	svc := newTestService(store, client)

	var deltas []string
	got, err := svc.StreamExplanation(context.Background(), 10, models.StyleDefault, true, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamExplanation: %v", err)
	}
	const want = "The mitochondria process sugars."
	if got != want {
		t.Errorf("final text %q, want %q", got, want)
	}
	if store.explSet[10] != want {
		t.Errorf("persisted %q, want %q", store.explSet[10], want)
	}
	if strings.Join(deltas, "") != want {
		t.Errorf("deltas concatenate to %q", strings.Join(deltas, ""))
	}
}

func TestStreamExplanationCancelledByNavigation(t *testing.T) {
	store := storeWithSubtopic(10)
	client := &countingLLM{text: "First part then second part then third part."}
	svc := newTestService(store, client)

	deltas := 0
	_, err := svc.StreamExplanation(context.Background(), 10, models.StyleDefault, false, func(d string) error {
		deltas++
		if deltas == 1 {
			// Client moves on to another subtopic mid-stream.
			svc.Navigate(99, 10)
		}
		return nil
	})
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("cancelled stream should report supersession, got %v", err)
	}
	if deltas != 1 {
		t.Errorf("no chunks may be applied after cancellation, got %d", deltas)
	}
	if _, ok := store.explSet[10]; ok {
		t.Error("cancelled run must not persist its partial output")
	}
}

func TestQuizReturnsStoredWithoutGeneration(t *testing.T) {
	store := storeWithSubtopic(10)
	store.questions = []models.QuizQuestion{
		{ID: 100, SubtopicID: 10, Prompt: "Q1?", Options: []string{"a", "b", "c", "d"}, AnswerIndex: 1},
		{ID: 101, SubtopicID: 10, Prompt: "Q2?", Options: []string{"a", "b", "c", "d"}, AnswerIndex: 2},
	}
	client := &countingLLM{}
	svc := newTestService(store, client)

	questions, err := svc.Quiz(context.Background(), 10)
	if err != nil {
		t.Fatalf("Quiz: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions", len(questions))
	}
	if atomic.LoadInt64(&client.calls) != 0 {
		t.Error("a full quiz must not trigger generation")
	}
}

func TestQuizGeneratesMissingQuestions(t *testing.T) {
	store := storeWithSubtopic(10)
	store.explSet[10] = "Mitochondria produce ATP via oxidative phosphorylation."
	client := &countingLLM{json: `{
  "questions": [
    {"prompt": "Which molecule do mitochondria produce?", "options": ["ATP", "DNA", "RNA", "Starch"], "answer_index": 0, "explanation": "ATP is the energy currency."},
    {"prompt": "Which process yields that molecule?", "options": ["Oxidative phosphorylation", "Photosynthesis", "Fermentation only", "Transcription"], "answer_index": 0, "explanation": "Named directly in the text."}
  ]
}`}
	svc := newTestService(store, client)

	questions, err := svc.Quiz(context.Background(), 10)
	if err != nil {
		t.Fatalf("Quiz: %v", err)
	}
	if len(questions) != models.QuestionsPerSubtopic {
		t.Fatalf("got %d questions, want %d", len(questions), models.QuestionsPerSubtopic)
	}
	for _, q := range questions {
		if q.AnswerIndex == 0 {
			t.Error("correct answer left at position 0")
		}
		if len(q.Options) != 4 {
			t.Errorf("question has %d options", len(q.Options))
		}
	}
	if atomic.LoadInt64(&client.calls) != 1 {
		t.Errorf("upstream called %d times, want 1", atomic.LoadInt64(&client.calls))
	}
}

func TestCreateFromPDFUnreadableFails(t *testing.T) {
	svc := newTestService(newFakeStore("", ""), &countingLLM{})
	if _, err := svc.CreateFromPDF(context.Background(), 1, []byte("not a pdf")); err == nil {
		t.Error("garbage bytes should fail")
	}
}
