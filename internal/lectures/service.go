package lectures

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/studyhall/backend/internal/ingest"
	"github.com/studyhall/backend/internal/models"
	"github.com/studyhall/backend/internal/outline"
	"github.com/studyhall/backend/internal/quiz"
	"github.com/studyhall/backend/internal/runs"
	"github.com/studyhall/backend/internal/section"
	"github.com/studyhall/backend/internal/slicer"
	"github.com/studyhall/backend/internal/stream"
)

// ErrEmptyDocument reports input with no usable text.
var ErrEmptyDocument = errors.New("document has no usable content")

// ErrSuperseded reports that a newer request took over the subtopic while
// this one was generating. Its partial output is discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// Storage is everything the service needs from persistence.
type Storage interface {
	generationStore
	CreateLecture(ctx context.Context, ownerID int64, title, content string) (int64, error)
	GetLecture(ctx context.Context, lectureID, ownerID int64) (*models.Lecture, error)
	ListLectures(ctx context.Context, ownerID int64) ([]models.LectureSummary, error)
	GetSubtopic(ctx context.Context, subtopicID int64) (*models.Subtopic, error)
	SetExplanation(ctx context.Context, subtopicID int64, explanation string) error
	GetLectureContent(ctx context.Context, lectureID int64) (string, error)
	GetQuizQuestions(ctx context.Context, subtopicID int64) ([]models.QuizQuestion, error)
	UpsertQuizQuestions(ctx context.Context, subtopicID int64, questions []models.QuizQuestion, replace bool) error
	LectureOwner(ctx context.Context, lectureID int64) (int64, error)
}

type visionAnalyzer interface {
	AnalyzePDF(ctx context.Context, data []byte) (*outline.Breakdown, error)
}

// Service wires ingestion, generation, and persistence into the lecture
// pipeline the handlers call.
type Service struct {
	store    Storage
	sections *section.Writer
	quizzes  *quiz.Writer
	orch     *Orchestrator
	runs     *runs.Controller
	vision   visionAnalyzer

	// flight collapses concurrent generation requests for the same content
	// into one upstream call.
	flight singleflight.Group

	// visionOutlines caches outlines produced during PDF ingestion until
	// the breakdown stream consumes them.
	visionMu       sync.Mutex
	visionOutlines map[int64]*outline.Breakdown

	contextBudget int
}

func NewService(store Storage, sections *section.Writer, quizzes *quiz.Writer, orch *Orchestrator, vision visionAnalyzer) *Service {
	return &Service{
		store:          store,
		sections:       sections,
		quizzes:        quizzes,
		orch:           orch,
		runs:           runs.NewController(),
		vision:         vision,
		visionOutlines: make(map[int64]*outline.Breakdown),
		contextBudget:  slicer.DefaultBudget,
	}
}

// ── Ingestion ──────────────────────────────────────────────

// CreateFromText normalizes pasted text and creates a lecture shell with a
// placeholder title. The breakdown itself runs when the client opens the
// lecture's event stream.
func (s *Service) CreateFromText(ctx context.Context, ownerID int64, content string) (*models.CreateLectureResponse, error) {
	normalized, pages := ingest.Normalize(content)
	if normalized == "" {
		return nil, ErrEmptyDocument
	}

	id, err := s.store.CreateLecture(ctx, ownerID, models.PlaceholderTitle, normalized)
	if err != nil {
		return nil, err
	}
	return &models.CreateLectureResponse{ID: id, Title: models.PlaceholderTitle, PageCount: pages}, nil
}

// CreateFromPDF extracts text from an uploaded PDF. Scanned PDFs with no
// text layer fall back to vision analysis; its outline is cached and the
// subtopic overviews stand in as the source document.
func (s *Service) CreateFromPDF(ctx context.Context, ownerID int64, data []byte) (*models.CreateLectureResponse, error) {
	text, pages, err := ingest.ExtractPDFText(data)
	if err == nil {
		id, cerr := s.store.CreateLecture(ctx, ownerID, models.PlaceholderTitle, text)
		if cerr != nil {
			return nil, cerr
		}
		return &models.CreateLectureResponse{ID: id, Title: models.PlaceholderTitle, PageCount: pages}, nil
	}
	if !errors.Is(err, ingest.ErrEmptyExtraction) {
		return nil, err
	}

	log.Printf("pdf has no text layer, running vision analysis")
	bd, verr := s.vision.AnalyzePDF(ctx, data)
	if verr != nil {
		return nil, fmt.Errorf("pdf unreadable: %w", verr)
	}

	id, err := s.store.CreateLecture(ctx, ownerID, models.PlaceholderTitle, outlineDocument(bd))
	if err != nil {
		return nil, err
	}

	s.visionMu.Lock()
	s.visionOutlines[id] = bd
	s.visionMu.Unlock()

	return &models.CreateLectureResponse{ID: id, Title: models.PlaceholderTitle, PageCount: pages}, nil
}

// outlineDocument renders a vision outline as a text document so later
// grounding slices have material to draw on.
func outlineDocument(bd *outline.Breakdown) string {
	var b strings.Builder
	for _, c := range bd.Subtopics {
		b.WriteString(c.Title)
		b.WriteString("\n")
		b.WriteString(c.Overview)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// ── Breakdown ──────────────────────────────────────────────

// StreamBreakdown starts (or catches up on) the breakdown stream for a
// lecture. A cached vision outline is consumed on first use.
func (s *Service) StreamBreakdown(ctx context.Context, lectureID int64) <-chan stream.Event {
	s.visionMu.Lock()
	cached := s.visionOutlines[lectureID]
	delete(s.visionOutlines, lectureID)
	s.visionMu.Unlock()

	return s.orch.Stream(ctx, lectureID, cached)
}

// ── Explanations ───────────────────────────────────────────

// Explanation returns the subtopic's explanation, generating and persisting
// it when absent. Concurrent requests for the same subtopic and style share
// one generation.
func (s *Service) Explanation(ctx context.Context, subtopicID int64, style models.StyleHint) (string, error) {
	st, err := s.store.GetSubtopic(ctx, subtopicID)
	if err != nil {
		return "", err
	}
	if st.Explanation != nil && *st.Explanation != "" {
		return *st.Explanation, nil
	}

	key := fmt.Sprintf("expl:%d:%s", subtopicID, style)
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.generateExplanation(ctx, st, style, nil, nil)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// StreamExplanation generates the explanation while forwarding deltas to
// onDelta, and returns the final sanitized text. When another request is
// already generating the same explanation, this one waits and delivers the
// shared result as a single delta. foreground marks user-initiated requests
// that may preempt background prefetching.
func (s *Service) StreamExplanation(ctx context.Context, subtopicID int64, style models.StyleHint, foreground bool, onDelta func(string) error) (string, error) {
	st, err := s.store.GetSubtopic(ctx, subtopicID)
	if err != nil {
		return "", err
	}
	if st.Explanation != nil && *st.Explanation != "" {
		if err := onDelta(*st.Explanation); err != nil {
			return "", err
		}
		return *st.Explanation, nil
	}

	key := fmt.Sprintf("expl:%d:%s", subtopicID, style)
	ran := false
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		ran = true
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		run, ok := s.runs.Begin(subtopicID, runs.KindExplanation, foreground, cancel)
		if !ok {
			return nil, ErrSuperseded
		}
		defer run.Release()

		return s.generateExplanation(runCtx, st, style, run, onDelta)
	})
	if err != nil {
		return "", err
	}

	text := v.(string)
	// Joiners got no deltas while the holder streamed; deliver the result
	// whole.
	if !ran {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

// generateExplanation produces, sanitizes, and persists one explanation.
// With a non-nil run, output streams through onDelta and a stale run
// discards its result instead of persisting.
func (s *Service) generateExplanation(ctx context.Context, st *models.Subtopic, style models.StyleHint, run *runs.Run, onDelta func(string) error) (string, error) {
	lectureTitle, content, err := s.store.LectureForGeneration(ctx, st.LectureID)
	if err != nil {
		return "", err
	}

	req := section.Request{
		LectureTitle:  lectureTitle,
		SubtopicTitle: st.Title,
		Overview:      st.Overview,
		Context:       slicer.Slice(content, st.Title, st.Overview, s.contextBudget),
		Style:         style,
	}

	var text string
	if onDelta == nil {
		text, err = s.sections.Write(ctx, req)
	} else {
		// SDK deltas arrive strictly in order and split mid-word, so the
		// accumulated text comes from the writer, never from re-joining
		// deltas.
		text, err = s.sections.Stream(ctx, req, func(d string) error {
			if run != nil && run.Stale() {
				return ErrSuperseded
			}
			return onDelta(d)
		})
	}
	if err != nil {
		return "", err
	}

	if run != nil && run.Stale() {
		return "", ErrSuperseded
	}
	if err := s.store.SetExplanation(ctx, st.ID, text); err != nil {
		log.Printf("WARN: persisting explanation for subtopic %d: %v", st.ID, err)
	}
	return text, nil
}

// ── Quizzes ────────────────────────────────────────────────

// Quiz returns the subtopic's quiz, generating questions when fewer than
// QuestionsPerSubtopic are stored. Generated questions are deduplicated
// against stored prompts before persisting.
func (s *Service) Quiz(ctx context.Context, subtopicID int64) ([]models.QuizQuestion, error) {
	stored, err := s.store.GetQuizQuestions(ctx, subtopicID)
	if err != nil {
		return nil, err
	}
	if len(stored) >= models.QuestionsPerSubtopic {
		return stored, nil
	}

	key := fmt.Sprintf("quiz:%d", subtopicID)
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.generateQuiz(ctx, subtopicID, stored)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.QuizQuestion), nil
}

func (s *Service) generateQuiz(ctx context.Context, subtopicID int64, stored []models.QuizQuestion) ([]models.QuizQuestion, error) {
	st, err := s.store.GetSubtopic(ctx, subtopicID)
	if err != nil {
		return nil, err
	}

	// Questions ground in the explanation when one exists, otherwise in the
	// sliced source document.
	grounding := ""
	if st.Explanation != nil {
		grounding = *st.Explanation
	}
	if grounding == "" {
		content, err := s.store.GetLectureContent(ctx, st.LectureID)
		if err != nil {
			return nil, err
		}
		grounding = slicer.Slice(content, st.Title, st.Overview, s.contextBudget)
	}

	avoid := make([]string, 0, len(stored))
	for _, q := range stored {
		avoid = append(avoid, q.Prompt)
	}

	need := models.QuestionsPerSubtopic - len(stored)
	candidates, err := s.quizzes.Generate(ctx, grounding, st.Title, st.Overview, avoid, need)
	if err != nil {
		return nil, err
	}

	generated := make([]models.QuizQuestion, 0, len(candidates))
	for _, c := range candidates {
		generated = append(generated, models.QuizQuestion{
			SubtopicID:  subtopicID,
			Prompt:      c.Prompt,
			Options:     c.Options,
			AnswerIndex: c.AnswerIndex,
			Explanation: c.Explanation,
		})
	}
	if err := s.store.UpsertQuizQuestions(ctx, subtopicID, generated, false); err != nil {
		return nil, err
	}

	// Re-read so IDs and any concurrent winners come back consistently.
	return s.store.GetQuizQuestions(ctx, subtopicID)
}

// ── Navigation ─────────────────────────────────────────────

// Navigate records the client moving between subtopics, cancelling the
// previous subtopic's live explanation stream.
func (s *Service) Navigate(active, previous int64) {
	s.runs.Navigate(active, previous)
}

// ── Reads ──────────────────────────────────────────────────

func (s *Service) GetLecture(ctx context.Context, lectureID, ownerID int64) (*models.Lecture, error) {
	return s.store.GetLecture(ctx, lectureID, ownerID)
}

func (s *Service) ListLectures(ctx context.Context, ownerID int64) ([]models.LectureSummary, error) {
	return s.store.ListLectures(ctx, ownerID)
}

// AuthorizeSubtopic checks that the subtopic belongs to one of the user's
// lectures, returning the subtopic on success.
func (s *Service) AuthorizeSubtopic(ctx context.Context, subtopicID, userID int64) (*models.Subtopic, error) {
	st, err := s.store.GetSubtopic(ctx, subtopicID)
	if err != nil {
		return nil, err
	}
	owner, err := s.store.LectureOwner(ctx, st.LectureID)
	if err != nil {
		return nil, err
	}
	if owner != userID {
		return nil, sql.ErrNoRows
	}
	return st, nil
}

// AuthorizeLecture checks lecture ownership for streaming routes.
func (s *Service) AuthorizeLecture(ctx context.Context, lectureID, userID int64) error {
	owner, err := s.store.LectureOwner(ctx, lectureID)
	if err != nil {
		return err
	}
	if owner != userID {
		return sql.ErrNoRows
	}
	return nil
}
