// Package lectures owns the document-to-lecture pipeline: persistence, the
// breakdown orchestrator, on-demand explanation and quiz generation, and
// the HTTP surface.
package lectures

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/studyhall/backend/internal/models"
	"github.com/studyhall/backend/internal/outline"
)

// Store is the raw-SQL persistence layer for lectures, subtopics, and quiz
// questions.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateLecture(ctx context.Context, ownerID int64, title, content string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO lectures (owner_id, title, original_content)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		ownerID, title, content,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting lecture: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateLectureTitle(ctx context.Context, lectureID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lectures SET title = $1 WHERE id = $2`, title, lectureID)
	if err != nil {
		return fmt.Errorf("updating lecture title: %w", err)
	}
	return nil
}

// GetLecture loads a lecture with its subtopics in presentation order.
// Ownership is checked here so handlers never leak other users' lectures.
func (s *Store) GetLecture(ctx context.Context, lectureID, ownerID int64) (*models.Lecture, error) {
	var lecture models.Lecture
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, created_at FROM lectures
		 WHERE id = $1 AND owner_id = $2`,
		lectureID, ownerID,
	).Scan(&lecture.ID, &lecture.OwnerID, &lecture.Title, &lecture.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("loading lecture %d: %w", lectureID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lecture_id, position, title, importance, difficulty, overview, explanation
		 FROM subtopics WHERE lecture_id = $1 ORDER BY position`,
		lectureID)
	if err != nil {
		return nil, fmt.Errorf("loading subtopics for lecture %d: %w", lectureID, err)
	}
	defer rows.Close()

	lecture.Subtopics = []models.Subtopic{}
	for rows.Next() {
		var st models.Subtopic
		if err := rows.Scan(&st.ID, &st.LectureID, &st.Order, &st.Title,
			&st.Importance, &st.Difficulty, &st.Overview, &st.Explanation); err != nil {
			return nil, fmt.Errorf("scanning subtopic: %w", err)
		}
		lecture.Subtopics = append(lecture.Subtopics, st)
	}
	return &lecture, rows.Err()
}

func (s *Store) ListLectures(ctx context.Context, ownerID int64) ([]models.LectureSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.title, l.created_at, COUNT(st.id)
		 FROM lectures l
		 LEFT JOIN subtopics st ON st.lecture_id = l.id
		 WHERE l.owner_id = $1
		 GROUP BY l.id
		 ORDER BY l.created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing lectures: %w", err)
	}
	defer rows.Close()

	summaries := []models.LectureSummary{}
	for rows.Next() {
		var sum models.LectureSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.SubtopicCount); err != nil {
			return nil, fmt.Errorf("scanning lecture summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// CreateSubtopics persists the selected breakdown in one transaction,
// assigning positions in slice order.
func (s *Store) CreateSubtopics(ctx context.Context, lectureID int64, candidates []outline.Candidate) ([]models.Subtopic, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning subtopic transaction: %w", err)
	}
	defer tx.Rollback()

	created := make([]models.Subtopic, 0, len(candidates))
	for i, c := range candidates {
		st := models.Subtopic{
			LectureID:  lectureID,
			Order:      i,
			Title:      c.Title,
			Importance: c.Importance,
			Difficulty: c.Difficulty,
			Overview:   c.Overview,
		}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO subtopics (lecture_id, position, title, importance, difficulty, overview)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			lectureID, i, c.Title, c.Importance, c.Difficulty, c.Overview,
		).Scan(&st.ID)
		if err != nil {
			return nil, fmt.Errorf("inserting subtopic %q: %w", c.Title, err)
		}
		created = append(created, st)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing subtopics: %w", err)
	}
	return created, nil
}

func (s *Store) GetSubtopic(ctx context.Context, subtopicID int64) (*models.Subtopic, error) {
	var st models.Subtopic
	err := s.db.QueryRowContext(ctx,
		`SELECT id, lecture_id, position, title, importance, difficulty, overview, explanation
		 FROM subtopics WHERE id = $1`,
		subtopicID,
	).Scan(&st.ID, &st.LectureID, &st.Order, &st.Title,
		&st.Importance, &st.Difficulty, &st.Overview, &st.Explanation)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("loading subtopic %d: %w", subtopicID, err)
	}
	return &st, nil
}

func (s *Store) SetExplanation(ctx context.Context, subtopicID int64, explanation string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subtopics SET explanation = $1 WHERE id = $2`, explanation, subtopicID)
	if err != nil {
		return fmt.Errorf("storing explanation for subtopic %d: %w", subtopicID, err)
	}
	return nil
}

// GetLectureContent returns the normalized source document for grounding.
func (s *Store) GetLectureContent(ctx context.Context, lectureID int64) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT original_content FROM lectures WHERE id = $1`, lectureID,
	).Scan(&content)
	if err != nil {
		return "", fmt.Errorf("loading lecture content %d: %w", lectureID, err)
	}
	return content, nil
}

func (s *Store) GetQuizQuestions(ctx context.Context, subtopicID int64) ([]models.QuizQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subtopic_id, prompt, options, answer_index, explanation
		 FROM quiz_questions WHERE subtopic_id = $1 ORDER BY id`,
		subtopicID)
	if err != nil {
		return nil, fmt.Errorf("loading quiz questions for subtopic %d: %w", subtopicID, err)
	}
	defer rows.Close()

	questions := []models.QuizQuestion{}
	for rows.Next() {
		var q models.QuizQuestion
		if err := rows.Scan(&q.ID, &q.SubtopicID, &q.Prompt,
			pq.Array(&q.Options), &q.AnswerIndex, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scanning quiz question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpsertQuizQuestions stores generated questions. In append mode prompt
// collisions within a subtopic are skipped rather than erroring, so
// regenerations converge; replace mode clears the subtopic's questions
// first.
func (s *Store) UpsertQuizQuestions(ctx context.Context, subtopicID int64, questions []models.QuizQuestion, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning quiz transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM quiz_questions WHERE subtopic_id = $1`, subtopicID); err != nil {
			return fmt.Errorf("clearing quiz questions: %w", err)
		}
	}

	for _, q := range questions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quiz_questions (subtopic_id, prompt, options, answer_index, explanation)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (subtopic_id, prompt) DO NOTHING`,
			subtopicID, q.Prompt, pq.Array(q.Options), q.AnswerIndex, q.Explanation)
		if err != nil {
			return fmt.Errorf("inserting quiz question: %w", err)
		}
	}
	return tx.Commit()
}

// LectureForGeneration loads the title and source document without an
// ownership filter. The orchestrator runs after the handler has already
// authorized the request.
func (s *Store) LectureForGeneration(ctx context.Context, lectureID int64) (string, string, error) {
	var title, content string
	err := s.db.QueryRowContext(ctx,
		`SELECT title, original_content FROM lectures WHERE id = $1`, lectureID,
	).Scan(&title, &content)
	if err == sql.ErrNoRows {
		return "", "", sql.ErrNoRows
	}
	if err != nil {
		return "", "", fmt.Errorf("loading lecture %d for generation: %w", lectureID, err)
	}
	return title, content, nil
}

// GetSubtopics returns a lecture's subtopics in presentation order.
func (s *Store) GetSubtopics(ctx context.Context, lectureID int64) ([]models.Subtopic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lecture_id, position, title, importance, difficulty, overview, explanation
		 FROM subtopics WHERE lecture_id = $1 ORDER BY position`,
		lectureID)
	if err != nil {
		return nil, fmt.Errorf("loading subtopics for lecture %d: %w", lectureID, err)
	}
	defer rows.Close()

	subtopics := []models.Subtopic{}
	for rows.Next() {
		var st models.Subtopic
		if err := rows.Scan(&st.ID, &st.LectureID, &st.Order, &st.Title,
			&st.Importance, &st.Difficulty, &st.Overview, &st.Explanation); err != nil {
			return nil, fmt.Errorf("scanning subtopic: %w", err)
		}
		subtopics = append(subtopics, st)
	}
	return subtopics, rows.Err()
}

// LectureOwner returns the owner of a lecture, for authorizing subtopic
// routes that arrive without a lecture ID.
func (s *Store) LectureOwner(ctx context.Context, lectureID int64) (int64, error) {
	var ownerID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM lectures WHERE id = $1`, lectureID,
	).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return 0, sql.ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("loading lecture owner %d: %w", lectureID, err)
	}
	return ownerID, nil
}
