package models

import "time"

// PlaceholderTitle is the lecture title shown while the breakdown is still
// being generated. It is replaced once the model resolves a topic name.
const PlaceholderTitle = "Generating…"

// MaxSubtopics is the hard cap on subtopics per lecture. Breakdowns larger
// than this are reduced by the selector before anything is persisted.
const MaxSubtopics = 15

type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

var ValidImportances = map[Importance]bool{
	ImportanceHigh:   true,
	ImportanceMedium: true,
	ImportanceLow:    true,
}

// StyleHint selects the explanation writing style. It changes the prompt
// instruction but not the generation contract.
type StyleHint string

const (
	StyleDefault    StyleHint = "default"
	StyleSimplified StyleHint = "simplified"
	StyleDetailed   StyleHint = "detailed"
	StyleExample    StyleHint = "example"
)

// ParseStyleHint maps a raw query/body value to a StyleHint, defaulting to
// StyleDefault for empty or unknown values.
func ParseStyleHint(s string) StyleHint {
	switch StyleHint(s) {
	case StyleSimplified, StyleDetailed, StyleExample:
		return StyleHint(s)
	default:
		return StyleDefault
	}
}

type Lecture struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	Title           string     `json:"title"`
	OriginalContent string     `json:"original_content,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Subtopics       []Subtopic `json:"subtopics"`
}

type Subtopic struct {
	ID          int64      `json:"id"`
	LectureID   int64      `json:"lecture_id"`
	Order       int        `json:"order"`
	Title       string     `json:"title"`
	Importance  Importance `json:"importance"`
	Difficulty  int        `json:"difficulty"`
	Overview    string     `json:"overview"`
	Explanation *string    `json:"explanation"`
}

type QuizQuestion struct {
	ID          int64    `json:"id"`
	SubtopicID  int64    `json:"subtopic_id"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// QuestionsPerSubtopic is how many stored quiz questions make a subtopic
// quiz-ready. Generation requests at or above this return stored questions
// without any model call.
const QuestionsPerSubtopic = 2

// ── Request/Response DTOs ───────────────────────────────

type CreateLectureRequest struct {
	Content string `json:"content"`
}

type CreateLectureResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count,omitempty"`
}

type ExplanationRequest struct {
	Style string `json:"style"`
}

type ExplanationResponse struct {
	SubtopicID  int64  `json:"subtopic_id"`
	Explanation string `json:"explanation"`
}

type QuizResponse struct {
	SubtopicID int64          `json:"subtopic_id"`
	Questions  []QuizQuestion `json:"questions"`
}

type LectureSummary struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	SubtopicCount int       `json:"subtopic_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type LectureListResponse struct {
	Lectures []LectureSummary `json:"lectures"`
	Total    int              `json:"total"`
}
