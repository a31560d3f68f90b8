package lectures

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/studyhall/backend/internal/models"
	"github.com/studyhall/backend/internal/stream"
)

// maxUploadBytes caps PDF uploads at 32 MiB.
const maxUploadBytes = 32 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create starts a lecture from pasted text.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)

	var req models.CreateLectureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.CreateFromText(r.Context(), userID, req.Content)
	if errors.Is(err, ErrEmptyDocument) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Document is empty"})
		return
	}
	if err != nil {
		log.Printf("WARN: create lecture: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create lecture"})
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Upload starts a lecture from a PDF file.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid upload"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Could not read upload"})
		return
	}

	resp, err := h.service.CreateFromPDF(r.Context(), userID, data)
	if err != nil {
		log.Printf("WARN: pdf upload: %v", err)
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Could not extract content from this PDF"})
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Get returns a lecture with its subtopics in order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)
	lectureID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	lecture, err := h.service.GetLecture(r.Context(), lectureID, userID)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Lecture not found"})
		return
	}
	if err != nil {
		log.Printf("WARN: get lecture %d: %v", lectureID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load lecture"})
		return
	}
	writeJSON(w, http.StatusOK, lecture)
}

// List returns the caller's lectures, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)

	summaries, err := h.service.ListLectures(r.Context(), userID)
	if err != nil {
		log.Printf("WARN: list lectures: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list lectures"})
		return
	}
	writeJSON(w, http.StatusOK, models.LectureListResponse{Lectures: summaries, Total: len(summaries)})
}

// StreamLecture is the whole-lecture SSE endpoint: it runs (or replays) the
// breakdown, emitting subtopic events progressively.
func (h *Handler) StreamLecture(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)
	lectureID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.AuthorizeLecture(r.Context(), lectureID, userID); err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Lecture not found"})
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Streaming unsupported"})
		return
	}

	for event := range h.service.StreamBreakdown(r.Context(), lectureID) {
		if err := sw.Send(event); err != nil {
			log.Printf("WARN: lecture %d stream send: %v", lectureID, err)
			return
		}
	}
	// The client dropping mid-generation closes the channel without a
	// terminal event; nothing more to write then.
	if !sw.Closed() {
		sw.Send(stream.ErrorEvent("stream interrupted"))
	}
}

// StreamExplanation streams one subtopic's explanation as chunk events.
// Query params: style selects the writing voice, prev names the subtopic
// the client navigated away from, background marks prefetch requests.
func (h *Handler) StreamExplanation(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)
	subtopicID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	st, err := h.service.AuthorizeSubtopic(r.Context(), subtopicID, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Subtopic not found"})
		return
	}

	if prev, err := strconv.ParseInt(r.URL.Query().Get("prev"), 10, 64); err == nil {
		h.service.Navigate(subtopicID, prev)
	}

	style := models.ParseStyleHint(r.URL.Query().Get("style"))
	foreground := r.URL.Query().Get("background") != "true"

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Streaming unsupported"})
		return
	}

	_, err = h.service.StreamExplanation(r.Context(), st.ID, style, foreground, func(delta string) error {
		return sw.Send(stream.ChunkEvent(delta))
	})
	if err != nil {
		if !sw.Closed() {
			// Cancellation (navigation or a newer request taking over) is
			// not a failure; the client shows "cancelled", not "failed".
			if errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) {
				sw.Send(stream.ErrorEvent("cancelled"))
			} else {
				log.Printf("WARN: explanation stream for subtopic %d: %v", subtopicID, err)
				sw.Send(stream.ErrorEvent("explanation generation failed"))
			}
		}
		return
	}
	sw.Send(stream.DoneEvent())
}

// Explanation is the non-streaming explanation endpoint.
func (h *Handler) Explanation(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)
	subtopicID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	st, err := h.service.AuthorizeSubtopic(r.Context(), subtopicID, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Subtopic not found"})
		return
	}

	var req models.ExplanationRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // optional body
	}

	text, err := h.service.Explanation(r.Context(), st.ID, models.ParseStyleHint(req.Style))
	if err != nil {
		log.Printf("WARN: explanation for subtopic %d: %v", subtopicID, err)
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Explanation generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, models.ExplanationResponse{SubtopicID: st.ID, Explanation: text})
}

// Quiz returns the subtopic's questions, generating any that are missing.
func (h *Handler) Quiz(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(int64)
	subtopicID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	st, err := h.service.AuthorizeSubtopic(r.Context(), subtopicID, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Subtopic not found"})
		return
	}

	questions, err := h.service.Quiz(r.Context(), st.ID)
	if err != nil {
		log.Printf("WARN: quiz for subtopic %d: %v", subtopicID, err)
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Quiz generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, models.QuizResponse{SubtopicID: st.ID, Questions: questions})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
