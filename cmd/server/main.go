package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/studyhall/backend/internal/auth"
	"github.com/studyhall/backend/internal/database"
	"github.com/studyhall/backend/internal/ingest"
	"github.com/studyhall/backend/internal/lectures"
	"github.com/studyhall/backend/internal/llm"
	"github.com/studyhall/backend/internal/middleware"
	"github.com/studyhall/backend/internal/outline"
	"github.com/studyhall/backend/internal/quiz"
	"github.com/studyhall/backend/internal/section"
)

func main() {
	// Initialize database
	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Generation pipeline
	client := llm.NewClient()
	store := lectures.NewStore(db)
	orchestrator := lectures.NewOrchestrator(store, outline.NewGenerator(client))
	service := lectures.NewService(store,
		section.NewWriter(client),
		quiz.NewWriter(client),
		orchestrator,
		ingest.NewVisionAnalyzer())

	// Initialize handlers
	authHandler := auth.NewHandler(db)
	lectureHandler := lectures.NewHandler(service)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.Use(middleware.RequestLogger)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	protected.HandleFunc("/lectures", lectureHandler.Create).Methods("POST")
	protected.HandleFunc("/lectures", lectureHandler.List).Methods("GET")
	protected.HandleFunc("/lectures/upload", lectureHandler.Upload).Methods("POST")
	protected.HandleFunc("/lectures/{id}", lectureHandler.Get).Methods("GET")
	protected.HandleFunc("/lectures/{id}/stream", lectureHandler.StreamLecture).Methods("GET")
	protected.HandleFunc("/subtopics/{id}/explanation", lectureHandler.Explanation).Methods("POST")
	protected.HandleFunc("/subtopics/{id}/explanation/stream", lectureHandler.StreamExplanation).Methods("GET")
	protected.HandleFunc("/subtopics/{id}/quiz", lectureHandler.Quiz).Methods("POST")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
