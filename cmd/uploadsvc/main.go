// Command uploadsvc is the demo upload service the ingestion saga talks to.
// It accepts multipart uploads, serves a rollback endpoint that forgets an
// upload by id, receives completion webhooks, and exposes a small JSON
// document for the saga to download.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/fortressi/filesaga/config"
)

type uploadRecord struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	ReceivedAt time.Time `json:"received_at"`
}

type server struct {
	uploads *xsync.MapOf[string, uploadRecord]
	log     *slog.Logger
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	s.uploads.Store(id, uploadRecord{
		Filename:   header.Filename,
		Size:       size,
		ReceivedAt: time.Now(),
	})
	s.log.Info("upload accepted", "upload_id", id, "filename", header.Filename, "bytes", size)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"upload_id": id})
}

func (s *server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.uploads.LoadAndDelete(id); !ok {
		http.Error(w, "upload not found", http.StatusNotFound)
		return
	}
	s.log.Info("upload rolled back", "upload_id", id)
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	s.log.Info("webhook received", "payload", payload)
	w.WriteHeader(http.StatusOK)
}

// handlePosts serves a small JSON array so a local saga run has something
// real to download.
func (s *server) handlePosts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]map[string]any{
		{"id": 1, "title": "first post", "body": "hello"},
		{"id": 2, "title": "second post", "body": "world"},
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "uploadsvc",
	})
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	port := cfg.Server.Port
	if env := os.Getenv("PORT"); env != "" {
		port = env
	}

	s := &server{
		uploads: xsync.NewMapOf[string, uploadRecord](),
		log:     log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/upload", s.handleUpload).Methods("POST")
	router.HandleFunc("/rollback/{id}", s.handleRollback).Methods("DELETE")
	router.HandleFunc("/webhook", s.handleWebhook).Methods("POST")
	router.HandleFunc("/posts", s.handlePosts).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	log.Info("upload service listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
