package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/banshee-data/orientd/db"
	"github.com/banshee-data/orientd/internal/engine"
)

// EngineInterface is the slice of the engine the HTTP surface needs.
type EngineInterface interface {
	Status() engine.Status
	SetPollInterval(seconds int) error
}

type Server struct {
	e  EngineInterface
	db *db.DB
}

func NewServer(e EngineInterface, db *db.DB) *Server {
	return &Server{
		e:  e,
		db: db,
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	// Handle the home page
	w.Write([]byte("Welcome to the orientd daemon!"))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/poll-interval", s.setPollIntervalHandler)
	mux.HandleFunc("/transitions", s.listTransitions)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.e.Status()); err != nil {
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *Server) setPollIntervalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seconds, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil {
		http.Error(w, "seconds must be a whole number", http.StatusBadRequest)
		return
	}
	if err := s.e.SetPollInterval(seconds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	io.WriteString(w, "Poll interval updated\n")
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Transition log is not enabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "limit must be a whole number", http.StatusBadRequest)
			return
		}
		limit = n
	}

	transitions, err := s.db.Transitions(limit)
	if err != nil {
		s := fmt.Sprintf("Failed to retrieve transitions: %v", err)
		http.Error(w, s, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transitions); err != nil {
		http.Error(w, "Failed to encode transitions", http.StatusInternalServerError)
	}
}
