package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"livepoll-server/domain"
)

// Scheduler is the part of the coordinator the poll endpoints drive.
type Scheduler interface {
	StartPoll(poll *domain.Poll)
	EndPoll(pollID string) bool
	BroadcastRoom(roomID, event string, payload any)
}

type Server struct {
	store     domain.PollStore
	scheduler Scheduler
	now       func() time.Time
}

func NewServer(store domain.PollStore, scheduler Scheduler) *Server {
	return &Server{store: store, scheduler: scheduler, now: time.Now}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("POST /api/polls", s.createPoll)
	mux.HandleFunc("GET /api/polls", s.listPolls)
	mux.HandleFunc("GET /api/polls/active", s.activePoll)
	mux.HandleFunc("GET /api/polls/{id}/results", s.results)
	mux.HandleFunc("POST /api/polls/{id}/responses", s.submitResponse)
	mux.HandleFunc("POST /api/polls/{id}/end", s.endPoll)
}

const pingTimeout = 2 * time.Second

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// health always answers 200; a database failure is reported in the body.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Database:  "connected",
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("database ping failed", "error", err)
		resp.Database = "disconnected"
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type createPollRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
}

type responseRequest struct {
	StudentID      string `json:"studentId"`
	StudentName    string `json:"studentName"`
	SelectedOption int    `json:"selectedOption"`
}

func (s *Server) createPoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	poll, err := s.store.CreatePoll(r.Context(), req.Question, req.Options, req.TimeLimit)
	if err != nil {
		writeStoreError(w, "create poll", err)
		return
	}
	s.scheduler.StartPoll(poll)

	writeJSON(w, http.StatusCreated, s.snapshot(poll))
}

func (s *Server) activePoll(w http.ResponseWriter, r *http.Request) {
	poll, err := s.store.ActivePoll(r.Context())
	if err != nil {
		writeStoreError(w, "active poll", err)
		return
	}
	if poll == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(poll))
}

func (s *Server) listPolls(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.ListPolls(r.Context())
	if err != nil {
		writeStoreError(w, "list polls", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, "poll results", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) submitResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID == "" {
		writeError(w, http.StatusBadRequest, "studentId and selectedOption are required")
		return
	}

	pollID := r.PathValue("id")
	results, err := s.store.RecordResponse(r.Context(), pollID, req.StudentID, req.StudentName, req.SelectedOption)
	if err != nil {
		writeStoreError(w, "record response", err)
		return
	}
	s.scheduler.BroadcastRoom(pollID, domain.EventPollResultsUpdated, results)

	writeJSON(w, http.StatusCreated, results)
}

// endPoll stops the running poll. A poll the scheduler is not tracking is
// ended in the store directly.
func (s *Server) endPoll(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	if s.scheduler.EndPoll(pollID) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	results, err := s.store.EndPoll(r.Context(), pollID)
	if err != nil {
		writeStoreError(w, "end poll", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) snapshot(poll *domain.Poll) domain.PollSnapshot {
	return domain.PollSnapshot{Poll: *poll, TimeRemaining: poll.TimeRemaining(s.now())}
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPoll), errors.Is(err, domain.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPollNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPollClosed), errors.Is(err, domain.ErrAlreadyResponded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("store error", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
