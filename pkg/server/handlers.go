package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mvail/threadledger/internal/storage"
	"github.com/mvail/threadledger/pkg/sweeper"
	"github.com/mvail/threadledger/pkg/thread"
	"github.com/mvail/threadledger/pkg/types"
)

// AppendRequest is the body of POST /threads/{threadID}/messages.
type AppendRequest struct {
	Participants []string           `json:"participants"`
	Entry        types.MessageEntry `json:"entry"`
}

// AppendResponse is returned on a successful append.
type AppendResponse struct {
	ObjectID       string `json:"object_id"`
	ThreadID       string `json:"thread_id"`
	Version        uint64 `json:"version"`
	ConfirmedCount uint64 `json:"confirmed_count"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadID")
	if threadID == "" {
		http.Error(w, "threadID required", http.StatusBadRequest)
		return
	}

	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Append(r.Context(), threadID, req.Participants, req.Entry)
	if err != nil {
		s.writeAppendError(w, r, threadID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AppendResponse{
		ObjectID:       result.ObjectID,
		ThreadID:       threadID,
		Version:        result.Log.Version,
		ConfirmedCount: result.ConfirmedCount,
	})
}

// writeAppendError maps engine errors onto HTTP statuses. Validation
// failures carry the engine's expected-vs-actual detail so callers can
// diagnose; everything else is a retryable upstream failure.
func (s *Server) writeAppendError(w http.ResponseWriter, r *http.Request, threadID string, err error) {
	switch {
	case errors.Is(err, thread.ErrIndexMismatch), errors.Is(err, thread.ErrChainBroken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, thread.ErrBadSignature):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, thread.ErrHashMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("append failed", "threadID", threadID, "error", err)
		http.Error(w, "upstream store or ledger unavailable", http.StatusBadGateway)
	}
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadID")
	if threadID == "" {
		http.Error(w, "threadID required", http.StatusBadRequest)
		return
	}

	log, err := s.engine.Load(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "thread not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to load thread", "threadID", threadID, "error", err)
		http.Error(w, "failed to load thread", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(log)
}

// WritesResponse is returned by GET /threads/{threadID}/writes.
type WritesResponse struct {
	ThreadID string               `json:"thread_id"`
	Writes   []types.TrackedWrite `json:"writes"`
}

func (s *Server) handleListWrites(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadID")
	if threadID == "" {
		http.Error(w, "threadID required", http.StatusBadRequest)
		return
	}

	writes, err := s.tracker.EntriesForThread(r.Context(), threadID)
	if err != nil {
		s.logger.Error("failed to list writes", "threadID", threadID, "error", err)
		http.Error(w, "failed to list writes", http.StatusInternalServerError)
		return
	}
	if writes == nil {
		writes = []types.TrackedWrite{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WritesResponse{ThreadID: threadID, Writes: writes})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.sweeper.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, sweeper.ErrSweepInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.logger.Error("manual sweep failed", "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
