// Package httpapi exposes the REST surface of the relay: pushing clipboard
// changes without holding a live session, and querying history.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"go.clipd.dev/clipd/internal/auth"
	"go.clipd.dev/clipd/internal/history"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/relay"
)

// DefaultHistoryLimit applies when a history query names no limit.
const DefaultHistoryLimit = 20

// MaxHistoryLimit caps a single history response.
const MaxHistoryLimit = 500

// Server handles the HTTP API.
type Server struct {
	relay    *relay.Relay
	store    history.Store
	verifier *auth.Verifier
}

// New builds the API server.
func New(r *relay.Relay, store history.Store, verifier *auth.Verifier) *Server {
	return &Server{relay: r, store: store, verifier: verifier}
}

// Router assembles the chi routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/clips", s.handlePush)
		r.Get("/clips/{userID}", s.handleHistory)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pushResponse acknowledges an accepted change.
type pushResponse struct {
	ID        int64     `json:"id,omitempty"`
	Persisted bool      `json:"persisted"`
	Timestamp time.Time `json:"timestamp"`
}

// handlePush accepts a clipboard change over REST and feeds it through the
// same ingest path as a wire session. The pushing device receives no echo on
// its own live session because the change carries its device id.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var it item.Item
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20)).Decode(&it); err != nil {
		writeError(w, http.StatusBadRequest, "invalid clip payload")
		return
	}

	userID, err := s.authorize(r, it.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	it.UserID = userID

	stamped, err := s.relay.Ingest(r.Context(), "", it)
	if err != nil {
		if errors.Is(err, item.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Persist failure: the change was still broadcast, so report the
		// partial acceptance rather than a hard error.
		writeJSON(w, http.StatusAccepted, pushResponse{
			Persisted: false,
			Timestamp: stamped.StampedAt,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, pushResponse{
		ID:        stamped.ID,
		Persisted: true,
		Timestamp: stamped.StampedAt,
	})
}

// handleHistory returns the most recent clips for a user, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.authorize(r, userID); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	items, err := s.store.LastN(r.Context(), userID, limit)
	if err != nil {
		slog.Error("history query failed", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if items == nil {
		items = []item.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// authorize resolves the acting user from the Authorization header. The same
// credentials a wire JOIN carries are accepted here: a bearer JWT, the shared
// relay secret, or nothing when the relay is open.
func (s *Server) authorize(r *http.Request, claimedUser string) (string, error) {
	token := r.Header.Get("Authorization")
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	}
	return s.verifier.UserFor(token, claimedUser)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
