package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conorfennell/studyq/internal/admission"
	"github.com/conorfennell/studyq/internal/domain"
	"github.com/conorfennell/studyq/internal/session"
	"github.com/conorfennell/studyq/internal/srs"
	"github.com/go-playground/validator/v10"
)

// LearnerHeader carries the authenticated learner id, set by the gateway in
// front of the server.
const LearnerHeader = "X-Learner-ID"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	// DefaultIdleTimeout is how long a running session may go untouched
	// before the server forgets it.
	DefaultIdleTimeout = 2 * time.Hour
)

// SummaryLister reads past session summaries.
type SummaryLister interface {
	ListSummaries(ctx context.Context, userID, deckID string, limit int) ([]domain.SessionSummary, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	orchestrator *session.Orchestrator
	history      SummaryLister
	checker      admission.Checker
	router       *http.ServeMux
	validate     *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
	idleTimeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*tracked
}

// tracked is a running session and the last time its learner touched it.
type tracked struct {
	sess     *session.Session
	lastSeen time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithIdleTimeout sets how long a running session is kept without requests.
// A non-positive d keeps the default.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// NewServer creates and configures a new server.
func NewServer(o *session.Orchestrator, history SummaryLister, checker admission.Checker, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orchestrator: o,
		history:      history,
		checker:      checker,
		router:       http.NewServeMux(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
		now:          time.Now,
		idleTimeout:  DefaultIdleTimeout,
		sessions:     make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.router.Handle("POST /sessions", s.learner(s.handleStartSession()))
	s.router.Handle("GET /sessions/{id}", s.learner(s.handleGetSession()))
	s.router.Handle("POST /sessions/{id}/ratings", s.learner(s.handleRate()))
	s.router.Handle("POST /sessions/{id}/exit", s.learner(s.handleExit()))
	s.router.Handle("GET /decks/{id}/sessions", s.learner(s.handleListSessions()))
}

type learnerKey struct{}

func learnerID(r *http.Request) string {
	id, _ := r.Context().Value(learnerKey{}).(string)
	return id
}

// learner requires the learner header and applies the per-learner API rate
// limit and daily request quota.
func (s *Server) learner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(LearnerHeader)
		if id == "" {
			writeError(w, http.StatusUnauthorized, session.DenialUnauthenticated)
			return
		}

		d := s.checker.Check(r.Context(), id, admission.OpAPICall, admission.ResAPIRequestsDaily, 1)
		if !d.Allowed {
			writeDenied(w, d.RetryAfter, string(d.Reason))
			return
		}
		if err := s.checker.RecordSuccess(r.Context(), id, admission.ResAPIRequestsDaily, 1); err != nil {
			s.logger.Warn("failed to record api request", "user_id", id, "error", err)
		}

		ctx := context.WithValue(r.Context(), learnerKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type startRequest struct {
	DeckID      string     `json:"deck_id" validate:"required"`
	StudyMode   string     `json:"study_mode" validate:"required"`
	BatchSize   float64    `json:"batch_size"`
	CreatedFrom *time.Time `json:"created_from"`
	CreatedTo   *time.Time `json:"created_to"`
}

type rateRequest struct {
	Rating srs.Rating `json:"rating" validate:"required"`
}

// handleStartSession admits the learner and builds a session queue.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if !s.decode(w, r, &req) {
			return
		}
		mode, err := domain.ParseStudyMode(req.StudyMode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		sess, err := s.orchestrator.Start(r.Context(), session.Request{
			UserID:      learnerID(r),
			DeckID:      req.DeckID,
			Mode:        mode,
			BatchSize:   req.BatchSize,
			CreatedFrom: req.CreatedFrom,
			CreatedTo:   req.CreatedTo,
		})
		if err != nil {
			s.logger.Error("failed to start session", "deck_id", req.DeckID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start session")
			return
		}

		view := sess.View()
		if view.Denial != nil {
			w.Header().Set("Retry-After", retryAfter(view.Denial.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, view)
			return
		}
		if view.Phase == session.PhaseStudying {
			s.track(sess)
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.lookup(r)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess.View())
	}
}

// handleRate applies a rating to the current card of a session.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.lookup(r)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		var req rateRequest
		if !s.decode(w, r, &req) {
			return
		}

		if err := sess.Rate(r.Context(), req.Rating, s.now()); err != nil {
			s.writeSessionError(w, sess, err)
			return
		}
		s.forgetCompleted(sess)
		writeJSON(w, http.StatusOK, sess.View())
	}
}

func (s *Server) handleExit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.lookup(r)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err := sess.Exit(r.Context(), s.now()); err != nil {
			s.writeSessionError(w, sess, err)
			return
		}
		s.forgetCompleted(sess)
		writeJSON(w, http.StatusOK, sess.View())
	}
}

// handleListSessions returns the learner's past sessions on a deck.
func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		deckID := r.PathValue("id")
		summaries, err := s.history.ListSummaries(r.Context(), learnerID(r), deckID, limit)
		if err != nil {
			s.logger.Error("failed to list sessions", "deck_id", deckID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list sessions")
			return
		}
		if summaries == nil {
			summaries = []domain.SessionSummary{}
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// track registers a running session and drops the ones left idle.
func (s *Server) track(sess *session.Session) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, t := range s.sessions {
		if now.Sub(t.lastSeen) >= s.idleTimeout {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", "count", evicted, "running", len(s.sessions))
	}
	s.sessions[sess.ID()] = &tracked{sess: sess, lastSeen: now}
}

// lookup finds a running session owned by the requesting learner and
// restarts its idle timer.
func (s *Server) lookup(r *http.Request) (*session.Session, error) {
	id := r.PathValue("id")
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[id]
	if ok && now.Sub(t.lastSeen) >= s.idleTimeout {
		delete(s.sessions, id)
		ok = false
	}
	if !ok || t.sess.UserID() != learnerID(r) {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	t.lastSeen = now
	return t.sess, nil
}

// forgetCompleted drops a finished session; its summary is in the history.
func (s *Server) forgetCompleted(sess *session.Session) {
	if sess.Phase() != session.PhaseCompleted {
		return
	}
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}

func (s *Server) writeSessionError(w http.ResponseWriter, sess *session.Session, err error) {
	switch {
	case errors.Is(err, session.ErrNotStudying):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, srs.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("failed to update session", "session_id", sess.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rating")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeDenied(w http.ResponseWriter, retry time.Duration, reason string) {
	w.Header().Set("Retry-After", retryAfter(retry))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: reason, RetryAfter: retry.String()})
}

// retryAfter renders a delay in whole seconds, rounded up.
func retryAfter(d time.Duration) string {
	secs := (d + time.Second - 1) / time.Second
	return strconv.FormatInt(int64(max(secs, 0)), 10)
}
