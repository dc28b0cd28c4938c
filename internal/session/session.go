// Package session runs study sessions: it admits a learner, builds the queue,
// applies ratings and persists cursor, log and summary updates as it goes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/conorfennell/studyq/internal/admission"
	"github.com/conorfennell/studyq/internal/cursor"
	"github.com/conorfennell/studyq/internal/domain"
	"github.com/conorfennell/studyq/internal/queue"
	"github.com/conorfennell/studyq/internal/report"
	"github.com/conorfennell/studyq/internal/srs"
	"github.com/conorfennell/studyq/internal/srssource"
	"github.com/conorfennell/studyq/internal/storage"
	"github.com/google/uuid"
)

var (
	// ErrNotStudying is returned when a session that is not studying is rated or exited.
	ErrNotStudying = errors.New("session: not studying")
	// ErrSessionNotFound is returned by hosts that look sessions up by id.
	ErrSessionNotFound = errors.New("session: not found")
)

// Phase is the state of a session. Phases only move forward.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseStudying  Phase = "studying"
	PhaseCompleted Phase = "completed"
)

// DenialUnauthenticated is the denial reason for a request without a learner.
const DenialUnauthenticated = "unauthenticated"

// Denial explains why a session stayed idle.
type Denial struct {
	Reason     string        `json:"reason"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Store is the persistence the orchestrator needs. *storage.DB implements it.
type Store interface {
	srssource.Store
	GetDeck(ctx context.Context, id string) (*domain.Deck, error)
	GetOrCreateCursor(ctx context.Context, userID, deckID string) (domain.CursorState, error)
	SaveCursor(ctx context.Context, s domain.CursorState) error
	MaxSortPosition(ctx context.Context, deckID string) (int, error)
	AppendLog(ctx context.Context, e domain.LogEntry) error
	CountNewStudiedSince(ctx context.Context, userID, deckID string, since time.Time) (int, error)
	SaveSummary(ctx context.Context, s domain.SessionSummary) error
}

// Policy holds the study settings of a deployment.
type Policy struct {
	// AbortOnWriteError makes Rate return a failed scheduling or log write
	// instead of logging it and moving on.
	AbortOnWriteError bool
	// DailyNewLimit caps new cards per srs day. Zero leaves srs new cards
	// capped by the batch size only.
	DailyNewLimit int
	// DayStartHour is the UTC hour an srs day starts at.
	DayStartHour int
}

// DefaultPolicy returns the policy used when none is given.
func DefaultPolicy() Policy {
	return Policy{DailyNewLimit: 20, DayStartHour: 4}
}

// Request asks for a new session.
type Request struct {
	UserID string
	DeckID string
	Mode   domain.StudyMode
	// BatchSize is only honoured by modes that allow it. Zero leaves the
	// mode default in place, which for sequential_review is the cursor batch.
	BatchSize   float64
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Orchestrator starts sessions against one set of collaborators.
type Orchestrator struct {
	store     Store
	admission admission.Checker
	sink      report.Sink
	policy    Policy
	now       func() time.Time
	rand      *rand.Rand
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRand sets the source used to shuffle random queues. It must not be
// shared between goroutines.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rand = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// New returns an orchestrator. A nil sink drops summaries after they are saved.
func New(store Store, checker admission.Checker, sink report.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		admission: checker,
		sink:      sink,
		policy:    DefaultPolicy(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session is one run through a queue of cards. Its methods are safe for
// concurrent use; calls are applied one at a time.
type Session struct {
	mu sync.Mutex
	o  *Orchestrator

	id     string
	userID string
	deckID string
	mode   domain.StudyMode

	phase  Phase
	denial *Denial

	source      srssource.Source
	settings    domain.SrsSettings
	cursor      domain.CursorState
	maxPosition int

	queue     []domain.Card
	newCount  int
	index     int
	requeue   *queue.Requeue
	rated     []cursor.Studied
	cardStart time.Time
	summary   domain.SessionSummary
}

// Start admits the learner and builds the session queue. A denied request
// returns an idle session carrying a Denial. An empty queue returns a
// completed session. The error is only set for an unknown mode or a
// cancelled context.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Session, error) {
	if _, err := queue.StrategyFor(req.Mode); err != nil {
		return nil, err
	}

	s := &Session{
		o:       o,
		id:      uuid.NewString(),
		userID:  req.UserID,
		deckID:  req.DeckID,
		mode:    req.Mode,
		phase:   PhaseIdle,
		requeue: queue.NewRequeue(),
	}

	if req.UserID == "" {
		s.denial = &Denial{Reason: DenialUnauthenticated}
		return s, nil
	}
	d := o.admission.Check(ctx, req.UserID, admission.OpStudySessionStart, admission.ResStudySessionsDaily, 1)
	if !d.Allowed {
		o.logger.Info("session denied", "user_id", req.UserID, "deck_id", req.DeckID, "reason", d.Reason)
		s.denial = &Denial{Reason: string(d.Reason), RetryAfter: d.RetryAfter}
		return s, nil
	}

	now := o.now()
	s.phase = PhaseLoading
	s.load(ctx, req, now)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to load session for deck %s: %w", req.DeckID, err)
	}

	s.summary = domain.SessionSummary{
		UserID:     req.UserID,
		DeckID:     req.DeckID,
		StudyMode:  req.Mode,
		TotalCards: len(s.queue),
		Ratings:    make(map[string]int),
		StartedAt:  now,
	}

	if len(s.queue) == 0 {
		s.phase = PhaseCompleted
		s.summary.CompletedAt = now
		o.logger.Info("no cards to study", "user_id", req.UserID, "deck_id", req.DeckID, "study_mode", req.Mode)
		return s, nil
	}

	if err := o.admission.RecordSuccess(ctx, req.UserID, admission.ResStudySessionsDaily, 1); err != nil {
		o.logger.Warn("failed to record session start", "user_id", req.UserID, "error", err)
	}
	s.phase = PhaseStudying
	s.cardStart = now
	o.logger.Info("session started",
		"session_id", s.id,
		"user_id", req.UserID,
		"deck_id", req.DeckID,
		"study_mode", req.Mode,
		"cards", len(s.queue),
	)
	return s, nil
}

// load gathers everything the queue needs. A failed lookup is logged and
// treated as an empty result.
func (s *Session) load(ctx context.Context, req Request, now time.Time) {
	o := s.o

	deck, err := o.store.GetDeck(ctx, req.DeckID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn("failed to load deck", "deck_id", req.DeckID, "error", err)
		}
		deck = nil
	}
	s.source = srssource.Resolve(deck, req.UserID)
	s.settings = deck.Settings()

	s.cursor, err = o.store.GetOrCreateCursor(ctx, req.UserID, req.DeckID)
	if err != nil {
		o.logger.Warn("failed to load cursor", "deck_id", req.DeckID, "error", err)
		s.cursor = domain.NewCursorState("", req.UserID, req.DeckID)
	}

	s.maxPosition, err = o.store.MaxSortPosition(ctx, req.DeckID)
	if err != nil {
		o.logger.Warn("failed to load max position", "deck_id", req.DeckID, "error", err)
		s.maxPosition = 0
	}

	cards, err := s.source.Load(ctx, o.store, req.DeckID)
	if err != nil {
		o.logger.Warn("failed to load cards", "deck_id", req.DeckID, "source", s.source.Kind(), "error", err)
		cards = nil
	}

	p := queue.Params{
		Now:         now,
		Cursor:      s.cursor,
		MaxPosition: s.maxPosition,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
		Rand:        o.rand,
	}
	if queue.BatchSizeConfigurable(req.Mode) && req.BatchSize != 0 {
		p.BatchSize = queue.ClampBatchSize(req.BatchSize)
	}
	if req.Mode == domain.ModeSRS {
		p.NewCardLimit = s.newCardLimit(ctx, req, now)
	}

	if req.Mode == domain.ModeSequentialReview {
		newCards, reviewCards := queue.Split(cards, p)
		s.queue = append(newCards, reviewCards...)
		s.newCount = len(newCards)
		return
	}
	// The mode was validated by Start.
	s.queue, _ = queue.Build(req.Mode, cards, p)
}

// newCardLimit is the srs daily allowance left for this deck.
func (s *Session) newCardLimit(ctx context.Context, req Request, now time.Time) int {
	o := s.o
	if o.policy.DailyNewLimit <= 0 {
		return 0
	}
	studied, err := o.store.CountNewStudiedSince(ctx, req.UserID, req.DeckID, DayStart(now, o.policy.DayStartHour))
	if err != nil {
		o.logger.Warn("failed to count new cards studied today", "deck_id", req.DeckID, "error", err)
		studied = 0
	}
	if left := o.policy.DailyNewLimit - studied; left > 0 {
		return left
	}
	return -1
}

// DayStart returns the most recent UTC instant at hour that is not after now.
func DayStart(now time.Time, hour int) time.Time {
	t := now.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
	if t.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Rate applies rating to the current card and moves to the next one.
func (s *Session) Rate(ctx context.Context, rating srs.Rating, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseStudying {
		return ErrNotStudying
	}
	if !rating.IsValid() {
		return fmt.Errorf("%w: %d", srs.ErrInvalidRating, int(rating))
	}

	card := s.queue[s.index]
	elapsed := max(now.Sub(s.cardStart).Milliseconds(), 0)
	entry := domain.LogEntry{
		UserID:           s.userID,
		CardID:           card.ID,
		DeckID:           s.deckID,
		StudyMode:        s.mode,
		Rating:           rating.String(),
		PrevStatus:       card.Status,
		PrevInterval:     card.IntervalDays,
		NewInterval:      card.IntervalDays,
		PrevEase:         card.EaseFactor,
		NewEase:          card.EaseFactor,
		ReviewDurationMs: elapsed,
		StudiedAt:        now,
	}

	var next domain.Scheduling
	if s.mode == domain.ModeSRS {
		next = srs.NextState(card.Scheduling, rating, &s.settings, now)
		entry.NewInterval = next.IntervalDays
		entry.NewEase = next.EaseFactor
		if err := s.source.Write(ctx, s.o.store, card, next); err != nil {
			if err := s.writeFailed("save scheduling of card "+card.ID, err); err != nil {
				return err
			}
		}
	}
	if err := s.o.store.AppendLog(ctx, entry); err != nil {
		if err := s.writeFailed("append study log for card "+card.ID, err); err != nil {
			return err
		}
	}

	s.summary.CardsStudied++
	s.summary.TotalDurationMs += elapsed
	s.summary.Ratings[rating.String()]++
	studied := cursor.Studied{SortPosition: card.SortPosition, Status: card.Status}
	if s.mode == domain.ModeSequentialReview && s.index >= s.newCount {
		// Cards from the review half only move the review watermark.
		studied.Status = domain.StatusReview
	}
	s.rated = append(s.rated, studied)

	if s.mode == domain.ModeSequentialReview {
		s.saveCursor(ctx, cursor.AdvanceSequentialReview(s.rated, s.cursor, s.maxPosition))
	}

	if s.mode == domain.ModeSRS && next.Status == domain.StatusLearning {
		again := card
		again.Scheduling = next
		s.queue, _ = s.requeue.Insert(s.queue, s.index, again)
		s.summary.TotalCards = len(s.queue)
	}

	s.index++
	s.cardStart = now
	if s.index >= len(s.queue) {
		s.complete(ctx, now)
	}
	return nil
}

// Exit ends a studying session before the queue runs out. The time spent on
// the current card counts towards the session duration. Exiting before any
// card was rated completes the session without writing a summary or moving
// a cursor.
func (s *Session) Exit(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseStudying {
		return ErrNotStudying
	}
	s.summary.TotalDurationMs += max(now.Sub(s.cardStart).Milliseconds(), 0)
	s.complete(ctx, now)
	return nil
}

func (s *Session) writeFailed(action string, err error) error {
	if s.o.policy.AbortOnWriteError {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	s.o.logger.Warn("failed to "+action, "session_id", s.id, "error", err)
	return nil
}

func (s *Session) saveCursor(ctx context.Context, next domain.CursorState) {
	if err := s.o.store.SaveCursor(ctx, next); err != nil {
		s.o.logger.Warn("failed to save cursor", "session_id", s.id, "deck_id", s.deckID, "error", err)
	}
}

func (s *Session) complete(ctx context.Context, now time.Time) {
	s.phase = PhaseCompleted
	s.summary.CompletedAt = now

	if s.mode == domain.ModeSequential && len(s.rated) > 0 {
		s.saveCursor(ctx, cursor.AdvanceSequential(s.rated, s.cursor, s.maxPosition))
	}

	s.o.logger.Info("session finished",
		"session_id", s.id,
		"user_id", s.userID,
		"deck_id", s.deckID,
		"cards_studied", s.summary.CardsStudied,
		"total_cards", s.summary.TotalCards,
	)

	if s.summary.CardsStudied == 0 {
		return
	}
	if err := s.o.store.SaveSummary(ctx, s.summary); err != nil {
		s.o.logger.Warn("failed to save session summary", "session_id", s.id, "error", err)
		return
	}
	if s.o.sink == nil {
		return
	}
	if err := s.o.sink.Publish(ctx, s.summary); err != nil {
		s.o.logger.Warn("failed to publish session summary", "session_id", s.id, "error", err)
	}
}

// View is a snapshot of a session for callers outside the package.
type View struct {
	ID      string                `json:"id"`
	UserID  string                `json:"user_id"`
	DeckID  string                `json:"deck_id"`
	Mode    domain.StudyMode      `json:"study_mode"`
	Phase   Phase                 `json:"phase"`
	Denial  *Denial               `json:"denial,omitempty"`
	Current *domain.Card          `json:"current,omitempty"`
	Index   int                   `json:"index"`
	Total   int                   `json:"total"`
	Summary domain.SessionSummary `json:"summary"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:      s.id,
		UserID:  s.userID,
		DeckID:  s.deckID,
		Mode:    s.mode,
		Phase:   s.phase,
		Denial:  s.denial,
		Index:   s.index,
		Total:   len(s.queue),
		Summary: s.summary,
	}
	if s.phase == PhaseStudying {
		c := s.queue[s.index]
		v.Current = &c
	}
	v.Summary.Ratings = maps.Clone(s.summary.Ratings)
	return v
}

func (s *Session) ID() string {
	return s.id
}

// UserID returns the learner the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Denial returns why the session was not started, or nil.
func (s *Session) Denial() *Denial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.denial
}
