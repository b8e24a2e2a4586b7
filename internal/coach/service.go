package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slidebanai/slidebanai/backend-go/internal/db"
	"github.com/slidebanai/slidebanai/backend-go/internal/typeid"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrForbidden = errors.New("forbidden")
)

// FeedbackSource produces coaching notes for a transcript. Feedback is
// best-effort: recording a session never fails because the model did.
type FeedbackSource interface {
	CoachFeedback(ctx context.Context, transcript string, wordsPerMinute float64, fillerCount int) (string, error)
}

type Service struct {
	queries  *db.Queries
	feedback FeedbackSource
}

func NewService(queries *db.Queries, feedback FeedbackSource) *Service {
	return &Service{queries: queries, feedback: feedback}
}

type Session struct {
	ID              string    `json:"id"`
	PresentationID  *string   `json:"presentationId,omitempty"`
	Transcript      string    `json:"transcript"`
	DurationSeconds int       `json:"durationSeconds"`
	Metrics         Metrics   `json:"metrics"`
	Feedback        string    `json:"feedback,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Record analyzes a practice transcript, asks for coaching feedback, and
// persists the session.
func (s *Service) Record(ctx context.Context, userID string, presentationID *string, transcript string, durationSeconds int) (*Session, error) {
	metrics := AnalyzeTranscript(transcript, time.Duration(durationSeconds)*time.Second)

	feedback := ""
	if s.feedback != nil {
		var err error
		feedback, err = s.feedback.CoachFeedback(ctx, transcript, metrics.WordsPerMinute, metrics.FillerCount)
		if err != nil {
			slog.Warn("coach feedback unavailable", "error", err)
			feedback = ""
		}
	}

	dbSess, err := s.queries.CreatePracticeSession(ctx, db.CreatePracticeSessionParams{
		ID:              typeid.NewSessionID(),
		UserID:          userID,
		PresentationID:  presentationID,
		Transcript:      transcript,
		DurationSeconds: int32(durationSeconds),
		WordsPerMinute:  metrics.WordsPerMinute,
		FillerCount:     int32(metrics.FillerCount),
		Feedback:        feedback,
	})
	if err != nil {
		return nil, fmt.Errorf("create practice session: %w", err)
	}

	return dbSessionToSession(dbSess, metrics), nil
}

func (s *Service) Get(ctx context.Context, sessionID, userID string) (*Session, error) {
	dbSess, err := s.queries.GetPracticeSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get practice session: %w", err)
	}
	if dbSess.UserID != userID {
		return nil, ErrForbidden
	}

	metrics := AnalyzeTranscript(dbSess.Transcript, time.Duration(dbSess.DurationSeconds)*time.Second)
	return dbSessionToSession(dbSess, metrics), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Session, error) {
	dbSessions, err := s.queries.ListPracticeSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list practice sessions: %w", err)
	}

	out := make([]Session, len(dbSessions))
	for i, dbSess := range dbSessions {
		metrics := AnalyzeTranscript(dbSess.Transcript, time.Duration(dbSess.DurationSeconds)*time.Second)
		out[i] = *dbSessionToSession(dbSess, metrics)
	}
	return out, nil
}

func dbSessionToSession(dbSess db.PracticeSession, metrics Metrics) *Session {
	return &Session{
		ID:              dbSess.ID,
		PresentationID:  dbSess.PresentationID,
		Transcript:      dbSess.Transcript,
		DurationSeconds: int(dbSess.DurationSeconds),
		Metrics:         metrics,
		Feedback:        dbSess.Feedback,
		CreatedAt:       dbSess.CreatedAt,
	}
}
