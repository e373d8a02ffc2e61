package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdeck/prepdeck/internal/domain"
	"github.com/prepdeck/prepdeck/internal/errors"
	"github.com/prepdeck/prepdeck/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus

	// Now is a clock override for tests. Defaults to time.Now.
	Now func() time.Time
}

// Service persists completed-session summaries and the rolling per-user
// statistics. It runs off the session.completed event: a write failure is
// logged by the bus and swallowed, never surfaced to the completing user.
type Service struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		db:  c.DB,
		now: now,
	}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
			return s.RecordCompletedSession(ctx, e.(domain.EventSessionCompleted))
		})
	}

	return s
}

// RecordCompletedSession writes the summary record and folds it into the
// user's profile stats in one transaction.
func (s *Service) RecordCompletedSession(ctx context.Context, e domain.EventSessionCompleted) (err error) {
	sum := e.Summary

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const insSummaryStmt = `
INSERT INTO session_summaries
	(username, technology, role, level, company, question_types,
	 total_questions, correct_answers, score, duration_minutes, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	_, err = tx.Exec(ctx, insSummaryStmt,
		sum.Username, sum.Technology, sum.Role, sum.Level, sum.Company, sum.QuestionTypes,
		sum.TotalQuestions, sum.CorrectAnswers, sum.Score, sum.DurationMinutes, sum.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert summary: %w", err)
	}

	if err = s.updateProfile(ctx, tx, sum); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Service) updateProfile(ctx context.Context, tx pgx.Tx, sum domain.SessionSummary) error {
	const selStmt = `
SELECT current_streak, last_practice_date
FROM profiles
WHERE username = $1
FOR UPDATE;`

	var (
		current int
		last    *time.Time
	)
	err := tx.QueryRow(ctx, selStmt, sum.Username).Scan(&current, &last)
	if err != nil && !stderrors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("history: read profile: %w", err)
	}

	today := s.now()
	streak := NextStreak(current, last, today)

	const upsertStmt = `
INSERT INTO profiles
	(username, total_sessions, total_questions, current_streak, longest_streak, last_practice_date)
VALUES ($1, 1, $2, $3, $3, $4)
ON CONFLICT (username) DO UPDATE SET
	total_sessions     = profiles.total_sessions + 1,
	total_questions    = profiles.total_questions + $2,
	current_streak     = $3,
	longest_streak     = GREATEST(profiles.longest_streak, $3),
	last_practice_date = $4;`

	_, err = tx.Exec(ctx, upsertStmt, sum.Username, sum.TotalQuestions, streak, today)
	if err != nil {
		return fmt.Errorf("history: upsert profile: %w", err)
	}

	return nil
}

// GetProfile returns the rolling stats for one user.
func (s *Service) GetProfile(ctx context.Context, username string) (*domain.ProfileStats, error) {
	const stmt = `
SELECT username, total_sessions, total_questions, current_streak, longest_streak, last_practice_date
FROM profiles
WHERE username = $1;`

	p := domain.ProfileStats{}
	err := s.db.QueryRow(ctx, stmt, username).Scan(
		&p.Username, &p.TotalSessions, &p.TotalQuestions,
		&p.CurrentStreak, &p.LongestStreak, &p.LastPracticeDate,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("profile not found: %s", username))
	}
	if err != nil {
		return nil, fmt.Errorf("history: read profile: %w", err)
	}

	return &p, nil
}

type ListSummariesRequest struct {
	Username string
	Limit    int
}

// ListSummaries returns a user's completed sessions, newest first.
func (s *Service) ListSummaries(ctx context.Context, req ListSummariesRequest) ([]domain.SessionSummary, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	const stmt = `
SELECT username, technology, role, level, company, question_types,
	total_questions, correct_answers, score, duration_minutes, completed_at
FROM session_summaries
WHERE username = $1
ORDER BY completed_at DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, req.Username, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list summaries: %w", err)
	}

	sums, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.SessionSummary, error) {
		var sum domain.SessionSummary
		if err := r.Scan(
			&sum.Username, &sum.Technology, &sum.Role, &sum.Level, &sum.Company, &sum.QuestionTypes,
			&sum.TotalQuestions, &sum.CorrectAnswers, &sum.Score, &sum.DurationMinutes, &sum.CompletedAt,
		); err != nil {
			return domain.SessionSummary{}, err
		}
		return sum, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: collect summaries: %w", err)
	}

	return sums, nil
}
