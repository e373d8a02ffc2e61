package board

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepdeck/prepdeck/internal/domain"
	"github.com/prepdeck/prepdeck/internal/errors"
	"github.com/prepdeck/prepdeck/internal/event"
)

const publishInterval = 200 * time.Millisecond

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service maintains a per-technology readiness board in redis: users ranked
// by the 0-100 score of their most recent completed session. Updated from
// the session.completed event, so a redis outage never affects the session
// itself.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
			return s.UpdateBoard(ctx, e.(domain.EventSessionCompleted))
		})
	}

	return s
}

type GetBoardRequest struct {
	Technology string
	Limit      int
}

// GetBoard returns the readiness board for a technology, best score first.
func (s *Service) GetBoard(ctx context.Context, req GetBoardRequest) (*domain.Board, error) {
	limit := int64(req.Limit)
	if limit <= 0 {
		limit = 20
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.boardKey(req.Technology), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("board not found: technology=%s", req.Technology))
	}

	entries := make([]domain.BoardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.BoardEntry{
			Username: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Board{
		Technology: req.Technology,
		Entries:    entries,
	}, nil
}

// UpdateBoard overwrites the user's entry with their latest session score.
func (s *Service) UpdateBoard(ctx context.Context, e domain.EventSessionCompleted) error {
	sum := e.Summary
	if sum.Technology == "" || sum.Username == "" {
		return nil
	}

	if err := s.redis.ZAdd(ctx, s.boardKey(sum.Technology), redis.Z{
		Score:  float64(sum.Score),
		Member: sum.Username,
	}).Err(); err != nil {
		return fmt.Errorf("update board: %w", err)
	}

	return s.schedulePublishBoard(ctx, sum)
}

// schedulePublishBoard debounces board.updated events: completions landing
// within the publish interval for the same technology produce one event.
func (s *Service) schedulePublishBoard(ctx context.Context, sum domain.SessionSummary) error {
	ok, err := s.redis.SetNX(ctx, s.boardTimeKey(sum.Technology), sum.CompletedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishBoard(ctx, sum.Technology)
}

func (s *Service) publishBoard(ctx context.Context, technology string) error {
	b, err := s.GetBoard(ctx, GetBoardRequest{Technology: technology})
	if err != nil {
		return fmt.Errorf("get board failed: technology=%s: %w", technology, err)
	}

	s.eb.Publish(ctx, domain.EventBoardUpdated{
		Board: *b,
	})

	return nil
}

func (s *Service) boardKey(technology string) string {
	return fmt.Sprintf("%s:%s:board", s.prefix, technology)
}

func (s *Service) boardTimeKey(technology string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, technology)
}
