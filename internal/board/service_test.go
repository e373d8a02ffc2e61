package board_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdeck/prepdeck/internal/board"
	"github.com/prepdeck/prepdeck/internal/domain"
	"github.com/prepdeck/prepdeck/internal/event"
)

func TestService_UpdateBoard(t *testing.T) {
	s := makeService(t)

	err := s.UpdateBoard(context.Background(), completedEvent("go", "u1", 80))
	require.NoError(t, err)

	// A later session overwrites the entry.
	err = s.UpdateBoard(context.Background(), completedEvent("go", "u1", 60))
	require.NoError(t, err)

	err = s.UpdateBoard(context.Background(), completedEvent("go", "u2", 90))
	require.NoError(t, err)

	b, err := s.GetBoard(context.Background(), board.GetBoardRequest{Technology: "go"})
	require.NoError(t, err)

	want := &domain.Board{
		Technology: "go",
		Entries: []domain.BoardEntry{
			{Username: "u2", Score: 90},
			{Username: "u1", Score: 60},
		},
	}
	assert.Equal(t, want, b)
}

func TestService_GetBoard_NotFound(t *testing.T) {
	s := makeService(t)

	_, err := s.GetBoard(context.Background(), board.GetBoardRequest{Technology: "rust"})
	require.Error(t, err)
}

func TestService_PublishBoardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventSessionCompleted
		}

		outputs struct {
			publishedEvents []domain.EventBoardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"one completion publishes one board update": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventSessionCompleted{
						completedEvent("go", "u1", 80),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1)
				assert.Equal(t, domain.Board{
					Technology: "go",
					Entries: []domain.BoardEntry{
						{Username: "u1", Score: 80},
					},
				}, out.publishedEvents[0].Board)
			},
		},

		"completions for different technologies publish separately": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventSessionCompleted{
						completedEvent("go", "u1", 80),
						completedEvent("python", "u2", 70),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2)
			},
		},

		"same technology within the interval publishes once": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventSessionCompleted{
						completedEvent("go", "u1", 80),
						completedEvent("go", "u2", 70),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameBoardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventBoardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))

			for _, e := range in.receivedEvents {
				err := s.UpdateBoard(context.Background(), e)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *board.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := board.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return board.NewService(c)
}

type options func(c *board.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *board.Config) {
		c.EventBus = eb
	}
}

func completedEvent(technology, username string, score int) domain.EventSessionCompleted {
	return domain.EventSessionCompleted{
		Summary: domain.SessionSummary{
			Username:    username,
			Technology:  technology,
			Score:       score,
			CompletedAt: time.Now(),
		},
	}
}
