package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/prepdeck/prepdeck/internal/api"
	"github.com/prepdeck/prepdeck/internal/board"
	"github.com/prepdeck/prepdeck/internal/event"
	"github.com/prepdeck/prepdeck/internal/history"
	"github.com/prepdeck/prepdeck/internal/oracle"
	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Board struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		History struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Oracle struct {
		APIKey         string
		BaseURL        string
		Model          string
		Temperature    float64
		MaxTokens      int
		TimeoutSeconds int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			board  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			history *pgxpool.Pool
		}

		oracle *oracle.Client
	}

	service struct {
		session *session.Service
		history *history.Service
		board   *board.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := s.initOracle(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.board, err = connect(s.c.Redis.Board.Addrs, s.c.Redis.Board.Pass)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := s.c.Postgres.History

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", h.User, h.Pass, h.Addr, h.Name))
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	s.infra.postgres.history = db
	return nil
}

func (s *Server) initOracle() error {
	c, err := oracle.NewClient(oracle.Config{
		APIKey:      s.c.Oracle.APIKey,
		BaseURL:     s.c.Oracle.BaseURL,
		Model:       s.c.Oracle.Model,
		Temperature: s.c.Oracle.Temperature,
		MaxTokens:   s.c.Oracle.MaxTokens,
		Timeout:     time.Duration(s.c.Oracle.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	s.infra.oracle = c
	return nil
}

func (s *Server) initService() {
	s.service.session = session.NewService(session.Config{
		Oracle:   s.infra.oracle,
		EventBus: s.eb,
	})

	s.service.history = history.NewService(history.Config{
		DB:       s.infra.postgres.history,
		EventBus: s.eb,
	})

	s.service.board = board.NewService(board.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.board,
		Prefix:   s.c.Redis.Board.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		History:      s.service.history,
		Board:        s.service.board,
		Oracle:       s.infra.oracle,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.history.Close()
	if err := s.infra.redis.board.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis board failed", "error", err)
	}
	if err := s.infra.redis.pubsub.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis pubsub failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
