package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/prepdeck/prepdeck/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	SummaryNotification struct {
		SessionID       string `json:"session_id"`
		Technology      string `json:"technology"`
		Score           int    `json:"score"`
		CorrectAnswers  int    `json:"correct_answers"`
		TotalQuestions  int    `json:"total_questions"`
		DurationMinutes int    `json:"duration_minutes"`
	}

	BoardNotification struct {
		Technology string                   `json:"technology"`
		Entries    []BoardNotificationEntry `json:"entries"`
	}

	BoardNotificationEntry struct {
		Username string  `json:"username"`
		Score    float64 `json:"score"`
	}
)

// PublishSessionCompleted notifies the completing user that their results
// landed. Best effort like everything downstream of session.completed.
func (a *API) PublishSessionCompleted(ctx context.Context, e domain.EventSessionCompleted) error {
	data := SummaryNotification{
		SessionID:       e.Session.SessionID,
		Technology:      e.Summary.Technology,
		Score:           e.Summary.Score,
		CorrectAnswers:  e.Summary.CorrectAnswers,
		TotalQuestions:  e.Summary.TotalQuestions,
		DurationMinutes: e.Summary.DurationMinutes,
	}

	return a.publishNotification(ctx, e.Session.Username, e.Name(), data)
}

// PublishBoardUpdated fans the refreshed board out to every user on it.
func (a *API) PublishBoardUpdated(ctx context.Context, e domain.EventBoardUpdated) error {
	b := e.Board

	data := BoardNotification{
		Technology: b.Technology,
		Entries:    make([]BoardNotificationEntry, 0, len(b.Entries)),
	}

	for _, entry := range b.Entries {
		data.Entries = append(data.Entries, BoardNotificationEntry{
			Username: entry.Username,
			Score:    entry.Score,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Username, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
