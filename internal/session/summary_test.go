package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prepdeck/prepdeck/internal/domain"
	"github.com/prepdeck/prepdeck/internal/session"
)

func TestSummarize(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	completed := created.Add(17*time.Minute + 40*time.Second)

	s := domain.Session{
		Username: "u1",
		Selections: domain.Selections{
			Technology:    "go",
			Role:          "software-engineer",
			Level:         "l2",
			Company:       "acme",
			QuestionTypes: []domain.QuestionType{domain.QuestionTypeTechnical},
		},
		Questions: []domain.Question{
			{QuestionID: "q1"}, {QuestionID: "q2"}, {QuestionID: "q3"},
		},
		Answers: map[string]domain.Answer{
			"q1": {QuestionID: "q1", Score: 9},
			"q2": {QuestionID: "q2", Score: 5},
			"q3": {QuestionID: "q3", Score: 8},
		},
		CreatedAt:   created,
		CompletedAt: &completed,
	}

	sum := session.Summarize(s)

	assert.Equal(t, "u1", sum.Username)
	assert.Equal(t, 3, sum.TotalQuestions)
	assert.Equal(t, 2, sum.CorrectAnswers, "scores below 6 are not correct")
	assert.Equal(t, 73, sum.Score, "(9+5+8)/3 = 7.33 on 1-10, 73 on 0-100")
	assert.Equal(t, 18, sum.DurationMinutes, "duration rounds to nearest minute")
	assert.Equal(t, []string{"technical"}, sum.QuestionTypes)
}

func TestSummarize_NoAnswers(t *testing.T) {
	created := time.Now()
	completed := created.Add(time.Minute)

	sum := session.Summarize(domain.Session{
		CreatedAt:   created,
		CompletedAt: &completed,
		Answers:     map[string]domain.Answer{},
	})

	assert.Zero(t, sum.Score)
	assert.Zero(t, sum.CorrectAnswers)
}
