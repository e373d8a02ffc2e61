package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/prepdeck/prepdeck/internal/domain"
)

// correctThreshold is the minimum 1-10 score counted as a correct answer.
const correctThreshold = 6

// Summarize derives the persisted summary record from a completed session.
// The evaluator scores on a 1-10 scale; the stored Score is the rounded
// 0-100 average of those scores.
func Summarize(s domain.Session) domain.SessionSummary {
	sum := domain.SessionSummary{
		Username:       s.Username,
		Technology:     s.Selections.Technology,
		Role:           s.Selections.Role,
		Level:          s.Selections.Level,
		Company:        s.Selections.Company,
		QuestionTypes:  questionTypeStrings(s.Selections.QuestionTypes),
		TotalQuestions: len(s.Questions),
	}

	if s.CompletedAt != nil {
		sum.CompletedAt = *s.CompletedAt
		sum.DurationMinutes = int(s.CompletedAt.Sub(s.CreatedAt).Round(time.Minute) / time.Minute)
	}

	if len(s.Answers) == 0 {
		return sum
	}

	total := decimal.Zero
	for _, a := range s.Answers {
		total = total.Add(decimal.NewFromInt(int64(a.Score)))
		if a.Score >= correctThreshold {
			sum.CorrectAnswers++
		}
	}

	avg := total.Div(decimal.NewFromInt(int64(len(s.Answers))))
	sum.Score = int(avg.Mul(decimal.NewFromInt(10)).Round(0).IntPart())

	return sum
}
