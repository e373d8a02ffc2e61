package domain

import (
	"time"
)

// QuestionType categorizes a generated interview question. The oracle is
// asked to stay within the four known types, but its answer is stored as-is,
// so callers must tolerate types outside this set.
type QuestionType string

const (
	QuestionTypeTechnical       QuestionType = "technical"
	QuestionTypeBehavioral      QuestionType = "behavioral"
	QuestionTypeSystemDesign    QuestionType = "system-design"
	QuestionTypeDomainKnowledge QuestionType = "domain-knowledge"
)

// AllQuestionTypes is the default set requested when the user picks none.
func AllQuestionTypes() []QuestionType {
	return []QuestionType{
		QuestionTypeTechnical,
		QuestionTypeBehavioral,
		QuestionTypeSystemDesign,
		QuestionTypeDomainKnowledge,
	}
}

// SessionState is the orchestrator's position in the interview state machine.
type SessionState string

const (
	StateAwaitingQuestion   SessionState = "awaiting_question"
	StateAwaitingAnswer     SessionState = "awaiting_answer"
	StateAwaitingEvaluation SessionState = "awaiting_evaluation"
	StateRoundComplete      SessionState = "round_complete"
	StateSessionComplete    SessionState = "session_complete"
	StateErrored            SessionState = "errored"
)

// ErrorKind is the user-facing failure category in the Errored state.
// Rate limiting is the only kind that carries an actionable hint.
type ErrorKind string

const (
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindGeneral     ErrorKind = "general"
)

// ErrorAction names the oracle call that failed, so a retry can re-invoke
// exactly the same step.
type ErrorAction string

const (
	ErrorActionGenerate ErrorAction = "generate"
	ErrorActionEvaluate ErrorAction = "evaluate"
)

// Selections are the setup choices confirmed by the user before a session
// starts. Role and Level are required; Company is optional.
type Selections struct {
	Technology    string
	Role          string
	Level         string
	Company       string
	QuestionTypes []QuestionType
}

// Session represents one practice run of a fixed number of rounds.
type Session struct {
	SessionID  string
	Username   string
	Selections Selections

	// Questions is append-only and grows one per round.
	Questions []Question

	// Answers is keyed by question ID; resubmission replaces the entry.
	// Every key must reference a question already in Questions.
	Answers map[string]Answer

	State SessionState

	// LastError is set only in StateErrored.
	LastError *SessionError

	// PendingAnswer keeps the submitted answer text between evaluation
	// attempts, so a retried evaluation resends the same content.
	PendingAnswer string

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// SessionError records what failed and how it was classified.
type SessionError struct {
	Action ErrorAction
	Kind   ErrorKind
	// Message is operator-facing detail, never shown raw to users.
	Message string
}

// Completed reports whether the session is frozen.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// CurrentQuestion returns the most recently generated question, if any.
func (s *Session) CurrentQuestion() (Question, bool) {
	if len(s.Questions) == 0 {
		return Question{}, false
	}
	return s.Questions[len(s.Questions)-1], true
}

// Question is one prompt shown to the user. Immutable once created.
type Question struct {
	QuestionID string
	Text       string
	Type       QuestionType
	Difficulty string
}

// Answer is the user's response to one question plus its evaluation.
// An Answer exists only after evaluation succeeded; there is no
// partially-evaluated form.
type Answer struct {
	QuestionID   string
	Text         string
	Score        int // 1-10 scale, passed through from the evaluator unvalidated
	Feedback     string
	Strengths    []string
	Improvements []string
}

// SessionSummary is the record persisted once per completed session and
// never mutated afterward. Score is the 0-100 rounded average.
type SessionSummary struct {
	Username        string
	Technology      string
	Role            string
	Level           string
	Company         string
	QuestionTypes   []string
	TotalQuestions  int
	CorrectAnswers  int
	Score           int
	DurationMinutes int
	CompletedAt     time.Time
}

// ProfileStats are the rolling per-user counters updated alongside each
// summary write.
type ProfileStats struct {
	Username         string
	TotalSessions    int
	TotalQuestions   int
	CurrentStreak    int
	LongestStreak    int
	LastPracticeDate *time.Time
}

// Board is a per-technology ranking of users by rolling average score,
// sorted descending.
type Board struct {
	Technology string
	Entries    []BoardEntry
}

type BoardEntry struct {
	Username string
	Score    float64
}
