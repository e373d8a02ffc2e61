package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/internal/domain"
	"github.com/prepdeck/prepdeck/internal/errors"
	"github.com/prepdeck/prepdeck/internal/event"
	"github.com/prepdeck/prepdeck/internal/oracle"
	"github.com/prepdeck/prepdeck/internal/telemetry"
)

// QuestionsPerSession is the fixed round count of a terminating session.
const QuestionsPerSession = 10

// Oracle is the AI gateway surface the orchestrator depends on.
type Oracle interface {
	GenerateQuestion(ctx context.Context, req oracle.QuestionRequest) (oracle.GeneratedQuestion, error)
	EvaluateAnswer(ctx context.Context, req oracle.EvaluationRequest) (oracle.Evaluation, error)
}

type Config struct {
	Oracle   Oracle
	EventBus *event.Bus

	// Now is a clock override for tests. Defaults to time.Now.
	Now func() time.Time
}

// Service drives the interview state machine: question generation, answer
// evaluation, progression and completion. Sessions live in memory only;
// nothing is persisted until the completion event fires.
type Service struct {
	oracle Oracle
	eb     *event.Bus
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// entry wraps one live session. op serializes oracle calls so a session has
// at most one outstanding request; mu guards the session data itself and is
// never held across a network call.
type entry struct {
	op sync.Mutex
	mu sync.Mutex
	s  *domain.Session
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		oracle:   c.Oracle,
		eb:       c.EventBus,
		now:      now,
		sessions: make(map[string]*entry),
	}
}

type StartSessionRequest struct {
	Username      string
	Technology    string
	Role          string
	Level         string
	Company       string
	QuestionTypes []string
}

// StartSession creates a new session in AwaitingQuestion. Role and level are
// required; an empty question type list defaults to all four known types.
func (svc *Service) StartSession(_ context.Context, req StartSessionRequest) (*domain.Session, error) {
	if req.Role == "" || req.Level == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("role and level are required"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	types := make([]domain.QuestionType, 0, len(req.QuestionTypes))
	for _, t := range req.QuestionTypes {
		types = append(types, domain.QuestionType(t))
	}
	if len(types) == 0 {
		types = domain.AllQuestionTypes()
	}

	s := &domain.Session{
		SessionID: id.String(),
		Username:  req.Username,
		Selections: domain.Selections{
			Technology:    req.Technology,
			Role:          req.Role,
			Level:         req.Level,
			Company:       req.Company,
			QuestionTypes: types,
		},
		Answers:   make(map[string]domain.Answer),
		State:     domain.StateAwaitingQuestion,
		CreatedAt: svc.now(),
	}

	svc.mu.Lock()
	svc.sessions[s.SessionID] = &entry{s: s}
	svc.mu.Unlock()

	return snapshot(s), nil
}

// GetSession returns a copy of the session. It never blocks on an in-flight
// oracle call, so AwaitingEvaluation is observable.
func (svc *Service) GetSession(_ context.Context, id string) (*domain.Session, error) {
	e, err := svc.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.s), nil
}

// NextQuestion requests one question from the oracle and advances the
// session to AwaitingAnswer. Valid from AwaitingQuestion, RoundComplete and
// an Errored state whose failed action was generation.
func (svc *Service) NextQuestion(ctx context.Context, id string) (domain.Question, error) {
	e, err := svc.entry(id)
	if err != nil {
		return domain.Question{}, err
	}

	e.op.Lock()
	defer e.op.Unlock()

	return svc.generate(ctx, e)
}

// SubmitAnswer records the user's answer to the current question and has it
// evaluated. Empty answer text is rejected without a state change.
// Submitting again for an already answered question replaces the prior
// answer.
func (svc *Service) SubmitAnswer(ctx context.Context, id, text string) (domain.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("answer text must not be empty"))
	}

	e, err := svc.entry(id)
	if err != nil {
		return domain.Answer{}, err
	}

	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	s := e.s
	if s.Completed() {
		e.mu.Unlock()
		return domain.Answer{}, errSessionCompleted(s.SessionID)
	}
	if s.State != domain.StateAwaitingAnswer && s.State != domain.StateRoundComplete {
		e.mu.Unlock()
		return domain.Answer{}, errWrongState(s, "submit answer")
	}

	s.PendingAnswer = text
	s.State = domain.StateAwaitingEvaluation
	e.mu.Unlock()

	return svc.evaluate(ctx, e)
}

// Retry re-invokes exactly the action that moved the session into Errored.
// A retried evaluation resends the stored answer text unchanged.
func (svc *Service) Retry(ctx context.Context, id string) (*domain.Session, error) {
	e, err := svc.entry(id)
	if err != nil {
		return nil, err
	}

	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	s := e.s
	if s.State != domain.StateErrored || s.LastError == nil {
		e.mu.Unlock()
		return nil, errWrongState(s, "retry")
	}
	action := s.LastError.Action
	if action == domain.ErrorActionEvaluate {
		s.State = domain.StateAwaitingEvaluation
	}
	e.mu.Unlock()

	switch action {
	case domain.ErrorActionGenerate:
		_, err = svc.generate(ctx, e)
	case domain.ErrorActionEvaluate:
		_, err = svc.evaluate(ctx, e)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.s), nil
}

// Abandon discards a session that did not run to completion.
func (svc *Service) Abandon(_ context.Context, id string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.sessions[id]; !ok {
		return errNotFound(id)
	}

	delete(svc.sessions, id)
	return nil
}

// generate runs the question half of a round. Caller holds e.op.
func (svc *Service) generate(ctx context.Context, e *entry) (domain.Question, error) {
	e.mu.Lock()
	s := e.s
	if s.Completed() {
		e.mu.Unlock()
		return domain.Question{}, errSessionCompleted(s.SessionID)
	}

	validFrom := s.State == domain.StateAwaitingQuestion ||
		s.State == domain.StateRoundComplete ||
		(s.State == domain.StateErrored && s.LastError != nil && s.LastError.Action == domain.ErrorActionGenerate)
	if !validFrom {
		e.mu.Unlock()
		return domain.Question{}, errWrongState(s, "request question")
	}

	// Leaving RoundComplete clears the transient answer state of the
	// previous round.
	s.PendingAnswer = ""
	s.State = domain.StateAwaitingQuestion

	req := oracle.QuestionRequest{
		Technology:        s.Selections.Technology,
		Role:              s.Selections.Role,
		Level:             s.Selections.Level,
		Company:           s.Selections.Company,
		QuestionTypes:     questionTypeStrings(s.Selections.QuestionTypes),
		PreviousQuestions: questionTexts(s.Questions),
	}
	e.mu.Unlock()

	gq, err := svc.oracle.GenerateQuestion(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		svc.fail(s, domain.ErrorActionGenerate, err)
		return domain.Question{}, err
	}

	q := domain.Question{
		QuestionID: uuid.NewString(),
		Text:       gq.Question,
		Type:       domain.QuestionType(gq.Type),
		Difficulty: s.Selections.Level,
	}
	s.Questions = append(s.Questions, q)
	s.State = domain.StateAwaitingAnswer
	s.LastError = nil

	return q, nil
}

// evaluate runs the evaluation half of a round against the stored pending
// answer. Caller holds e.op and has already moved the session into
// AwaitingEvaluation.
func (svc *Service) evaluate(ctx context.Context, e *entry) (domain.Answer, error) {
	e.mu.Lock()
	s := e.s
	q, ok := s.CurrentQuestion()
	if !ok {
		e.mu.Unlock()
		return domain.Answer{}, errors.Internal(fmt.Errorf("session %s has no question to evaluate", s.SessionID))
	}

	req := oracle.EvaluationRequest{
		Question: q.Text,
		Answer:   s.PendingAnswer,
		Type:     string(q.Type),
		Level:    s.Selections.Level,
		Role:     s.Selections.Role,
	}
	e.mu.Unlock()

	ev, err := svc.oracle.EvaluateAnswer(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		svc.fail(s, domain.ErrorActionEvaluate, err)
		return domain.Answer{}, err
	}

	a := domain.Answer{
		QuestionID:   q.QuestionID,
		Text:         req.Answer,
		Score:        ev.Score,
		Feedback:     ev.Feedback,
		Strengths:    ev.Strengths,
		Improvements: ev.Improvements,
	}
	s.Answers[q.QuestionID] = a
	s.State = domain.StateRoundComplete
	s.LastError = nil

	if len(s.Questions) == QuestionsPerSession {
		svc.complete(s)
	}

	return a, nil
}

// complete freezes the session and publishes the one-shot completion event.
// Persistence and board updates hang off that event and never fail the
// completing request.
func (svc *Service) complete(s *domain.Session) {
	now := svc.now()
	s.CompletedAt = &now
	s.State = domain.StateSessionComplete
	s.PendingAnswer = ""

	telemetry.SessionCompleted()

	if svc.eb != nil {
		svc.eb.Publish(context.Background(), domain.EventSessionCompleted{
			Session: *snapshot(s),
			Summary: Summarize(*s),
		})
	}
}

func (svc *Service) fail(s *domain.Session, action domain.ErrorAction, err error) {
	kind := domain.ErrorKindGeneral
	if errors.Is(err, errors.CodeRateLimited) {
		kind = domain.ErrorKindRateLimited
	}

	s.State = domain.StateErrored
	s.LastError = &domain.SessionError{
		Action:  action,
		Kind:    kind,
		Message: errors.Convert(err).Message,
	}
}

func (svc *Service) entry(id string) (*entry, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	e, ok := svc.sessions[id]
	if !ok {
		return nil, errNotFound(id)
	}

	return e, nil
}

func errNotFound(id string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("session not found: %s", id))
}

func errSessionCompleted(id string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session already completed: %s", id))
}

func errWrongState(s *domain.Session, op string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("cannot %s in state %s: session=%s", op, s.State, s.SessionID))
}

func questionTexts(qs []domain.Question) []string {
	texts := make([]string, 0, len(qs))
	for _, q := range qs {
		texts = append(texts, q.Text)
	}
	return texts
}

func questionTypeStrings(ts []domain.QuestionType) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

// snapshot deep-copies a session so callers never share mutable state with
// the store.
func snapshot(s *domain.Session) *domain.Session {
	cp := *s

	cp.Questions = append([]domain.Question(nil), s.Questions...)

	cp.Answers = make(map[string]domain.Answer, len(s.Answers))
	for id, a := range s.Answers {
		a.Strengths = append([]string(nil), a.Strengths...)
		a.Improvements = append([]string(nil), a.Improvements...)
		cp.Answers[id] = a
	}

	cp.Selections.QuestionTypes = append([]domain.QuestionType(nil), s.Selections.QuestionTypes...)

	if s.LastError != nil {
		le := *s.LastError
		cp.LastError = &le
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}

	return &cp
}
