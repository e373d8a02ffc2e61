package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/prepdeck/prepdeck/internal/board"
	"github.com/prepdeck/prepdeck/internal/domain"
	"github.com/prepdeck/prepdeck/internal/errors"
	"github.com/prepdeck/prepdeck/internal/event"
	"github.com/prepdeck/prepdeck/internal/history"
	"github.com/prepdeck/prepdeck/internal/oracle"
	"github.com/prepdeck/prepdeck/internal/session"
)

// Oracle is the slice of the AI gateway the stateless /api/ai endpoint
// proxies to.
type Oracle interface {
	GenerateQuestion(ctx context.Context, req oracle.QuestionRequest) (oracle.GeneratedQuestion, error)
	EvaluateAnswer(ctx context.Context, req oracle.EvaluationRequest) (oracle.Evaluation, error)
	AnalyzeGap(ctx context.Context, req oracle.GapAnalysisRequest) (oracle.GapAnalysis, error)
	GenerateCoverLetter(ctx context.Context, req oracle.CoverLetterRequest) (oracle.CoverLetter, error)
	GenerateRoadmap(ctx context.Context, req oracle.RoadmapRequest) (oracle.Roadmap, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Session      *session.Service
	History      *history.Service
	Board        *board.Service
	Oracle       Oracle
	Redis        Redis
	PubsubPrefix string
}

type API struct {
	session *session.Service
	history *history.Service
	board   *board.Service
	oracle  Oracle

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		session: c.Session,
		history: c.History,
		board:   c.Board,
		oracle:  c.Oracle,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
	}

	e := c.Engine
	e.Use(corsMiddleware())
	e.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	r := e.Group("/api")
	r.POST("/ai", a.invokeAI)
	r.POST("/sessions", a.startSession)
	r.GET("/sessions/:id", a.getSession)
	r.POST("/sessions/:id/question", a.nextQuestion)
	r.POST("/sessions/:id/answer", a.submitAnswer)
	r.POST("/sessions/:id/retry", a.retry)
	r.DELETE("/sessions/:id", a.abandonSession)
	r.GET("/profiles/:username", a.getProfile)
	r.GET("/profiles/:username/sessions", a.listSummaries)
	r.GET("/boards/:technology", a.getBoard)

	// Notification fanout over redis pubsub.
	if c.EventBus != nil && c.Redis != nil {
		c.EventBus.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
			return a.PublishSessionCompleted(ctx, e.(domain.EventSessionCompleted))
		})
		c.EventBus.Subscribe(domain.EventNameBoardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishBoardUpdated(ctx, e.(domain.EventBoardUpdated))
		})
	}

	return a
}

// corsMiddleware applies the open CORS policy of the public endpoints.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// invokeAI is the action envelope endpoint: {action, context} in, a flat
// JSON object or {error} out. 429 marks rate limiting, 402 exhausted quota,
// 500 everything else.
func (a *API) invokeAI(c *gin.Context) {
	var req struct {
		Action  string          `json:"action"`
		Context json.RawMessage `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	switch req.Action {
	case oracle.ActionGenerateQuestion:
		a.generateQuestion(c, req.Context)
	case oracle.ActionEvaluateAnswer:
		a.evaluateAnswer(c, req.Context)
	case oracle.ActionAnalyzeGap:
		a.analyzeGap(c, req.Context)
	case oracle.ActionGenerateCoverLetter:
		a.generateCoverLetter(c, req.Context)
	case oracle.ActionGenerateRoadmap:
		a.generateRoadmap(c, req.Context)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
	}
}

func (a *API) generateQuestion(c *gin.Context, raw json.RawMessage) {
	var ctx struct {
		Technology        string   `json:"technology"`
		Role              string   `json:"role"`
		Level             string   `json:"level"`
		Company           string   `json:"company"`
		QuestionTypes     []string `json:"questionTypes"`
		PreviousQuestions []string `json:"previousQuestions"`
	}
	if !bindContext(c, raw, &ctx) {
		return
	}

	q, err := a.oracle.GenerateQuestion(c.Request.Context(), oracle.QuestionRequest{
		Technology:        ctx.Technology,
		Role:              ctx.Role,
		Level:             ctx.Level,
		Company:           ctx.Company,
		QuestionTypes:     ctx.QuestionTypes,
		PreviousQuestions: ctx.PreviousQuestions,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"question": q.Question, "type": q.Type})
}

func (a *API) evaluateAnswer(c *gin.Context, raw json.RawMessage) {
	var ctx struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		Type     string `json:"type"`
		Level    string `json:"level"`
		Role     string `json:"role"`
	}
	if !bindContext(c, raw, &ctx) {
		return
	}

	ev, err := a.oracle.EvaluateAnswer(c.Request.Context(), oracle.EvaluationRequest{
		Question: ctx.Question,
		Answer:   ctx.Answer,
		Type:     ctx.Type,
		Level:    ctx.Level,
		Role:     ctx.Role,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"score":        ev.Score,
		"feedback":     ev.Feedback,
		"strengths":    emptyIfNil(ev.Strengths),
		"improvements": emptyIfNil(ev.Improvements),
	})
}

func (a *API) analyzeGap(c *gin.Context, raw json.RawMessage) {
	var ctx struct {
		Resume         string `json:"resume"`
		JobDescription string `json:"jobDescription"`
	}
	if !bindContext(c, raw, &ctx) {
		return
	}

	ga, err := a.oracle.AnalyzeGap(c.Request.Context(), oracle.GapAnalysisRequest{
		Resume:         ctx.Resume,
		JobDescription: ctx.JobDescription,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matchScore":      ga.MatchScore,
		"missingSkills":   emptyIfNil(ga.MissingSkills),
		"matchingSkills":  emptyIfNil(ga.MatchingSkills),
		"recommendations": emptyIfNil(ga.Recommendations),
		"summary":         ga.Summary,
	})
}

func (a *API) generateCoverLetter(c *gin.Context, raw json.RawMessage) {
	var ctx struct {
		Resume         string `json:"resume"`
		JobDescription string `json:"jobDescription"`
		Role           string `json:"role"`
		Company        string `json:"company"`
	}
	if !bindContext(c, raw, &ctx) {
		return
	}

	cl, err := a.oracle.GenerateCoverLetter(c.Request.Context(), oracle.CoverLetterRequest{
		Resume:         ctx.Resume,
		JobDescription: ctx.JobDescription,
		Role:           ctx.Role,
		Company:        ctx.Company,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coverLetter": cl.CoverLetter})
}

func (a *API) generateRoadmap(c *gin.Context, raw json.RawMessage) {
	var ctx struct {
		Technology string `json:"technology"`
		Role       string `json:"role"`
		Level      string `json:"level"`
		Weeks      int    `json:"weeks"`
	}
	if !bindContext(c, raw, &ctx) {
		return
	}

	rm, err := a.oracle.GenerateRoadmap(c.Request.Context(), oracle.RoadmapRequest{
		Technology: ctx.Technology,
		Role:       ctx.Role,
		Level:      ctx.Level,
		Weeks:      ctx.Weeks,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, rm)
}

func (a *API) startSession(c *gin.Context) {
	var req struct {
		Username      string   `json:"username"`
		Technology    string   `json:"technology"`
		Role          string   `json:"role"`
		Level         string   `json:"level"`
		Company       string   `json:"company"`
		QuestionTypes []string `json:"questionTypes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	s, err := a.session.StartSession(c.Request.Context(), session.StartSessionRequest{
		Username:      req.Username,
		Technology:    req.Technology,
		Role:          req.Role,
		Level:         req.Level,
		Company:       req.Company,
		QuestionTypes: req.QuestionTypes,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": sessionView(s)})
}

func (a *API) getSession(c *gin.Context) {
	s, err := a.session.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sessionView(s)})
}

func (a *API) nextQuestion(c *gin.Context) {
	q, err := a.session.NextQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"question": questionView(q)})
}

func (a *API) submitAnswer(c *gin.Context) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	ans, err := a.session.SubmitAnswer(c.Request.Context(), c.Param("id"), req.Answer)
	if err != nil {
		abortError(c, err)
		return
	}

	s, err := a.session.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer": answerView(ans),
		"state":  s.State,
	})
}

func (a *API) retry(c *gin.Context) {
	s, err := a.session.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sessionView(s)})
}

func (a *API) abandonSession(c *gin.Context) {
	if err := a.session.Abandon(c.Request.Context(), c.Param("id")); err != nil {
		abortError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) getProfile(c *gin.Context) {
	p, err := a.history.GetProfile(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":           p.Username,
		"total_sessions":     p.TotalSessions,
		"total_questions":    p.TotalQuestions,
		"current_streak":     p.CurrentStreak,
		"longest_streak":     p.LongestStreak,
		"last_practice_date": p.LastPracticeDate,
	})
}

func (a *API) listSummaries(c *gin.Context) {
	sums, err := a.history.ListSummaries(c.Request.Context(), history.ListSummariesRequest{
		Username: c.Param("username"),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	views := make([]gin.H, 0, len(sums))
	for _, sum := range sums {
		views = append(views, summaryView(sum))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (a *API) getBoard(c *gin.Context) {
	b, err := a.board.GetBoard(c.Request.Context(), board.GetBoardRequest{
		Technology: c.Param("technology"),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	entries := make([]gin.H, 0, len(b.Entries))
	for _, e := range b.Entries {
		entries = append(entries, gin.H{"username": e.Username, "score": e.Score})
	}

	c.JSON(http.StatusOK, gin.H{"technology": b.Technology, "entries": entries})
}

// abortError renders the shared {error} envelope with the status mapped
// from the error's code.
func abortError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}

func bindContext(c *gin.Context, raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing context"})
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed context"})
		return false
	}
	return true
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func sessionView(s *domain.Session) gin.H {
	questions := make([]gin.H, 0, len(s.Questions))
	for _, q := range s.Questions {
		questions = append(questions, questionView(q))
	}

	// Answers rendered in question order.
	answers := make([]gin.H, 0, len(s.Answers))
	for _, q := range s.Questions {
		if ans, ok := s.Answers[q.QuestionID]; ok {
			answers = append(answers, answerView(ans))
		}
	}

	v := gin.H{
		"session_id": s.SessionID,
		"username":   s.Username,
		"state":      s.State,
		"selections": gin.H{
			"technology":     s.Selections.Technology,
			"role":           s.Selections.Role,
			"level":          s.Selections.Level,
			"company":        s.Selections.Company,
			"question_types": s.Selections.QuestionTypes,
		},
		"questions":  questions,
		"answers":    answers,
		"created_at": s.CreatedAt.Format(time.RFC3339),
	}

	if s.CompletedAt != nil {
		v["completed_at"] = s.CompletedAt.Format(time.RFC3339)
	}

	if s.LastError != nil {
		v["error"] = gin.H{
			"action": s.LastError.Action,
			"kind":   s.LastError.Kind,
		}
	}

	return v
}

func questionView(q domain.Question) gin.H {
	return gin.H{
		"question_id": q.QuestionID,
		"text":        q.Text,
		"type":        q.Type,
		"difficulty":  q.Difficulty,
	}
}

func answerView(a domain.Answer) gin.H {
	return gin.H{
		"question_id":  a.QuestionID,
		"text":         a.Text,
		"score":        a.Score,
		"feedback":     a.Feedback,
		"strengths":    emptyIfNil(a.Strengths),
		"improvements": emptyIfNil(a.Improvements),
	}
}

func summaryView(sum domain.SessionSummary) gin.H {
	return gin.H{
		"username":         sum.Username,
		"technology":       sum.Technology,
		"role":             sum.Role,
		"level":            sum.Level,
		"company":          sum.Company,
		"question_types":   sum.QuestionTypes,
		"total_questions":  sum.TotalQuestions,
		"correct_answers":  sum.CorrectAnswers,
		"score":            sum.Score,
		"duration_minutes": sum.DurationMinutes,
		"completed_at":     sum.CompletedAt.Format(time.RFC3339),
	}
}
