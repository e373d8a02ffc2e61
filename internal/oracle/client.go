package oracle

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/prepdeck/prepdeck/internal/errors"
	"github.com/prepdeck/prepdeck/internal/telemetry"
)

// Action names, shared with the HTTP envelope of the AI endpoint.
const (
	ActionGenerateQuestion    = "generate-question"
	ActionEvaluateAnswer      = "evaluate-answer"
	ActionAnalyzeGap          = "analyze-gap"
	ActionGenerateCoverLetter = "generate-cover-letter"
	ActionGenerateRoadmap     = "generate-roadmap"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to the hosted AI gateway. The gateway is a black box: it is
// prompted for JSON but replies with free text, so every response goes
// through ExtractObject before use.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewClient(c Config) (*Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("oracle: API key is required")
	}
	if c.Model == "" {
		return nil, fmt.Errorf("oracle: model is required")
	}

	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       c.Model,
		temperature: float32(c.Temperature),
		maxTokens:   c.MaxTokens,
		timeout:     timeout,
	}, nil
}

type QuestionRequest struct {
	Technology        string
	Role              string
	Level             string
	Company           string
	QuestionTypes     []string
	PreviousQuestions []string
}

type GeneratedQuestion struct {
	Question string `json:"question"`
	Type     string `json:"type"`
}

// GenerateQuestion asks the gateway for one new interview question. The
// previously-asked list is advisory only: nothing enforces non-duplication
// if the model disregards it. Type is passed through without validation
// against the known set.
func (c *Client) GenerateQuestion(ctx context.Context, req QuestionRequest) (GeneratedQuestion, error) {
	var q GeneratedQuestion

	raw, err := c.complete(ctx, ActionGenerateQuestion, questionPrompt(req))
	if err != nil {
		return q, err
	}

	if err := ExtractObject(raw, &q); err != nil {
		return q, errors.Internal(err)
	}

	if q.Question == "" || q.Type == "" {
		return q, errors.Internal(fmt.Errorf("oracle: incomplete question object: %q", raw))
	}

	return q, nil
}

type EvaluationRequest struct {
	Question string
	Answer   string
	Type     string
	Level    string
	Role     string
}

type Evaluation struct {
	Score        int      `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// EvaluateAnswer scores one question/answer pair. The score is documented
// as 1-10 but is stored and returned unvalidated.
func (c *Client) EvaluateAnswer(ctx context.Context, req EvaluationRequest) (Evaluation, error) {
	var ev Evaluation

	raw, err := c.complete(ctx, ActionEvaluateAnswer, evaluationPrompt(req))
	if err != nil {
		return ev, err
	}

	if err := ExtractObject(raw, &ev); err != nil {
		return ev, errors.Internal(err)
	}

	return ev, nil
}

type GapAnalysisRequest struct {
	Resume         string
	JobDescription string
}

type GapAnalysis struct {
	MatchScore      int      `json:"match_score"`
	MissingSkills   []string `json:"missing_skills"`
	MatchingSkills  []string `json:"matching_skills"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
}

func (c *Client) AnalyzeGap(ctx context.Context, req GapAnalysisRequest) (GapAnalysis, error) {
	var ga GapAnalysis

	raw, err := c.complete(ctx, ActionAnalyzeGap, gapAnalysisPrompt(req))
	if err != nil {
		return ga, err
	}

	if err := ExtractObject(raw, &ga); err != nil {
		return ga, errors.Internal(err)
	}

	return ga, nil
}

type CoverLetterRequest struct {
	Resume         string
	JobDescription string
	Role           string
	Company        string
}

type CoverLetter struct {
	CoverLetter string `json:"cover_letter"`
}

func (c *Client) GenerateCoverLetter(ctx context.Context, req CoverLetterRequest) (CoverLetter, error) {
	var cl CoverLetter

	raw, err := c.complete(ctx, ActionGenerateCoverLetter, coverLetterPrompt(req))
	if err != nil {
		return cl, err
	}

	if err := ExtractObject(raw, &cl); err != nil {
		return cl, errors.Internal(err)
	}

	return cl, nil
}

type RoadmapRequest struct {
	Technology string
	Role       string
	Level      string
	Weeks      int
}

type Roadmap struct {
	Weeks []RoadmapWeek `json:"weeks"`

	Summary string `json:"summary"`
}

type RoadmapWeek struct {
	Week      int      `json:"week"`
	Focus     string   `json:"focus"`
	Topics    []string `json:"topics"`
	Resources []string `json:"resources"`
}

func (c *Client) GenerateRoadmap(ctx context.Context, req RoadmapRequest) (Roadmap, error) {
	var rm Roadmap

	if req.Weeks <= 0 {
		req.Weeks = 8
	}

	raw, err := c.complete(ctx, ActionGenerateRoadmap, roadmapPrompt(req))
	if err != nil {
		return rm, err
	}

	if err := ExtractObject(raw, &rm); err != nil {
		return rm, errors.Internal(err)
	}

	return rm, nil
}

func (c *Client) complete(ctx context.Context, action, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		cerr := classify(err)
		telemetry.ObserveOracleRequest(action, outcome(cerr), time.Since(start))
		return "", cerr
	}

	telemetry.ObserveOracleRequest(action, "ok", time.Since(start))

	if len(resp.Choices) == 0 {
		return "", errors.Internal(fmt.Errorf("oracle: empty completion for action %s", action))
	}

	return resp.Choices[0].Message.Content, nil
}

// classify maps a gateway failure onto the two user-facing kinds. Rate
// limiting is detected structurally from HTTP 429 when possible, with a
// case-insensitive "rate"/"busy" substring match as a fallback for gateways
// that only report free text.
func classify(err error) error {
	status := 0
	msg := err.Error()

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
		msg = apiErr.Message
	}

	switch {
	case status == http.StatusTooManyRequests || looksRateLimited(msg):
		return errors.New(errors.CodeRateLimited,
			errors.WithMessagef("the AI assistant is busy right now, wait a moment and retry"),
			errors.WithCause(err),
		)
	case status == http.StatusPaymentRequired:
		return errors.New(errors.CodeQuotaExceeded,
			errors.WithMessagef("AI quota exhausted"),
			errors.WithCause(err),
		)
	default:
		return errors.Internal(err)
	}
}

func looksRateLimited(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "rate") || strings.Contains(msg, "busy")
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errors.CodeRateLimited):
		return "rate_limited"
	case errors.Is(err, errors.CodeQuotaExceeded):
		return "quota_exceeded"
	default:
		return "error"
	}
}
