package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdeck/prepdeck/internal/api"
	"github.com/prepdeck/prepdeck/internal/oracle"
	"github.com/prepdeck/prepdeck/internal/session"
)

func TestAPI_CORSPreflight(t *testing.T) {
	e := makeAPI(t, gatewayStub(t))

	w := doRequest(e, http.MethodOptions, "/api/ai", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestAPI_InvokeAI(t *testing.T) {
	tests := map[string]struct {
		handler    http.HandlerFunc
		body       string
		wantStatus int
		assert     func(t *testing.T, resp map[string]any)
	}{
		"generate-question returns question and type": {
			handler:    gatewayStub(t),
			body:       `{"action":"generate-question","context":{"technology":"go","role":"software-engineer","level":"l2","questionTypes":["technical"],"previousQuestions":[]}}`,
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "Explain hash maps", resp["question"])
				assert.Equal(t, "technical", resp["type"])
			},
		},

		"evaluate-answer returns score and feedback": {
			handler:    gatewayStub(t),
			body:       `{"action":"evaluate-answer","context":{"question":"Explain hash maps","answer":"A hash map uses a hash function...","type":"technical","level":"l2","role":"software-engineer"}}`,
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, float64(8), resp["score"])
				assert.Equal(t, "Good", resp["feedback"])
				assert.Equal(t, []any{"clarity"}, resp["strengths"])
			},
		},

		"rate limited gateway maps to 429": {
			handler:    errorStub(http.StatusTooManyRequests, "rate limit exceeded"),
			body:       `{"action":"generate-question","context":{"role":"software-engineer","level":"l2"}}`,
			wantStatus: http.StatusTooManyRequests,
			assert: func(t *testing.T, resp map[string]any) {
				assert.NotEmpty(t, resp["error"])
			},
		},

		"gateway failure maps to 500 with error envelope": {
			handler:    errorStub(http.StatusInternalServerError, "boom"),
			body:       `{"action":"generate-question","context":{"role":"software-engineer","level":"l2"}}`,
			wantStatus: http.StatusInternalServerError,
			assert: func(t *testing.T, resp map[string]any) {
				assert.NotEmpty(t, resp["error"])
			},
		},

		"quota exhaustion maps to 402": {
			handler:    errorStub(http.StatusPaymentRequired, "quota exhausted"),
			body:       `{"action":"generate-question","context":{"role":"software-engineer","level":"l2"}}`,
			wantStatus: http.StatusPaymentRequired,
			assert:     func(t *testing.T, resp map[string]any) {},
		},

		"unknown action is rejected": {
			handler:    gatewayStub(t),
			body:       `{"action":"summon-recruiter","context":{}}`,
			wantStatus: http.StatusBadRequest,
			assert: func(t *testing.T, resp map[string]any) {
				assert.Contains(t, resp["error"], "unknown action")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			e := makeAPI(t, tt.handler)

			w := doRequest(e, http.MethodPost, "/api/ai", strings.NewReader(tt.body))

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			tt.assert(t, resp)
		})
	}
}

func TestAPI_SessionFlow(t *testing.T) {
	e := makeAPI(t, gatewayStub(t))

	// Start a session.
	w := doRequest(e, http.MethodPost, "/api/sessions",
		strings.NewReader(`{"username":"u1","technology":"go","role":"software-engineer","level":"l2"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Session struct {
			SessionID string `json:"session_id"`
			State     string `json:"state"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Session.SessionID)
	assert.Equal(t, "awaiting_question", created.Session.State)

	id := created.Session.SessionID

	// First question.
	w = doRequest(e, http.MethodPost, "/api/sessions/"+id+"/question", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var questioned struct {
		Question struct {
			QuestionID string `json:"question_id"`
			Text       string `json:"text"`
		} `json:"question"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &questioned))
	assert.Equal(t, "Explain hash maps", questioned.Question.Text)

	// Empty answer is rejected without advancing.
	w = doRequest(e, http.MethodPost, "/api/sessions/"+id+"/answer",
		strings.NewReader(`{"answer":"  "}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Real answer.
	w = doRequest(e, http.MethodPost, "/api/sessions/"+id+"/answer",
		strings.NewReader(`{"answer":"A hash map uses a hash function..."}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var answered struct {
		Answer struct {
			Score    int    `json:"score"`
			Feedback string `json:"feedback"`
		} `json:"answer"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answered))
	assert.Equal(t, 8, answered.Answer.Score)
	assert.Equal(t, "round_complete", answered.State)

	// Session view shows one question, one answer.
	w = doRequest(e, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched struct {
		Session struct {
			State     string           `json:"state"`
			Questions []map[string]any `json:"questions"`
			Answers   []map[string]any `json:"answers"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "round_complete", fetched.Session.State)
	assert.Len(t, fetched.Session.Questions, 1)
	assert.Len(t, fetched.Session.Answers, 1)

	// Abandon discards the session.
	w = doRequest(e, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(e, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func makeAPI(t *testing.T, gateway http.HandlerFunc) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(gateway)
	t.Cleanup(srv.Close)

	oc, err := oracle.NewClient(oracle.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
	})
	require.NoError(t, err)

	e := gin.New()
	api.New(api.Config{
		Engine: e,
		Session: session.NewService(session.Config{
			Oracle: oc,
		}),
		Oracle: oc,
	})

	return e
}

func doRequest(e *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

// gatewayStub plays the AI gateway: it answers evaluation prompts with a
// fixed evaluation and everything else with a fixed question, wrapped in
// prose to exercise the extraction path.
func gatewayStub(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read gateway request: %v", err)
		}

		content := "Here you go:\n{\"question\":\"Explain hash maps\",\"type\":\"technical\"}"
		if bytes.Contains(body, []byte("Evaluate this interview answer")) {
			content = "{\"score\":8,\"feedback\":\"Good\",\"strengths\":[\"clarity\"],\"improvements\":[\"depth\"]}"
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func errorStub(status int, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": msg, "type": "server_error"},
		})
	}
}
