package questions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/middleware"
	"github.com/certforge/backend/internal/models"
)

var handlerSecret = []byte("handler-secret")

func newTestRouter(env *testEnv) *mux.Router {
	r := mux.NewRouter()
	NewHandler(env.service, logger.Nop()).RegisterRoutes(r, middleware.Auth(handlerSecret))
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		token, err := middleware.IssueToken(handlerSecret, "token-user", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RequiresAuth(t *testing.T) {
	r := newTestRouter(newTestEnv(t))
	rec := doRequest(t, r, http.MethodPost, "/api/v1/generate-questions", models.GenerateQuestionsRequest{ExamID: "exam-1", TotalCount: 1}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_GenerateAttributesJobToTokenUser(t *testing.T) {
	env := newTestEnv(t)
	env.service.newID = func() string { return "job-1" }
	r := newTestRouter(env)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/generate-questions", models.GenerateQuestionsRequest{ExamID: "exam-1", TotalCount: 3, UserID: "someone-else"}, true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp models.GenerateQuestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "job-1", resp.JobID)

	view, err := env.service.Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "token-user", view.UserID)
}

func TestHandler_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"bad json", http.MethodPost, "/api/v1/generate-questions", "not an object", http.StatusBadRequest},
		{"invalid request", http.MethodPost, "/api/v1/generate-questions", models.GenerateQuestionsRequest{ExamID: "exam-1"}, http.StatusBadRequest},
		{"no objectives", http.MethodPost, "/api/v1/generate-questions", models.GenerateQuestionsRequest{ExamID: "exam-empty", TotalCount: 2}, http.StatusBadRequest},
		{"unknown exam", http.MethodPost, "/api/v1/generate-questions", models.GenerateQuestionsRequest{ExamID: "nope", TotalCount: 2}, http.StatusNotFound},
		{"unknown job status", http.MethodGet, "/api/v1/status/ghost", nil, http.StatusNotFound},
		{"unknown job questions", http.MethodGet, "/api/v1/questions/ghost", nil, http.StatusNotFound},
		{"save unknown job", http.MethodPost, "/api/v1/save-questions", models.SaveQuestionsRequest{JobID: "ghost"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, r, tc.method, tc.path, tc.body, true)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())

			var errResp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestHandler_StatusQuestionsAndSave(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.service.newID = func() string { return "job-1" }
	r := newTestRouter(env)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/save-questions", models.SaveQuestionsRequest{JobID: "job-1"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, r, http.MethodPost, "/api/v1/generate-questions", models.GenerateQuestionsRequest{
		ExamID: "exam-1", ObjectiveIDs: []string{"obj-2"}, TotalCount: 2, Difficulty: models.DifficultyEasy,
	}, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, r, http.MethodPost, "/api/v1/save-questions", models.SaveQuestionsRequest{JobID: "job-1"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, env.queue.Drain(ctx, env.worker().Dispatch))

	rec = doRequest(t, r, http.MethodGet, "/api/v1/status/job-1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.JobStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.JobCompleted, view.Status)
	assert.Equal(t, 100, view.CompletionPercentage)

	rec = doRequest(t, r, http.MethodGet, "/api/v1/questions/job-1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var qs models.QuestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &qs))
	assert.Equal(t, 2, qs.Count)
	for _, q := range qs.Questions {
		assert.Equal(t, models.DifficultyEasy, q.Difficulty)
		assert.Equal(t, "obj-2", q.ObjectiveID)
	}

	rec = doRequest(t, r, http.MethodPost, "/api/v1/save-questions", models.SaveQuestionsRequest{JobID: "job-1", ExamID: "exam-1"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved models.SaveQuestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.True(t, saved.Success)
	assert.Equal(t, 2, saved.SavedCount)
	assert.Len(t, saved.QuestionIDs, 2)
}
