package integration_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codequest-edu/codequest-go-api/internal/config"
	"github.com/codequest-edu/codequest-go-api/internal/dto"
	"github.com/codequest-edu/codequest-go-api/internal/handler"
	"github.com/codequest-edu/codequest-go-api/internal/models"
	"github.com/codequest-edu/codequest-go-api/internal/repository"
	"github.com/codequest-edu/codequest-go-api/internal/router"
	"github.com/codequest-edu/codequest-go-api/internal/service"
	"github.com/codequest-edu/codequest-go-api/pkg/judge"
)

// fakeJudge mimics the remote judge wire protocol: submissions that contain
// "echo" in their source echo stdin back, everything else prints garbage.
type fakeJudge struct {
	mu      sync.Mutex
	nextID  int
	outputs map[string]string
}

func newFakeJudge() *fakeJudge {
	return &fakeJudge{outputs: map[string]string{}}
}

func (f *fakeJudge) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			SourceCode string `json:"source_code"`
			LanguageID int    `json:"language_id"`
			Stdin      string `json:"stdin"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}

		source, _ := base64.StdEncoding.DecodeString(payload.SourceCode)
		stdin, _ := base64.StdEncoding.DecodeString(payload.Stdin)

		output := "garbage"
		if strings.Contains(string(source), "echo") {
			output = string(stdin)
		}

		f.mu.Lock()
		f.nextID++
		token := fmt.Sprintf("tok-%d", f.nextID)
		f.outputs[token] = output
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(strings.SplitN(r.URL.Path, "?", 2)[0], "/submissions/")

		f.mu.Lock()
		output, ok := f.outputs[token]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":  token,
			"status": map[string]interface{}{"id": 3, "description": "Accepted"},
			"stdout": base64.StdEncoding.EncodeToString([]byte(output)),
			"time":   "0.01",
			"memory": 1024.0,
		})
	})
	return mux
}

func setupExamStack(t *testing.T, judgeURL string) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Problem{}, &models.TestCase{}, &models.Submission{},
		&models.ExamSession{}, &models.SessionProblem{},
	))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	judgeClient := judge.NewHTTPClient(judge.Config{
		BaseURL:         judgeURL,
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 3,
	}, logger, judge.WithSleep(func(context.Context, time.Duration) error { return nil }))

	problemRepo := repository.NewProblemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	sessionRepo := repository.NewExamSessionRepository(db)

	catalog := service.NewProblemCatalog(problemRepo, nil, time.Minute, logger)
	executor := service.NewExecutionService(judgeClient, service.ExecutionConfig{}, logger)
	events := service.NewSessionEventPublisher(nil, "", logger)
	sessionService := service.NewSessionService(sessionRepo, submissionRepo, catalog, executor, events,
		validate, service.SessionConfig{}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SessionHandler: handler.NewSessionHandler(sessionService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(400))
			return c.Next()
		},
	})

	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func TestExamSessionEndToEnd(t *testing.T) {
	judgeServer := httptest.NewServer(newFakeJudge().handler())
	defer judgeServer.Close()

	app, db := setupExamStack(t, judgeServer.URL)

	// Two problems whose expected output equals the input, so an "echo"
	// program passes and anything else fails.
	for i := 0; i < 2; i++ {
		problem := models.Problem{
			Title:      fmt.Sprintf("Echo %d", i+1),
			Difficulty: models.DifficultyLevel1,
			Category:   "e2e",
			Language:   "python",
			Points:     100,
			Active:     true,
			TestCases: []models.TestCase{
				{Input: "hello", Expected: "hello", Position: 0},
				{Input: "world", Expected: "world", Position: 1, Hidden: true},
			},
		}
		require.NoError(t, db.Create(&problem).Error)
	}

	resp, raw := doJSON(t, app, "POST", "/api/v2/exam/sessions", dto.StartSessionRequest{
		Level: models.DifficultyLevel1, Category: "e2e", Language: "python",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var started struct {
		Data dto.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &started))
	require.Equal(t, 2, started.Data.TotalProblems)

	var problems []models.Problem
	require.NoError(t, db.Where("category = ?", "e2e").Order("id").Find(&problems).Error)

	// First problem solved correctly, second one not.
	resp, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/v2/exam/sessions/%d/problems", started.Data.ID), dto.SubmitProblemRequest{
		ProblemID: problems[0].ID, Language: "python", Source: "echo(input())",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = doJSON(t, app, "POST", fmt.Sprintf("/api/v2/exam/sessions/%d/submit", started.Data.ID), dto.SubmitAllRequest{
		Submissions: []dto.ProblemSubmission{
			{ProblemID: problems[1].ID, Language: "python", Source: "print('broken')"},
		},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var final struct {
		Data dto.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &final))
	require.Equal(t, models.SessionStatusSubmitted, final.Data.Status)
	require.Equal(t, 1, final.Data.CompletedProblems)
	require.InDelta(t, 50.0, final.Data.TotalScore, 0.001)

	// The stored submissions carry per-case verdicts from the judge run.
	var stored []models.Submission
	require.NoError(t, db.Where("session_id = ?", started.Data.ID).Order("order_index").Find(&stored).Error)
	require.Len(t, stored, 2)
	require.Equal(t, models.SubmissionStatusAccepted, stored[0].Status)
	require.Equal(t, 2, stored[0].TestsPassed)
	require.Equal(t, models.SubmissionStatusWrongAnswer, stored[1].Status)
	require.Equal(t, 0, stored[1].TestsPassed)
}
