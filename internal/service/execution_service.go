package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codequest-edu/codequest-go-api/internal/models"
	"github.com/codequest-edu/codequest-go-api/pkg/judge"
)

// ErrUnsupportedLanguage indicates the requested language has no judge mapping.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// judgeLanguageIDs maps language names to the judge's language identifiers.
var judgeLanguageIDs = map[string]int{
	"c":          50,
	"cpp":        54,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"python":     71,
}

// ExecutionSummary aggregates the per-case outcomes of one submission run.
type ExecutionSummary struct {
	Total       int    `json:"total"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	AllPassed   bool   `json:"all_passed"`
	TotalTimeMS int64  `json:"total_time_ms"`
	Language    string `json:"language"`
}

// ExecutionReport carries every graded case plus the summary. Results are
// always in test-case order and always complete: per-case failures are
// recorded, never raised.
type ExecutionReport struct {
	Results []judge.CaseResult `json:"results"`
	Summary ExecutionSummary   `json:"summary"`
}

// ExecutionService grades one submission against a set of test cases.
type ExecutionService interface {
	Execute(ctx context.Context, source, language string, cases []models.TestCase) (ExecutionReport, error)
}

// ExecutionConfig tunes how test cases are driven through the judge.
type ExecutionConfig struct {
	// CaseDelay is the fixed pause between consecutive judge calls. Cases
	// run sequentially on purpose: the remote judge is rate limited, and a
	// burst of parallel submissions trades robustness for nothing.
	CaseDelay time.Duration
}

type executionService struct {
	client judge.Client
	cfg    ExecutionConfig
	sleep  func(context.Context, time.Duration) error
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewExecutionService constructs the execution service.
func NewExecutionService(client judge.Client, cfg ExecutionConfig, logger zerolog.Logger) ExecutionService {
	return &executionService{
		client: client,
		cfg:    cfg,
		sleep:  sleepContext,
		tracer: otel.Tracer("github.com/codequest-edu/codequest-go-api/internal/service/execution"),
		logger: logger.With().Str("component", "execution_service").Logger(),
	}
}

// SupportedLanguage reports whether the language has a judge mapping.
func SupportedLanguage(language string) bool {
	_, ok := judgeLanguageIDs[normalizeLanguage(language)]
	return ok
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

func (s *executionService) Execute(ctx context.Context, source, language string, cases []models.TestCase) (ExecutionReport, error) {
	normalized := normalizeLanguage(language)
	languageID, ok := judgeLanguageIDs[normalized]
	if !ok {
		return ExecutionReport{}, ErrUnsupportedLanguage
	}

	ctx, span := s.tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.String("execution.language", normalized),
		attribute.Int("execution.cases", len(cases)),
	))
	defer span.End()

	report := ExecutionReport{
		Results: make([]judge.CaseResult, 0, len(cases)),
		Summary: ExecutionSummary{Total: len(cases), Language: normalized},
	}

	for i, tc := range cases {
		if i > 0 && s.cfg.CaseDelay > 0 {
			if err := s.sleep(ctx, s.cfg.CaseDelay); err != nil {
				return ExecutionReport{}, err
			}
		}

		result := s.runCase(ctx, source, languageID, tc)
		report.Results = append(report.Results, result)

		if result.Passed {
			report.Summary.Passed++
		} else {
			report.Summary.Failed++
		}
		report.Summary.TotalTimeMS += result.TimeMS
	}

	report.Summary.AllPassed = report.Summary.Total > 0 && report.Summary.Passed == report.Summary.Total
	return report, nil
}

// runCase drives one test case through the judge. Transport failures become
// a failed case result so the remaining cases still run.
func (s *executionService) runCase(ctx context.Context, source string, languageID int, tc models.TestCase) judge.CaseResult {
	token, err := s.client.Submit(ctx, source, languageID, tc.Input)
	if err != nil {
		s.logger.Warn().Err(err).Uint("test_case_id", tc.ID).Msg("judge submit failed")
		return failedCase(tc, err)
	}

	result, err := s.client.Wait(ctx, token)
	if err != nil {
		s.logger.Warn().Err(err).Str("token", token).Uint("test_case_id", tc.ID).Msg("judge poll failed")
		return failedCase(tc, err)
	}

	return judge.Grade(result, tc.Input, tc.Expected)
}

func failedCase(tc models.TestCase, err error) judge.CaseResult {
	return judge.CaseResult{
		Input:        tc.Input,
		Expected:     tc.Expected,
		Passed:       false,
		ErrorMessage: err.Error(),
		Verdict:      judge.VerdictExecutionError,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
