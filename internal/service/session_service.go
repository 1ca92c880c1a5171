package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/codequest-edu/codequest-go-api/internal/dto"
	"github.com/codequest-edu/codequest-go-api/internal/models"
	"github.com/codequest-edu/codequest-go-api/internal/observability"
	"github.com/codequest-edu/codequest-go-api/internal/repository"
	"github.com/codequest-edu/codequest-go-api/pkg/judge"
)

// ErrSessionNotFound indicates the session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionForbidden indicates the caller does not own the session.
var ErrSessionForbidden = errors.New("session belongs to another user")

// ErrSessionExpired indicates the session is terminal or out of time.
var ErrSessionExpired = errors.New("session expired")

// ErrDuplicateSubmission indicates the problem was already submitted in this session.
var ErrDuplicateSubmission = errors.New("problem already submitted in this session")

// ErrProblemNotFound indicates the problem is missing, inactive, or outside the session scope.
var ErrProblemNotFound = errors.New("problem not found in session scope")

// ErrActiveSessionExists indicates the user already has an in-progress session for this scope.
var ErrActiveSessionExists = errors.New("an active session already exists for this scope")

// ErrSessionConflict indicates a concurrent writer modified the session mid-operation.
var ErrSessionConflict = errors.New("session was modified concurrently")

// SessionService runs the timed multi-problem exam session state machine.
type SessionService interface {
	Start(ctx context.Context, userID uint, payload dto.StartSessionRequest) (dto.SessionResponse, error)
	GetStatus(ctx context.Context, userID, sessionID uint) (dto.SessionResponse, error)
	SubmitProblem(ctx context.Context, userID, sessionID uint, payload dto.SubmitProblemRequest) (dto.SessionResponse, dto.SubmissionResponse, error)
	SubmitAll(ctx context.Context, userID, sessionID uint, payload dto.SubmitAllRequest) (dto.SessionResponse, error)
}

// SessionConfig tunes the session engine.
type SessionConfig struct {
	// LevelDurations maps difficulty tiers to exam durations in seconds.
	// Defaults to models.DefaultLevelDurations.
	LevelDurations map[string]int
}

type sessionService struct {
	sessions    repository.ExamSessionRepository
	submissions repository.SubmissionRepository
	catalog     ProblemCatalog
	executor    ExecutionService
	events      SessionEventPublisher
	validator   *validator.Validate
	cfg         SessionConfig
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSessionService constructs the session engine.
func NewSessionService(sessions repository.ExamSessionRepository, submissions repository.SubmissionRepository, catalog ProblemCatalog, executor ExecutionService, events SessionEventPublisher, validate *validator.Validate, cfg SessionConfig, logger zerolog.Logger) SessionService {
	if cfg.LevelDurations == nil {
		cfg.LevelDurations = models.DefaultLevelDurations
	}
	if events == nil {
		events = NewSessionEventPublisher(nil, "", logger)
	}

	return &sessionService{
		sessions:    sessions,
		submissions: submissions,
		catalog:     catalog,
		executor:    executor,
		events:      events,
		validator:   validate,
		cfg:         cfg,
		tracer:      otel.Tracer("github.com/codequest-edu/codequest-go-api/internal/service/session"),
		logger:      logger.With().Str("component", "session_service").Logger(),
		now:         time.Now,
	}
}

func (s *sessionService) Start(ctx context.Context, userID uint, payload dto.StartSessionRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}
	if !SupportedLanguage(payload.Language) {
		return dto.SessionResponse{}, ErrUnsupportedLanguage
	}

	duration, ok := s.cfg.LevelDurations[payload.Level]
	if !ok {
		return dto.SessionResponse{}, ErrProblemNotFound
	}

	active, err := s.sessions.HasActiveSession(ctx, userID, payload.Level, payload.Category, payload.Language)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	if active {
		return dto.SessionResponse{}, ErrActiveSessionExists
	}

	problems, err := s.catalog.ListScope(ctx, payload.Level, payload.Category, payload.Language)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	if len(problems) == 0 {
		return dto.SessionResponse{}, ErrProblemNotFound
	}

	totalPoints := 0
	for _, problem := range problems {
		totalPoints += problem.Points
	}

	now := s.now()
	session := models.ExamSession{
		UserID:         userID,
		Level:          payload.Level,
		Category:       payload.Category,
		Language:       payload.Language,
		TimeAllowedSec: duration,
		StartTime:      now,
		Status:         models.SessionStatusInProgress,
		TotalProblems:  len(problems),
		TotalPoints:    totalPoints,
		Version:        1,
	}

	if err := s.sessions.Create(ctx, &session); err != nil {
		return dto.SessionResponse{}, err
	}

	observability.SessionsStarted().WithLabelValues(session.Level).Inc()
	s.events.Publish(SessionEvent{
		Event:     EventSessionStarted,
		SessionID: session.ID,
		UserID:    session.UserID,
		Level:     session.Level,
		Category:  session.Category,
		Status:    session.Status,
	})
	s.logger.Info().Uint("session_id", session.ID).Uint("user_id", userID).Str("level", session.Level).Msg("session started")

	return dto.NewSessionResponse(session, now), nil
}

func (s *sessionService) GetStatus(ctx context.Context, userID, sessionID uint) (dto.SessionResponse, error) {
	session, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	now := s.now()
	if !session.Terminal() && session.Expired(now) {
		session, err = s.expire(ctx, session)
		if err != nil {
			return dto.SessionResponse{}, err
		}
	}

	return dto.NewSessionResponse(session, now), nil
}

func (s *sessionService) SubmitProblem(ctx context.Context, userID, sessionID uint, payload dto.SubmitProblemRequest) (dto.SessionResponse, dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, err
	}

	session, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, err
	}
	if session.Terminal() {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrSessionExpired
	}

	now := s.now()
	if session.Expired(now) {
		if _, err := s.expire(ctx, session); err != nil {
			return dto.SessionResponse{}, dto.SubmissionResponse{}, err
		}
		return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrSessionExpired
	}

	problem, err := s.catalog.Get(ctx, payload.ProblemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrProblemNotFound
		}
		return dto.SessionResponse{}, dto.SubmissionResponse{}, err
	}
	if !problem.Active || !problem.MatchesScope(session.Level, session.Category, session.Language) {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrProblemNotFound
	}
	if session.HasProblem(problem.ID) {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrDuplicateSubmission
	}

	submission := models.Submission{
		UserID:     userID,
		ProblemID:  problem.ID,
		SessionID:  &session.ID,
		OrderIndex: len(session.Problems),
		Language:   payload.Language,
		Source:     payload.Source,
		Status:     models.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, err
	}

	link := models.SessionProblem{
		ProblemID:    problem.ID,
		SubmissionID: submission.ID,
		OrderIndex:   submission.OrderIndex,
	}
	if err := s.sessions.LinkProblem(ctx, session.ID, session.Version, &link); err != nil {
		// The submission row was never admitted into the session; discard it
		// so finalization cannot pick it up.
		s.discardSubmission(ctx, submission.ID)
		switch {
		case errors.Is(err, repository.ErrDuplicateLink):
			return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrDuplicateSubmission
		case errors.Is(err, repository.ErrVersionConflict):
			// Lost the race. If the winner linked this same problem, the
			// caller's submission is the duplicate.
			fresh, readErr := s.loadOwned(ctx, userID, sessionID)
			if readErr == nil && fresh.HasProblem(problem.ID) {
				return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrDuplicateSubmission
			}
			return dto.SessionResponse{}, dto.SubmissionResponse{}, ErrSessionConflict
		default:
			return dto.SessionResponse{}, dto.SubmissionResponse{}, err
		}
	}

	session, err = s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return dto.SessionResponse{}, dto.SubmissionResponse{}, err
	}

	s.logger.Info().Uint("session_id", session.ID).Uint("problem_id", problem.ID).Uint("submission_id", submission.ID).Msg("problem submitted")
	return dto.NewSessionResponse(session, now), dto.NewSubmissionResponse(submission), nil
}

func (s *sessionService) SubmitAll(ctx context.Context, userID, sessionID uint, payload dto.SubmitAllRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "session.submit_all", trace.WithAttributes(
		attribute.Int("session.id", int(sessionID)),
	))
	defer span.End()

	session, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	if session.Terminal() {
		return dto.SessionResponse{}, ErrSessionExpired
	}
	if session.Expired(s.now()) {
		if _, err := s.expire(ctx, session); err != nil {
			return dto.SessionResponse{}, err
		}
		return dto.SessionResponse{}, ErrSessionExpired
	}

	problems, err := s.catalog.ListScope(ctx, session.Level, session.Category, session.Language)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	problemsByID := make(map[uint]models.Problem, len(problems))
	for _, problem := range problems {
		problemsByID[problem.ID] = problem
	}

	// Structural validation happens up front so a bad id aborts before any
	// grading work has been done.
	pending := make([]dto.ProblemSubmission, 0, len(payload.Submissions))
	seen := make(map[uint]bool, len(payload.Submissions))
	for _, item := range payload.Submissions {
		if session.HasProblem(item.ProblemID) || seen[item.ProblemID] {
			continue
		}
		if _, ok := problemsByID[item.ProblemID]; !ok {
			return dto.SessionResponse{}, ErrProblemNotFound
		}
		if !SupportedLanguage(item.Language) {
			return dto.SessionResponse{}, ErrUnsupportedLanguage
		}
		seen[item.ProblemID] = true
		pending = append(pending, item)
	}

	version := session.Version
	expired := false

	// Only submissions admitted into the session's link list take part in
	// finalization; rows left behind by a failed registration do not.
	linked := make(map[uint]bool, len(session.Problems))
	for _, link := range session.Problems {
		linked[link.SubmissionID] = true
	}

	// Grade submissions registered earlier that are still pending.
	existing, err := s.submissions.ListBySession(ctx, session.ID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	for _, submission := range existing {
		if submission.Graded() || !linked[submission.ID] {
			continue
		}
		if session.Expired(s.now()) {
			expired = true
			break
		}

		problem, ok := problemsByID[submission.ProblemID]
		if !ok {
			continue
		}

		graded := submission
		s.gradeSubmission(ctx, &graded, problem)
		if err := s.submissions.Update(ctx, &graded); err != nil {
			return dto.SessionResponse{}, err
		}
	}

	// Create and grade the problems submitted with the finalize call.
	orderIndex := len(session.Problems)
	for _, item := range pending {
		if expired || session.Expired(s.now()) {
			expired = true
			break
		}

		problem := problemsByID[item.ProblemID]
		submission := models.Submission{
			UserID:     userID,
			ProblemID:  problem.ID,
			SessionID:  &session.ID,
			OrderIndex: orderIndex,
			Language:   item.Language,
			Source:     item.Source,
			Status:     models.SubmissionStatusPending,
		}
		if err := s.submissions.Create(ctx, &submission); err != nil {
			return dto.SessionResponse{}, err
		}

		s.gradeSubmission(ctx, &submission, problem)
		if err := s.submissions.Update(ctx, &submission); err != nil {
			return dto.SessionResponse{}, err
		}

		link := models.SessionProblem{
			ProblemID:    problem.ID,
			SubmissionID: submission.ID,
			OrderIndex:   orderIndex,
		}
		if err := s.sessions.LinkProblem(ctx, session.ID, version, &link); err != nil {
			s.discardSubmission(ctx, submission.ID)
			if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrDuplicateLink) {
				return dto.SessionResponse{}, ErrSessionConflict
			}
			return dto.SessionResponse{}, err
		}
		linked[submission.ID] = true
		version++
		orderIndex++
	}

	// Aggregates are recomputed from the linked submissions, never carried
	// forward incrementally.
	graded, err := s.submissions.ListBySession(ctx, session.ID)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	completed := 0
	scoreSum := 0.0
	for _, submission := range graded {
		if !linked[submission.ID] {
			continue
		}
		if submission.TestsPassed > 0 {
			completed++
		}
		scoreSum += float64(submission.Score)
	}

	totalScore := 0.0
	if session.TotalProblems > 0 {
		totalScore = math.Round(scoreSum/float64(session.TotalProblems)*100) / 100
	}

	now := s.now()
	finalStatus := models.SessionStatusSubmitted
	event := EventSessionSubmitted
	if expired {
		// Out of time mid-finalize: already-graded work is kept, the rest
		// is abandoned.
		finalStatus = models.SessionStatusTimeExpired
		event = EventSessionExpired
	}

	patch := map[string]interface{}{
		"status":             finalStatus,
		"completed_problems": completed,
		"total_score":        totalScore,
	}
	if !expired {
		// A non-nil submit time always means the user submitted; a session
		// that ran out the clock keeps it empty.
		patch["submit_time"] = now
	}
	if err := s.sessions.UpdateConditional(ctx, session.ID, version, patch); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return dto.SessionResponse{}, ErrSessionConflict
		}
		return dto.SessionResponse{}, err
	}

	observability.SessionsFinalized().WithLabelValues(finalStatus).Inc()
	s.events.Publish(SessionEvent{
		Event:      event,
		SessionID:  session.ID,
		UserID:     session.UserID,
		Level:      session.Level,
		Category:   session.Category,
		Status:     finalStatus,
		TotalScore: totalScore,
	})
	s.logger.Info().
		Uint("session_id", session.ID).
		Str("status", finalStatus).
		Int("completed_problems", completed).
		Float64("total_score", totalScore).
		Msg("session finalized")

	final, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return dto.NewSessionResponse(final, now), nil
}

// gradeSubmission runs the submission through the judge and folds the report
// into its status, score, and per-case results. Execution-level failures are
// absorbed into the score; they never abort the caller.
func (s *sessionService) gradeSubmission(ctx context.Context, submission *models.Submission, problem models.Problem) {
	report, err := s.executor.Execute(ctx, submission.Source, submission.Language, problem.TestCases)
	if err != nil {
		// Only structural executor errors land here (unsupported language
		// slipped past validation); record a zero score.
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("execution failed")
		submission.Status = models.SubmissionStatusRuntimeError
		submission.TestsTotal = len(problem.TestCases)
		return
	}

	submission.TestsPassed = report.Summary.Passed
	submission.TestsTotal = report.Summary.Total
	submission.Score = percentScore(report.Summary)
	submission.Status = submissionStatus(report)

	if payload, err := json.Marshal(report.Results); err == nil {
		submission.Results = datatypes.JSON(payload)
	}

	observability.SubmissionsGraded().WithLabelValues(submission.Status).Inc()
}

func percentScore(summary ExecutionSummary) int {
	if summary.Total == 0 {
		return 0
	}
	return int(math.Round(float64(summary.Passed) / float64(summary.Total) * 100))
}

// submissionStatus derives the submission lifecycle status from the graded
// report: a clean sweep is accepted, otherwise the most severe failure wins.
func submissionStatus(report ExecutionReport) string {
	if report.Summary.AllPassed {
		return models.SubmissionStatusAccepted
	}

	sawTimeLimit := false
	sawRuntime := false
	for _, result := range report.Results {
		switch result.Verdict {
		case judge.VerdictCompilationError:
			return models.SubmissionStatusCompilationError
		case judge.VerdictTimeLimitExceeded:
			sawTimeLimit = true
		case judge.VerdictRuntimeError, judge.VerdictMemoryLimitExceeded:
			sawRuntime = true
		}
	}

	switch {
	case sawTimeLimit:
		return models.SubmissionStatusTimeLimitExceeded
	case sawRuntime:
		return models.SubmissionStatusRuntimeError
	default:
		return models.SubmissionStatusWrongAnswer
	}
}

// discardSubmission removes a submission whose link was never admitted into
// the session, so finalization only ever sees linked rows.
func (s *sessionService) discardSubmission(ctx context.Context, id uint) {
	if err := s.submissions.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", id).Msg("failed to discard unlinked submission")
	}
}

func (s *sessionService) loadOwned(ctx context.Context, userID, sessionID uint) (models.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ExamSession{}, ErrSessionNotFound
		}
		return models.ExamSession{}, err
	}
	if session.UserID != userID {
		return models.ExamSession{}, ErrSessionForbidden
	}
	return session, nil
}

// expire applies the lazy time_expired transition. Losing the version race
// means another caller expired (or finalized) the session first; the fresh
// state is returned either way.
func (s *sessionService) expire(ctx context.Context, session models.ExamSession) (models.ExamSession, error) {
	err := s.sessions.UpdateConditional(ctx, session.ID, session.Version, map[string]interface{}{
		"status": models.SessionStatusTimeExpired,
	})
	switch {
	case err == nil:
		observability.SessionsFinalized().WithLabelValues(models.SessionStatusTimeExpired).Inc()
		s.events.Publish(SessionEvent{
			Event:     EventSessionExpired,
			SessionID: session.ID,
			UserID:    session.UserID,
			Level:     session.Level,
			Category:  session.Category,
			Status:    models.SessionStatusTimeExpired,
		})
		s.logger.Info().Uint("session_id", session.ID).Msg("session expired")
	case errors.Is(err, repository.ErrVersionConflict):
		// Someone else already moved the session on; fall through to re-read.
	default:
		return models.ExamSession{}, err
	}

	return s.sessions.GetByID(ctx, session.ID)
}
