package dto

import (
	"time"

	"github.com/codequest-edu/codequest-go-api/internal/models"
)

// StartSessionRequest is the payload for starting a timed exam session.
type StartSessionRequest struct {
	Level    string `json:"level" validate:"required,oneof=level1 level2 level3"`
	Category string `json:"category" validate:"required,min=1,max=64"`
	Language string `json:"language" validate:"required,min=1,max=32"`
}

// SubmitProblemRequest registers one problem solution within a session.
type SubmitProblemRequest struct {
	ProblemID uint   `json:"problem_id" validate:"required,gt=0"`
	Language  string `json:"language" validate:"required"`
	Source    string `json:"source" validate:"required,min=1"`
}

// ProblemSubmission is one entry in a finalize call.
type ProblemSubmission struct {
	ProblemID uint   `json:"problem_id" validate:"required,gt=0"`
	Language  string `json:"language" validate:"required"`
	Source    string `json:"source" validate:"required,min=1"`
}

// SubmitAllRequest finalizes the session with the remaining solutions.
type SubmitAllRequest struct {
	Submissions []ProblemSubmission `json:"submissions" validate:"dive"`
}

// SessionProblemLink mirrors one (problem, submission) link in order.
type SessionProblemLink struct {
	ProblemID    uint `json:"problem_id"`
	SubmissionID uint `json:"submission_id"`
	OrderIndex   int  `json:"order_index"`
}

// SessionResponse is the session snapshot returned by every engine operation.
type SessionResponse struct {
	ID                uint                 `json:"id"`
	UserID            uint                 `json:"user_id"`
	Level             string               `json:"level"`
	Category          string               `json:"category"`
	Language          string               `json:"language"`
	Status            string               `json:"status"`
	TimeAllowedSec    int                  `json:"time_allowed_sec"`
	TimeRemainingSec  int                  `json:"time_remaining_sec"`
	ElapsedSec        int                  `json:"elapsed_sec"`
	StartTime         time.Time            `json:"start_time"`
	SubmitTime        *time.Time           `json:"submit_time,omitempty"`
	TotalProblems     int                  `json:"total_problems"`
	CompletedProblems int                  `json:"completed_problems"`
	TotalScore        float64              `json:"total_score"`
	TotalPoints       int                  `json:"total_points"`
	Problems          []SessionProblemLink `json:"problems"`
}

// SubmissionResponse describes one graded (or pending) submission.
type SubmissionResponse struct {
	ID          uint   `json:"id"`
	ProblemID   uint   `json:"problem_id"`
	SessionID   *uint  `json:"session_id,omitempty"`
	OrderIndex  int    `json:"order_index"`
	Language    string `json:"language"`
	Status      string `json:"status"`
	Score       int    `json:"score"`
	TestsPassed int    `json:"tests_passed"`
	TestsTotal  int    `json:"tests_total"`
}

// NewSessionResponse builds a session snapshot, computing elapsed and
// remaining time at the supplied instant.
func NewSessionResponse(session models.ExamSession, now time.Time) SessionResponse {
	links := make([]SessionProblemLink, 0, len(session.Problems))
	for _, link := range session.Problems {
		links = append(links, SessionProblemLink{
			ProblemID:    link.ProblemID,
			SubmissionID: link.SubmissionID,
			OrderIndex:   link.OrderIndex,
		})
	}

	remaining := int(session.Remaining(now).Seconds())
	if session.Terminal() {
		remaining = 0
	}

	return SessionResponse{
		ID:                session.ID,
		UserID:            session.UserID,
		Level:             session.Level,
		Category:          session.Category,
		Language:          session.Language,
		Status:            session.Status,
		TimeAllowedSec:    session.TimeAllowedSec,
		TimeRemainingSec:  remaining,
		ElapsedSec:        int(session.Elapsed(now).Seconds()),
		StartTime:         session.StartTime,
		SubmitTime:        session.SubmitTime,
		TotalProblems:     session.TotalProblems,
		CompletedProblems: session.CompletedProblems,
		TotalScore:        session.TotalScore,
		TotalPoints:       session.TotalPoints,
		Problems:          links,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          submission.ID,
		ProblemID:   submission.ProblemID,
		SessionID:   submission.SessionID,
		OrderIndex:  submission.OrderIndex,
		Language:    submission.Language,
		Status:      submission.Status,
		Score:       submission.Score,
		TestsPassed: submission.TestsPassed,
		TestsTotal:  submission.TestsTotal,
	}
}
