package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission lifecycle statuses. A submission starts pending and is mutated
// exactly once when judge results land.
const (
	SubmissionStatusPending           = "pending"
	SubmissionStatusAccepted          = "accepted"
	SubmissionStatusWrongAnswer       = "wrong_answer"
	SubmissionStatusTimeLimitExceeded = "time_limit_exceeded"
	SubmissionStatusRuntimeError      = "runtime_error"
	SubmissionStatusCompilationError  = "compilation_error"
)

// Submission is one attempt at one problem within an exam session.
type Submission struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	ProblemID   uint           `gorm:"not null;index" json:"problem_id"`
	SessionID   *uint          `gorm:"index" json:"session_id,omitempty"`
	OrderIndex  int            `gorm:"not null;default:0" json:"order_index"`
	Language    string         `gorm:"size:32;not null" json:"language"`
	Source      string         `gorm:"type:text" json:"source"`
	Status      string         `gorm:"size:32;not null" json:"status"`
	Score       int            `gorm:"not null;default:0" json:"score"`
	TestsPassed int            `gorm:"not null;default:0" json:"tests_passed"`
	TestsTotal  int            `gorm:"not null;default:0" json:"tests_total"`
	Results     datatypes.JSON `json:"results,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Problem     Problem        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"problem"`
}

// Graded reports whether judge results have landed for this submission.
func (s Submission) Graded() bool {
	return s.Status != SubmissionStatusPending
}
