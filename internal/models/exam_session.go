package models

import "time"

// Exam session statuses. Everything except in_progress is terminal.
const (
	SessionStatusInProgress  = "in_progress"
	SessionStatusCompleted   = "completed"
	SessionStatusSubmitted   = "submitted"
	SessionStatusTimeExpired = "time_expired"
)

// DefaultLevelDurations maps a difficulty tier to the exam duration in
// seconds. The value is fixed on the session at creation and never changes.
var DefaultLevelDurations = map[string]int{
	DifficultyLevel1: 1800,
	DifficultyLevel2: 2700,
	DifficultyLevel3: 3600,
}

// ExamSession is a single timed attempt at the problem set of one
// (level, category, language) scope. Version backs the optimistic
// concurrency discipline: every mutation is conditional on the version
// observed when the session was read.
type ExamSession struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	UserID            uint             `gorm:"not null;index" json:"user_id"`
	Level             string           `gorm:"size:32;not null" json:"level"`
	Category          string           `gorm:"size:64;not null" json:"category"`
	Language          string           `gorm:"size:32;not null" json:"language"`
	TimeAllowedSec    int              `gorm:"not null" json:"time_allowed_sec"`
	StartTime         time.Time        `gorm:"not null" json:"start_time"`
	SubmitTime        *time.Time       `json:"submit_time,omitempty"`
	Status            string           `gorm:"size:32;not null;index" json:"status"`
	TotalProblems     int              `gorm:"not null;default:0" json:"total_problems"`
	CompletedProblems int              `gorm:"not null;default:0" json:"completed_problems"`
	TotalScore        float64          `gorm:"not null;default:0" json:"total_score"`
	TotalPoints       int              `gorm:"not null;default:0" json:"total_points"`
	Version           int64            `gorm:"not null;default:1" json:"version"`
	Problems          []SessionProblem `gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"problems,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// SessionProblem links one problem and its submission into a session, in
// submission order. The unique index keeps a problem from being linked twice.
type SessionProblem struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	SessionID    uint `gorm:"not null;uniqueIndex:idx_session_problem" json:"session_id"`
	ProblemID    uint `gorm:"not null;uniqueIndex:idx_session_problem" json:"problem_id"`
	SubmissionID uint `gorm:"not null" json:"submission_id"`
	OrderIndex   int  `gorm:"not null;default:0" json:"order_index"`
}

// Terminal reports whether the session can no longer be mutated.
func (s ExamSession) Terminal() bool {
	return s.Status != SessionStatusInProgress
}

// Elapsed returns the time spent in the session at the given instant.
func (s ExamSession) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.StartTime)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining returns how much exam time is left, never below zero.
func (s ExamSession) Remaining(now time.Time) time.Duration {
	remaining := time.Duration(s.TimeAllowedSec)*time.Second - s.Elapsed(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the allotted time has fully elapsed.
func (s ExamSession) Expired(now time.Time) bool {
	return s.Elapsed(now) > time.Duration(s.TimeAllowedSec)*time.Second
}

// HasProblem reports whether the problem is already linked into the session.
func (s ExamSession) HasProblem(problemID uint) bool {
	for _, link := range s.Problems {
		if link.ProblemID == problemID {
			return true
		}
	}
	return false
}
