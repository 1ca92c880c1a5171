package models

import "time"

// Problem difficulty tiers. The tier also selects the exam duration.
const (
	DifficultyLevel1 = "level1"
	DifficultyLevel2 = "level2"
	DifficultyLevel3 = "level3"
)

// Problem represents a coding exercise students solve during an exam session.
type Problem struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Title          string     `gorm:"size:255;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	Difficulty     string     `gorm:"size:32;not null;index" json:"difficulty"`
	Category       string     `gorm:"size:64;not null;index" json:"category"`
	Language       string     `gorm:"size:32;not null" json:"language"`
	Points         int        `gorm:"not null;default:100" json:"points"`
	TimeAllowedSec int        `gorm:"not null;default:0" json:"time_allowed_sec"`
	Active         bool       `gorm:"not null;default:true" json:"active"`
	TestCases      []TestCase `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TestCase is one input/expected-output pair for a problem. Hidden cases are
// used for grading only and never shown to the student.
type TestCase struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ProblemID uint   `gorm:"not null;index" json:"problem_id"`
	Input     string `gorm:"type:text" json:"input"`
	Expected  string `gorm:"type:text;not null" json:"expected"`
	Hidden    bool   `gorm:"not null;default:false" json:"hidden"`
	Position  int    `gorm:"not null;default:0" json:"position"`
}

// VisibleCases returns the example cases shown to students, in order.
func (p Problem) VisibleCases() []TestCase {
	cases := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if !tc.Hidden {
			cases = append(cases, tc)
		}
	}
	return cases
}

// MatchesScope reports whether the problem belongs to the given exam scope.
func (p Problem) MatchesScope(level, category, language string) bool {
	return p.Difficulty == level && p.Category == category && p.Language == language
}
