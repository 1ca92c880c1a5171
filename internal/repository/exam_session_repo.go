package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/codequest-edu/codequest-go-api/internal/models"
)

// ErrVersionConflict indicates a conditional session update lost the race:
// the session's version (or status) no longer matched what the caller read.
var ErrVersionConflict = errors.New("session version conflict")

// ErrDuplicateLink indicates the problem is already linked into the session.
var ErrDuplicateLink = errors.New("problem already linked to session")

// ExamSessionRepository persists exam sessions. Every mutation is
// conditional on the version the caller observed, so racing writers
// resolve deterministically to one winner.
type ExamSessionRepository interface {
	Create(ctx context.Context, session *models.ExamSession) error
	GetByID(ctx context.Context, id uint) (models.ExamSession, error)
	HasActiveSession(ctx context.Context, userID uint, level, category, language string) (bool, error)
	UpdateConditional(ctx context.Context, id uint, expectedVersion int64, patch map[string]interface{}) error
	LinkProblem(ctx context.Context, sessionID uint, expectedVersion int64, link *models.SessionProblem) error
}

// NewExamSessionRepository instantiates the repository.
func NewExamSessionRepository(db *gorm.DB) ExamSessionRepository {
	return &examSessionRepository{db: db}
}

type examSessionRepository struct {
	db *gorm.DB
}

func (r *examSessionRepository) Create(ctx context.Context, session *models.ExamSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *examSessionRepository) GetByID(ctx context.Context, id uint) (models.ExamSession, error) {
	var session models.ExamSession
	err := r.db.WithContext(ctx).
		Preload("Problems", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		First(&session, id).Error
	if err != nil {
		return models.ExamSession{}, err
	}

	return session, nil
}

func (r *examSessionRepository) HasActiveSession(ctx context.Context, userID uint, level, category, language string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ExamSession{}).
		Where("user_id = ? AND level = ? AND category = ? AND language = ? AND status = ?",
			userID, level, category, language, models.SessionStatusInProgress).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// UpdateConditional applies the patch only when the stored version still
// matches expectedVersion, bumping the version in the same statement.
func (r *examSessionRepository) UpdateConditional(ctx context.Context, id uint, expectedVersion int64, patch map[string]interface{}) error {
	updates := make(map[string]interface{}, len(patch)+1)
	for key, value := range patch {
		updates[key] = value
	}
	updates["version"] = gorm.Expr("version + 1")

	result := r.db.WithContext(ctx).Model(&models.ExamSession{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	return nil
}

// LinkProblem appends a problem link inside one transaction guarded by the
// session version. Two racers linking the same problem both pass the
// duplicate pre-check at most once; the version guard (and, as a backstop,
// the unique index on session_id+problem_id) lets only one through.
func (r *examSessionRepository) LinkProblem(ctx context.Context, sessionID uint, expectedVersion int64, link *models.SessionProblem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ExamSession{}).
			Where("id = ? AND version = ? AND status = ?", sessionID, expectedVersion, models.SessionStatusInProgress).
			Updates(map[string]interface{}{"version": gorm.Expr("version + 1")})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		link.SessionID = sessionID
		if err := tx.Create(link).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateLink
			}
			return err
		}

		return nil
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate")
}
