package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codequest-edu/codequest-go-api/internal/models"
)

// ProblemRepository exposes read access to the problem bank. Problem
// authoring happens elsewhere; the exam engine only ever reads.
type ProblemRepository interface {
	GetByID(ctx context.Context, id uint) (models.Problem, error)
	ListActive(ctx context.Context, level, category, language string) ([]models.Problem, error)
}

// NewProblemRepository constructs a problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

type problemRepository struct {
	db *gorm.DB
}

func (r *problemRepository) GetByID(ctx context.Context, id uint) (models.Problem, error) {
	var problem models.Problem
	err := r.db.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&problem, id).Error
	if err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) ListActive(ctx context.Context, level, category, language string) ([]models.Problem, error) {
	var problems []models.Problem
	err := r.db.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("difficulty = ? AND category = ? AND language = ? AND active = ?", level, category, language, true).
		Order("id ASC").
		Find(&problems).Error
	if err != nil {
		return nil, err
	}
	return problems, nil
}
