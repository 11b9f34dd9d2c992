package repository

import (
	"context"
	"safeflag/internal/model"
	"time"

	"gorm.io/gorm"
)

// HitCount is the total number of evaluations recorded for one flag key.
type HitCount struct {
	Key  string `gorm:"column:flag_key"`
	Hits int64  `gorm:"column:hits"`
}

type EvaluationInterface interface {
	Create(ctx context.Context, eval *model.FlagEvaluation) error
	CountSince(ctx context.Context, flagID uint64, envName string, since time.Time) (int64, error)
	HitsPerFlag(ctx context.Context) ([]HitCount, error)
}

type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) Create(ctx context.Context, eval *model.FlagEvaluation) error {
	return r.db.WithContext(ctx).Create(eval).Error
}

// CountSince counts evaluations of a flag at or after since. An empty envName counts every environment.
func (r *EvaluationRepository) CountSince(ctx context.Context, flagID uint64, envName string, since time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.FlagEvaluation{}).
		Where("flag_id = ? AND created_at >= ?", flagID, since)
	if envName != "" {
		query = query.Where("LOWER(environment_name) = LOWER(?)", envName)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *EvaluationRepository) HitsPerFlag(ctx context.Context) ([]HitCount, error) {
	var rows []HitCount
	err := r.db.WithContext(ctx).
		Table("flag_evaluations").
		Select("flags.key AS flag_key, COUNT(flag_evaluations.id) AS hits").
		Joins("JOIN flags ON flags.id = flag_evaluations.flag_id").
		Group("flags.key").
		Order("hits DESC, flag_key ASC").
		Scan(&rows).Error
	return rows, err
}
