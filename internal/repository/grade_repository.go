package repository

import (
	"context"
	"onenote_feedback/internal/model"

	"gorm.io/gorm"
)

type GradeRepository struct {
	DB *gorm.DB
}

func NewGradeRepository(db *gorm.DB) *GradeRepository {
	return &GradeRepository{DB: db}
}

func (r *GradeRepository) FindByID(ctx context.Context, id uint) (*model.Grade, error) {
	var grade model.Grade
	err := r.DB.WithContext(ctx).First(&grade, id).Error
	if err != nil {
		return nil, err
	}
	return &grade, nil
}

func (r *GradeRepository) Save(ctx context.Context, grade *model.Grade) error {
	return r.DB.WithContext(ctx).Save(grade).Error
}

func (r *GradeRepository) DeleteByAssignment(ctx context.Context, assignmentID uint) error {
	return r.DB.WithContext(ctx).Where("assignment_id = ?", assignmentID).Delete(&model.Grade{}).Error
}
