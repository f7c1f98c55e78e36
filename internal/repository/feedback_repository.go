package repository

import (
	"context"
	"errors"
	"onenote_feedback/internal/model"

	"gorm.io/gorm"
)

type FeedbackRepository struct {
	DB *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{DB: db}
}

func (r *FeedbackRepository) FindByGrade(ctx context.Context, gradeID uint) (*model.FeedbackRecord, error) {
	var record model.FeedbackRecord
	err := r.DB.WithContext(ctx).Where("grade = ?", gradeID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert 按 grade 插入或更新文件数
func (r *FeedbackRepository) Upsert(ctx context.Context, record *model.FeedbackRecord) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.FeedbackRecord
		err := tx.Where("grade = ?", record.GradeID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(record).Error
		}
		if err != nil {
			return err
		}

		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		return tx.Model(&existing).Updates(map[string]interface{}{
			"numfiles":   record.NumFiles,
			"assignment": record.AssignmentID,
		}).Error
	})
}

func (r *FeedbackRepository) DeleteByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	res := r.DB.WithContext(ctx).Where("assignment = ?", assignmentID).Delete(&model.FeedbackRecord{})
	return res.RowsAffected, res.Error
}

func (r *FeedbackRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]model.FeedbackRecord, error) {
	var records []model.FeedbackRecord
	err := r.DB.WithContext(ctx).Where("assignment = ?", assignmentID).Order("grade").Find(&records).Error
	return records, err
}
