package repository

import (
	"context"
	"errors"
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LinkRepository struct {
	DB *gorm.DB
}

func NewLinkRepository(db *gorm.DB) *LinkRepository {
	return &LinkRepository{DB: db}
}

func (r *LinkRepository) Find(ctx context.Context, assignmentID, userID uint) (*model.ExternalDocumentLink, error) {
	var link model.ExternalDocumentLink
	err := r.DB.WithContext(ctx).
		Where("assign_id = ? AND user_id = ?", assignmentID, userID).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ResolveTeacherPage 返回教师反馈页面 ID，未关联或为空时返回 util.ErrLinkNotFound
func (r *LinkRepository) ResolveTeacherPage(ctx context.Context, assignmentID, userID uint) (string, error) {
	link, err := r.Find(ctx, assignmentID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", util.ErrLinkNotFound
	}
	if err != nil {
		return "", err
	}
	if link.FeedbackTeacherPageID == "" {
		return "", util.ErrLinkNotFound
	}
	return link.FeedbackTeacherPageID, nil
}

func (r *LinkRepository) Upsert(ctx context.Context, link *model.ExternalDocumentLink) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "assign_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"submission_student_page_id",
			"feedback_student_page_id",
			"feedback_teacher_page_id",
			"updated_at",
		}),
	}).Create(link).Error
}
