package repository

import (
	"context"
	"onenote_feedback/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TokenRepository struct {
	DB *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{DB: db}
}

func (r *TokenRepository) FindByUser(ctx context.Context, userID uint) (*model.OneNoteToken, error) {
	var token model.OneNoteToken
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *TokenRepository) Save(ctx context.Context, token *model.OneNoteToken) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "token_type", "expiry", "updated_at", "deleted_at"}),
	}).Create(token).Error
}

func (r *TokenRepository) DeleteByUser(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(&model.OneNoteToken{}).Error
}
