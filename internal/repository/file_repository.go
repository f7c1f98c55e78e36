package repository

import (
	"context"
	"onenote_feedback/internal/model"

	"gorm.io/gorm"
)

// FileRepository 文件区元数据
type FileRepository struct {
	DB *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{DB: db}
}

func (r *FileRepository) areaQuery(ctx context.Context, area model.AreaKey) *gorm.DB {
	return r.DB.WithContext(ctx).Model(&model.StoredFile{}).
		Where("context_id = ? AND component = ? AND file_area = ? AND item_id = ?",
			area.ContextID, area.Component, area.FileArea, area.ItemID)
}

// ListByArea 不含目录条目
func (r *FileRepository) ListByArea(ctx context.Context, area model.AreaKey) ([]model.StoredFile, error) {
	var files []model.StoredFile
	err := r.areaQuery(ctx, area).
		Where("file_name <> ?", ".").
		Order("created_at, id").
		Find(&files).Error
	return files, err
}

// ListAllByArea 包含目录条目
func (r *FileRepository) ListAllByArea(ctx context.Context, area model.AreaKey) ([]model.StoredFile, error) {
	var files []model.StoredFile
	err := r.areaQuery(ctx, area).Order("created_at, id").Find(&files).Error
	return files, err
}

func (r *FileRepository) CountByArea(ctx context.Context, area model.AreaKey) (int64, error) {
	var count int64
	err := r.areaQuery(ctx, area).Where("file_name <> ?", ".").Count(&count).Error
	return count, err
}

func (r *FileRepository) ListByContext(ctx context.Context, contextID uint, component string) ([]model.StoredFile, error) {
	var files []model.StoredFile
	err := r.DB.WithContext(ctx).
		Where("context_id = ? AND component = ?", contextID, component).
		Find(&files).Error
	return files, err
}

func (r *FileRepository) FindByID(ctx context.Context, id string) (*model.StoredFile, error) {
	var file model.StoredFile
	err := r.DB.WithContext(ctx).First(&file, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *FileRepository) Create(ctx context.Context, file *model.StoredFile) error {
	return r.DB.WithContext(ctx).Create(file).Error
}

func (r *FileRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Where("id IN ?", ids).Delete(&model.StoredFile{}).Error
}
