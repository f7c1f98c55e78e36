package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/repository"
	"onenote_feedback/internal/util"
	"onenote_feedback/pkg/logger"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileStore 按文件区管理文件：元数据在数据库，内容在 StorageProvider
type FileStore struct {
	repo     *repository.FileRepository
	provider StorageProvider
}

func NewFileStore(repo *repository.FileRepository, provider StorageProvider) *FileStore {
	return &FileStore{repo: repo, provider: provider}
}

func storageKey(area model.AreaKey, id string) string {
	return fmt.Sprintf("%s/%d/%s/%d/%s", area.Component, area.ContextID, area.FileArea, area.ItemID, id)
}

func (s *FileStore) ListFiles(ctx context.Context, area model.AreaKey) ([]model.StoredFile, error) {
	return s.repo.ListByArea(ctx, area)
}

func (s *FileStore) CountFiles(ctx context.Context, area model.AreaKey) (int, error) {
	n, err := s.repo.CountByArea(ctx, area)
	return int(n), err
}

// CreateFromPath 先写入对象存储再写元数据，元数据失败时回收对象
func (s *FileStore) CreateFromPath(ctx context.Context, area model.AreaKey, filename, path string) (*model.StoredFile, error) {
	info, err := util.InspectFile(path)
	if err != nil {
		return nil, err
	}

	file := &model.StoredFile{
		ContextID:   area.ContextID,
		Component:   area.Component,
		FileArea:    area.FileArea,
		ItemID:      area.ItemID,
		FilePath:    "/",
		FileName:    filename,
		Size:        info.Size,
		ContentHash: info.ContentHash,
		MimeType:    info.MimeType,
	}
	file.ID = uuid.New().String()
	file.StorageKey = storageKey(area, file.ID)

	if _, err := s.provider.UploadFile(ctx, file.StorageKey, path, file.MimeType); err != nil {
		return nil, fmt.Errorf("upload %s: %w", file.StorageKey, err)
	}
	if err := s.repo.Create(ctx, file); err != nil {
		s.removeObjects(ctx, []model.StoredFile{*file})
		return nil, err
	}
	return file, nil
}

// DeleteAll 删除文件区内全部文件，文件区为空时同样成功
func (s *FileStore) DeleteAll(ctx context.Context, area model.AreaKey) error {
	return s.DeleteAllExcept(ctx, area, "")
}

// DeleteAllExcept 删除文件区内除 keepID 以外的文件
func (s *FileStore) DeleteAllExcept(ctx context.Context, area model.AreaKey, keepID string) error {
	files, err := s.repo.ListAllByArea(ctx, area)
	if err != nil {
		return err
	}
	doomed := files[:0]
	for _, f := range files {
		if f.ID != keepID {
			doomed = append(doomed, f)
		}
	}
	return s.deleteFiles(ctx, doomed)
}

// DeleteContext 删除某个上下文下组件的所有文件区
func (s *FileStore) DeleteContext(ctx context.Context, contextID uint, component string) error {
	files, err := s.repo.ListByContext(ctx, contextID, component)
	if err != nil {
		return err
	}
	return s.deleteFiles(ctx, files)
}

// deleteFiles 先删元数据，对象删除失败只记录日志，不会留下指向空对象的记录
func (s *FileStore) deleteFiles(ctx context.Context, files []model.StoredFile) error {
	if len(files) == 0 {
		return nil
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	if err := s.repo.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	s.removeObjects(ctx, files)
	return nil
}

func (s *FileStore) removeObjects(ctx context.Context, files []model.StoredFile) {
	for _, f := range files {
		if f.StorageKey == "" {
			continue
		}
		if err := s.provider.Delete(ctx, f.StorageKey); err != nil {
			logger.Log.Warn("Failed to delete stored object",
				zap.String("file_id", f.ID), zap.String("key", f.StorageKey), zap.Error(err))
		}
	}
}

func (s *FileStore) Find(ctx context.Context, fileID string) (*model.StoredFile, error) {
	file, err := s.repo.FindByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrFileNotFound
	}
	return file, err
}

func (s *FileStore) Open(ctx context.Context, fileID string) (io.ReadCloser, *model.StoredFile, error) {
	file, err := s.Find(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.IsDirectory() {
		return nil, nil, util.ErrFileNotFound
	}
	rc, err := s.provider.Open(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, file, nil
}

// CopyArea 复制文件区内所有文件到目标区；根目录条目不复制，目标区的根目录由新文件隐式产生
func (s *FileStore) CopyArea(ctx context.Context, from, to model.AreaKey) (int, error) {
	files, err := s.repo.ListAllByArea(ctx, from)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, src := range files {
		if src.IsDirectory() && src.FilePath == "/" {
			continue
		}
		if err := s.copyFile(ctx, &src, to); err != nil {
			return copied, fmt.Errorf("copy %s: %w", src.ID, err)
		}
		copied++
	}
	return copied, nil
}

func (s *FileStore) copyFile(ctx context.Context, src *model.StoredFile, to model.AreaKey) error {
	dst := *src
	dst.ID = uuid.New().String()
	dst.ContextID, dst.Component, dst.FileArea, dst.ItemID = to.ContextID, to.Component, to.FileArea, to.ItemID
	dst.CreatedAt, dst.UpdatedAt = time.Time{}, time.Time{}

	if !src.IsDirectory() {
		rc, err := s.provider.Open(ctx, src.StorageKey)
		if err != nil {
			return err
		}
		defer rc.Close()

		dst.StorageKey = storageKey(to, dst.ID)
		if _, err := s.provider.Upload(ctx, dst.StorageKey, rc, src.Size, src.MimeType); err != nil {
			return err
		}
	}

	if err := s.repo.Create(ctx, &dst); err != nil {
		s.removeObjects(ctx, []model.StoredFile{dst})
		return err
	}
	return nil
}
