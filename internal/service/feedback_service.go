package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/lease"
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/onenote"
	"onenote_feedback/internal/util"
	"onenote_feedback/pkg/logger"
	"onenote_feedback/pkg/monitoring"
	"onenote_feedback/pkg/tracing"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LinkResolver 查找 (作业, 学生) 对应的教师反馈页面
type LinkResolver interface {
	ResolveTeacherPage(ctx context.Context, assignmentID, userID uint) (string, error)
}

// DocumentClient OneNote 客户端能力
type DocumentClient interface {
	HasValidSession(ctx context.Context, userID uint) bool
	ExportPage(ctx context.Context, userID uint, pageID, destPath string) (*onenote.DownloadInfo, error)
}

type FeedbackStore interface {
	FindByGrade(ctx context.Context, gradeID uint) (*model.FeedbackRecord, error)
	Upsert(ctx context.Context, record *model.FeedbackRecord) error
	DeleteByAssignment(ctx context.Context, assignmentID uint) (int64, error)
}

type AreaFileStore interface {
	ListFiles(ctx context.Context, area model.AreaKey) ([]model.StoredFile, error)
	CountFiles(ctx context.Context, area model.AreaKey) (int, error)
	CreateFromPath(ctx context.Context, area model.AreaKey, filename, path string) (*model.StoredFile, error)
	DeleteAll(ctx context.Context, area model.AreaKey) error
	DeleteAllExcept(ctx context.Context, area model.AreaKey, keepID string) error
	DeleteContext(ctx context.Context, contextID uint, component string) error
	Find(ctx context.Context, fileID string) (*model.StoredFile, error)
	Open(ctx context.Context, fileID string) (io.ReadCloser, *model.StoredFile, error)
	CopyArea(ctx context.Context, from, to model.AreaKey) (int, error)
}

// SyncError 同步失败，Kind 为 util 中的 ErrLinkNotFound / ErrAuthRequired / ErrExportFailed /
// ErrStoreWriteFailed / ErrSyncInProgress 之一
type SyncError struct {
	Kind error
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func syncErr(kind, err error) *SyncError {
	return &SyncError{Kind: kind, Err: err}
}

// NoteAction 打开 OneNote 页面的操作按钮
type NoteAction struct {
	Label        string `json:"label"`
	AssignmentID uint   `json:"assignmentId"`
	UserID       uint   `json:"userId"`
	GradeID      uint   `json:"gradeId,omitempty"`
	IsTeacher    bool   `json:"isTeacher"`
	PageID       string `json:"pageId,omitempty"`
}

// SummaryView 反馈状态表的渲染决策，Files 仅在未超出上限时填充
type SummaryView struct {
	FileCount       int                `json:"fileCount"`
	OverLimit       bool               `json:"overLimit"`
	ShowLoginPrompt bool               `json:"showLoginPrompt"`
	Graded          bool               `json:"graded"`
	Action          *NoteAction        `json:"action,omitempty"`
	Files           []model.StoredFile `json:"files,omitempty"`
}

// FormActions 评分表单中 OneNote 区域的渲染决策
type FormActions struct {
	SignedIn bool        `json:"signedIn"`
	Action   *NoteAction `json:"action,omitempty"`
}

const (
	ActionAddFeedback  = "addfeedback"
	ActionViewFeedback = "viewfeedback"
)

type FeedbackService struct {
	links   LinkResolver
	docs    DocumentClient
	records FeedbackStore
	files   AreaFileStore
	locker  lease.Locker

	mu            sync.RWMutex
	cfg           config.FeedbackConfig
	exportTimeout time.Duration

	now func() time.Time
}

func NewFeedbackService(
	links LinkResolver,
	docs DocumentClient,
	records FeedbackStore,
	files AreaFileStore,
	locker lease.Locker,
	cfg *config.Config,
) *FeedbackService {
	s := &FeedbackService{
		links:   links,
		docs:    docs,
		records: records,
		files:   files,
		locker:  locker,
		now:     time.Now,
	}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig 配置热更新回调
func (s *FeedbackService) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg.Feedback
	if s.cfg.LeaseTTL <= 0 {
		s.cfg.LeaseTTL = 2 * time.Minute
	}
	if s.cfg.TempDir == "" {
		s.cfg.TempDir = os.TempDir()
	}
	s.exportTimeout = cfg.OneNote.ExportTimeout
	if s.exportTimeout <= 0 {
		s.exportTimeout = time.Minute
	}
}

func (s *FeedbackService) config() (config.FeedbackConfig, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.exportTimeout
}

// MaxSummaryFiles 摘要中直接列出的最大文件数
func (s *FeedbackService) MaxSummaryFiles() int {
	cfg, _ := s.config()
	return cfg.MaxSummaryFiles
}

// Sync 下载教师的 OneNote 反馈页面并作为成绩唯一的反馈文件保存。
// 新文件写入成功后才删除旧文件，失败时旧文件保持不变。
func (s *FeedbackService) Sync(ctx context.Context, grade *model.Grade, teacherID uint) (record *model.FeedbackRecord, err error) {
	start := time.Now()
	ctx, span := tracing.Tracer.Start(ctx, "feedback.sync", trace.WithAttributes(
		attribute.Int64("grade.id", int64(grade.ID)),
		attribute.Int64("assignment.id", int64(grade.AssignmentID)),
	))
	log := logger.Log.With(
		zap.Uint("grade_id", grade.ID),
		zap.Uint("assignment_id", grade.AssignmentID),
		zap.Uint("user_id", grade.UserID),
		zap.Uint("teacher_id", teacherID),
	)
	defer func() {
		monitoring.ObserveSync(syncResult(err), start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("Feedback sync failed", zap.Error(err))
		}
		span.End()
	}()

	pageID, err := s.links.ResolveTeacherPage(ctx, grade.AssignmentID, grade.UserID)
	if errors.Is(err, util.ErrLinkNotFound) {
		return nil, syncErr(util.ErrLinkNotFound, nil)
	}
	if err != nil {
		return nil, syncErr(util.ErrStoreWriteFailed, fmt.Errorf("resolve feedback page: %w", err))
	}

	if !s.docs.HasValidSession(ctx, teacherID) {
		return nil, syncErr(util.ErrAuthRequired, nil)
	}

	cfg, exportTimeout := s.config()

	tempDir, err := os.MkdirTemp(cfg.TempDir, "asg_")
	if err != nil {
		return nil, syncErr(util.ErrExportFailed, err)
	}
	defer os.RemoveAll(tempDir)

	exportCtx, cancel := context.WithTimeout(ctx, exportTimeout)
	info, err := s.docs.ExportPage(exportCtx, teacherID, pageID, filepath.Join(tempDir, "feedback.zip"))
	cancel()
	if err != nil {
		if errors.Is(err, onenote.ErrUnauthorized) || errors.Is(err, onenote.ErrNotSignedIn) {
			return nil, syncErr(util.ErrAuthRequired, err)
		}
		return nil, syncErr(util.ErrExportFailed, err)
	}
	if info == nil || info.Path == "" {
		return nil, syncErr(util.ErrExportFailed, onenote.ErrNoArtifact)
	}

	release, err := s.locker.Acquire(ctx, lease.GradeKey(grade.ID), cfg.LeaseTTL)
	if errors.Is(err, lease.ErrHeld) {
		return nil, syncErr(util.ErrSyncInProgress, nil)
	}
	if err != nil {
		return nil, syncErr(util.ErrStoreWriteFailed, err)
	}
	defer release()

	area := model.FeedbackArea(grade)
	filename := fmt.Sprintf("%s%d.zip", util.FeedbackFilePrefix, s.now().Unix())

	stored, err := s.files.CreateFromPath(ctx, area, filename, info.Path)
	if err != nil {
		return nil, syncErr(util.ErrStoreWriteFailed, err)
	}
	if err := s.files.DeleteAllExcept(ctx, area, stored.ID); err != nil {
		// 新文件已写入，记录的文件数仍以文件区为准
		if _, cerr := s.UpdateFileCount(ctx, grade); cerr != nil {
			log.Error("Failed to recount feedback files", zap.Error(cerr))
		}
		return nil, syncErr(util.ErrStoreWriteFailed, err)
	}

	record, err = s.UpdateFileCount(ctx, grade)
	if err != nil {
		return nil, syncErr(util.ErrStoreWriteFailed, err)
	}

	log.Info("Feedback synced",
		zap.String("file_id", stored.ID),
		zap.Int64("size", stored.Size),
		zap.Int("resources", info.Resources),
		zap.Int("num_files", record.NumFiles))
	return record, nil
}

func syncResult(err error) string {
	var se *SyncError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &se):
		switch se.Kind {
		case util.ErrLinkNotFound:
			return "link_not_found"
		case util.ErrAuthRequired:
			return "auth_required"
		case util.ErrExportFailed:
			return "export_failed"
		case util.ErrStoreWriteFailed:
			return "store_write_failed"
		case util.ErrSyncInProgress:
			return "in_progress"
		}
	}
	return "error"
}

// UpdateFileCount 从文件区重新统计文件数并写入反馈记录
func (s *FeedbackService) UpdateFileCount(ctx context.Context, grade *model.Grade) (*model.FeedbackRecord, error) {
	count, err := s.files.CountFiles(ctx, model.FeedbackArea(grade))
	if err != nil {
		return nil, err
	}
	record, err := model.NewFeedbackRecord(grade.ID, grade.AssignmentID, count)
	if err != nil {
		return nil, err
	}
	if err := s.records.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetFeedback 成绩的反馈记录，不存在时返回 nil
func (s *FeedbackService) GetFeedback(ctx context.Context, gradeID uint) (*model.FeedbackRecord, error) {
	record, err := s.records.FindByGrade(ctx, gradeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}

func (s *FeedbackService) GetSummary(ctx context.Context, grade *model.Grade, maxSummaryFiles int, viewerID uint, viewerIsTeacher bool) (*SummaryView, error) {
	area := model.FeedbackArea(grade)
	count, err := s.files.CountFiles(ctx, area)
	if err != nil {
		return nil, err
	}

	view := &SummaryView{
		FileCount:       count,
		OverLimit:       count > maxSummaryFiles,
		ShowLoginPrompt: !s.docs.HasValidSession(ctx, viewerID),
		Graded:          grade.IsGraded(),
	}
	if view.OverLimit {
		return view, nil
	}

	if view.Graded && !view.ShowLoginPrompt {
		view.Action = &NoteAction{
			Label:        ActionViewFeedback,
			AssignmentID: grade.AssignmentID,
			UserID:       grade.UserID,
			GradeID:      grade.ID,
			IsTeacher:    viewerIsTeacher,
		}
	}

	files, err := s.files.ListFiles(ctx, area)
	if err != nil {
		return nil, err
	}
	view.Files = files
	return view, nil
}

// IsEmpty 每次都以文件区为准
func (s *FeedbackService) IsEmpty(ctx context.Context, grade *model.Grade) (bool, error) {
	count, err := s.files.CountFiles(ctx, model.FeedbackArea(grade))
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// View 成绩反馈文件区中的文件
func (s *FeedbackService) View(ctx context.Context, grade *model.Grade) ([]model.StoredFile, error) {
	return s.files.ListFiles(ctx, model.FeedbackArea(grade))
}

// FindFile 文件元数据，不打开内容
func (s *FeedbackService) FindFile(ctx context.Context, fileID string) (*model.StoredFile, error) {
	return s.files.Find(ctx, fileID)
}

func (s *FeedbackService) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, *model.StoredFile, error) {
	return s.files.Open(ctx, fileID)
}

// OnAssignmentDeleted 删除作业的全部反馈记录与反馈文件
func (s *FeedbackService) OnAssignmentDeleted(ctx context.Context, assignmentID uint) error {
	n, err := s.records.DeleteByAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := s.files.DeleteContext(ctx, assignmentID, model.FeedbackComponent); err != nil {
		return err
	}
	logger.Log.Info("Assignment feedback removed", zap.Uint("assignment_id", assignmentID), zap.Int64("records", n))
	return nil
}

// FileAreas 插件使用的文件区及其名称
func (s *FeedbackService) FileAreas() map[string]string {
	return map[string]string{model.FeedbackFileArea: "OneNote"}
}

func (s *FeedbackService) CopyAreaFiles(ctx context.Context, from, to model.AreaKey) (int, error) {
	return s.files.CopyArea(ctx, from, to)
}

// FormActions 评分表单：已登录 OneNote 时给出添加反馈的操作，否则提示登录
func (s *FeedbackService) FormActions(ctx context.Context, assignmentID, userID, gradeID, viewerID uint, viewerIsTeacher bool) (*FormActions, error) {
	if !s.docs.HasValidSession(ctx, viewerID) {
		return &FormActions{SignedIn: false}, nil
	}

	action := &NoteAction{
		Label:        ActionAddFeedback,
		AssignmentID: assignmentID,
		UserID:       userID,
		GradeID:      gradeID,
		IsTeacher:    viewerIsTeacher,
	}
	pageID, err := s.links.ResolveTeacherPage(ctx, assignmentID, userID)
	switch {
	case err == nil:
		action.PageID = pageID
	case !errors.Is(err, util.ErrLinkNotFound):
		return nil, err
	}

	return &FormActions{SignedIn: true, Action: action}, nil
}
