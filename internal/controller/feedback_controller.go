package controller

import (
	"errors"
	"io"
	"net/http"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/repository"
	"onenote_feedback/internal/service"
	"onenote_feedback/internal/util"
	"onenote_feedback/pkg/logger"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SignInLinker 生成 OneNote 登录地址
type SignInLinker interface {
	SignInURL(state string) string
}

type FeedbackController struct {
	FeedbackService *service.FeedbackService
	GradeRepo       *repository.GradeRepository
	SignIn          SignInLinker
	Config          *config.Config
}

func NewFeedbackController(feedbackService *service.FeedbackService, gradeRepo *repository.GradeRepository, signIn SignInLinker, cfg *config.Config) *FeedbackController {
	return &FeedbackController{
		FeedbackService: feedbackService,
		GradeRepo:       gradeRepo,
		SignIn:          signIn,
		Config:          cfg,
	}
}

func (c *FeedbackController) loadGrade(ctx *gin.Context) (*model.Grade, bool) {
	gradeID, err := strconv.ParseUint(ctx.Param("gradeId"), 10, 64)
	if err != nil || gradeID == 0 {
		util.BadRequest(ctx, "invalid grade id")
		return nil, false
	}
	grade, err := c.GradeRepo.FindByID(ctx.Request.Context(), uint(gradeID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.Error(ctx, http.StatusNotFound, util.ErrGradeNotFound.Error())
		return nil, false
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return nil, false
	}
	return grade, true
}

func (c *FeedbackController) signInURL(userID uint) string {
	state, err := util.GenerateOAuthState(userID, c.Config.JWT.Secret)
	if err != nil {
		logger.Log.Error("Failed to sign oauth state", zap.Uint("user_id", userID), zap.Error(err))
		return ""
	}
	return c.SignIn.SignInURL(state)
}

func isTeacher(user *util.Claims) bool {
	return user.Role == model.Teacher || user.Role == model.Admin
}

// loadViewableGrade 学生只能查看自己的成绩
func (c *FeedbackController) loadViewableGrade(ctx *gin.Context) (*model.Grade, *util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, nil, false
	}
	grade, ok := c.loadGrade(ctx)
	if !ok {
		return nil, nil, false
	}
	if !canView(user, grade) {
		util.Forbidden(ctx)
		return nil, nil, false
	}
	return grade, user, true
}

func canView(user *util.Claims, grade *model.Grade) bool {
	return isTeacher(user) || user.UserID == grade.UserID
}

// @Summary 同步 OneNote 反馈
// @Description 下载教师的 OneNote 反馈页面并保存为成绩唯一的反馈文件
// @Tags 反馈
// @Produce json
// @Security ApiKeyAuth
// @Param gradeId path int true "成绩ID"
// @Success 200 {object} util.Response{data=model.FeedbackRecord}
// @Failure 401 {object} util.Response "需要登录 OneNote，data.signInUrl 为登录地址"
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 502 {object} util.Response
// @Router /grades/{gradeId}/feedback/sync [post]
func (c *FeedbackController) Sync(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	grade, ok := c.loadGrade(ctx)
	if !ok {
		return
	}

	record, err := c.FeedbackService.Sync(ctx.Request.Context(), grade, user.UserID)
	if err != nil {
		c.writeSyncError(ctx, user.UserID, err)
		return
	}
	util.Success(ctx, record)
}

func (c *FeedbackController) writeSyncError(ctx *gin.Context, userID uint, err error) {
	switch {
	case errors.Is(err, util.ErrLinkNotFound):
		util.Error(ctx, http.StatusNotFound, util.ErrLinkNotFound.Error())
	case errors.Is(err, util.ErrAuthRequired):
		util.ErrorWithData(ctx, http.StatusUnauthorized, util.ErrAuthRequired.Error(), gin.H{
			"signInUrl": c.signInURL(userID),
		})
	case errors.Is(err, util.ErrSyncInProgress):
		util.Error(ctx, http.StatusConflict, util.ErrSyncInProgress.Error())
	case errors.Is(err, util.ErrExportFailed):
		logger.Log.Warn("OneNote export failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		util.Error(ctx, http.StatusBadGateway, util.ErrExportFailed.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 反馈摘要
// @Description 文件数超过 max 时只返回数量，否则同时返回文件列表
// @Tags 反馈
// @Produce json
// @Security ApiKeyAuth
// @Param gradeId path int true "成绩ID"
// @Param max query int false "摘要中直接列出的最大文件数"
// @Success 200 {object} util.Response{data=service.SummaryView}
// @Failure 403 {object} util.Response
// @Router /grades/{gradeId}/feedback/summary [get]
func (c *FeedbackController) GetSummary(ctx *gin.Context) {
	grade, user, ok := c.loadViewableGrade(ctx)
	if !ok {
		return
	}

	max := c.FeedbackService.MaxSummaryFiles()
	if raw := ctx.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			util.BadRequest(ctx, "invalid max")
			return
		}
		max = n
	}

	view, err := c.FeedbackService.GetSummary(ctx.Request.Context(), grade, max, user.UserID, isTeacher(user))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	c.attachURLs(view.Files)
	util.Success(ctx, view)
}

// @Summary 反馈是否为空
// @Tags 反馈
// @Produce json
// @Security ApiKeyAuth
// @Param gradeId path int true "成绩ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /grades/{gradeId}/feedback/empty [get]
func (c *FeedbackController) IsEmpty(ctx *gin.Context) {
	grade, _, ok := c.loadViewableGrade(ctx)
	if !ok {
		return
	}
	empty, err := c.FeedbackService.IsEmpty(ctx.Request.Context(), grade)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"empty": empty})
}

// @Summary 反馈文件列表
// @Tags 反馈
// @Produce json
// @Security ApiKeyAuth
// @Param gradeId path int true "成绩ID"
// @Success 200 {object} util.Response{data=[]model.StoredFile}
// @Failure 403 {object} util.Response
// @Router /grades/{gradeId}/feedback/files [get]
func (c *FeedbackController) View(ctx *gin.Context) {
	grade, _, ok := c.loadViewableGrade(ctx)
	if !ok {
		return
	}
	files, err := c.FeedbackService.View(ctx.Request.Context(), grade)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	c.attachURLs(files)
	util.Success(ctx, files)
}

func (c *FeedbackController) attachURLs(files []model.StoredFile) {
	for i := range files {
		files[i].URL = "/api/feedback/files/" + files[i].ID + "/download"
	}
}

// @Summary 下载反馈文件
// @Tags 反馈
// @Produce application/zip
// @Security ApiKeyAuth
// @Param fileId path string true "文件ID"
// @Success 200 {file} file
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /feedback/files/{fileId}/download [get]
func (c *FeedbackController) Download(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	if !c.canDownload(ctx, user, ctx.Param("fileId")) {
		return
	}

	rc, file, err := c.FeedbackService.OpenFile(ctx.Request.Context(), ctx.Param("fileId"))
	if errors.Is(err, util.ErrFileNotFound) {
		util.NotFound(ctx)
		return
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer rc.Close()

	contentType := file.MimeType
	if contentType == "" {
		contentType = util.MimeOctetStream
	}
	ctx.Header("Content-Disposition", "attachment; filename=\""+file.FileName+"\"")
	ctx.Header("Content-Type", contentType)
	if file.Size > 0 {
		ctx.Header("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	ctx.Status(http.StatusOK)
	if _, err := io.Copy(ctx.Writer, rc); err != nil {
		logger.Log.Warn("Feedback download interrupted", zap.String("file_id", file.ID), zap.Error(err))
	}
}

// canDownload 非教师只能下载自己成绩反馈区中的文件
func (c *FeedbackController) canDownload(ctx *gin.Context, user *util.Claims, fileID string) bool {
	file, err := c.FeedbackService.FindFile(ctx.Request.Context(), fileID)
	if errors.Is(err, util.ErrFileNotFound) {
		util.NotFound(ctx)
		return false
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return false
	}
	if isTeacher(user) {
		return true
	}

	if file.Component != model.FeedbackComponent || file.FileArea != model.FeedbackFileArea {
		util.Forbidden(ctx)
		return false
	}
	grade, err := c.GradeRepo.FindByID(ctx.Request.Context(), file.ItemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.Forbidden(ctx)
		return false
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return false
	}
	if grade.AssignmentID != file.ContextID || !canView(user, grade) {
		util.Forbidden(ctx)
		return false
	}
	return true
}

// @Summary 评分表单中的 OneNote 操作
// @Description 已登录 OneNote 时返回添加反馈的操作，否则返回登录地址
// @Tags 反馈
// @Produce json
// @Security ApiKeyAuth
// @Param gradeId path int true "成绩ID"
// @Param userId query int false "学生ID，默认取成绩所属学生"
// @Success 200 {object} util.Response{data=service.FormActions}
// @Router /grades/{gradeId}/feedback/form [get]
func (c *FeedbackController) FormActions(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	grade, ok := c.loadGrade(ctx)
	if !ok {
		return
	}

	studentID := grade.UserID
	if raw := ctx.Query("userId"); raw != "" {
		studentID = util.MustParseUint(raw)
		if studentID == 0 {
			util.BadRequest(ctx, "invalid user id")
			return
		}
	}

	actions, err := c.FeedbackService.FormActions(ctx.Request.Context(), grade.AssignmentID, studentID, grade.ID, user.UserID, isTeacher(user))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if !actions.SignedIn {
		util.Success(ctx, gin.H{
			"signedIn":  false,
			"signInUrl": c.signInURL(user.UserID),
		})
		return
	}
	util.Success(ctx, actions)
}

// @Summary 反馈文件区
// @Tags 反馈
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /feedback/areas [get]
func (c *FeedbackController) FileAreas(ctx *gin.Context) {
	util.Success(ctx, c.FeedbackService.FileAreas())
}

type CopyAreaRequest struct {
	From model.AreaKey `json:"from"`
	To   model.AreaKey `json:"to"`
}

// @Summary 复制文件区
// @Description 将一个文件区中的所有文件复制到另一个文件区，根目录条目不复制
// @Tags 管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CopyAreaRequest true "源与目标文件区"
// @Success 200 {object} util.Response
// @Router /feedback/areas/copy [post]
func (c *FeedbackController) CopyArea(ctx *gin.Context) {
	var req CopyAreaRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.From.Component == "" || req.From.FileArea == "" || req.To.Component == "" || req.To.FileArea == "" {
		util.BadRequest(ctx, "component and fileArea are required")
		return
	}
	if req.From == req.To {
		util.BadRequest(ctx, "source and target areas are identical")
		return
	}

	n, err := c.FeedbackService.CopyAreaFiles(ctx.Request.Context(), req.From, req.To)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"copied": n})
}
