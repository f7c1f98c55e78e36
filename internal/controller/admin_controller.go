package controller

import (
	"onenote_feedback/internal/model"
	"onenote_feedback/internal/repository"
	"onenote_feedback/internal/service"
	"onenote_feedback/internal/util"
	"onenote_feedback/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminController 由外部集成维护的作业数据：页面映射、成绩、作业删除
type AdminController struct {
	FeedbackService *service.FeedbackService
	LinkRepo        *repository.LinkRepository
	GradeRepo       *repository.GradeRepository
}

func NewAdminController(feedbackService *service.FeedbackService, linkRepo *repository.LinkRepository, gradeRepo *repository.GradeRepository) *AdminController {
	return &AdminController{
		FeedbackService: feedbackService,
		LinkRepo:        linkRepo,
		GradeRepo:       gradeRepo,
	}
}

type LinkRequest struct {
	SubmissionStudentPageID string `json:"submissionStudentPageId"`
	FeedbackStudentPageID   string `json:"feedbackStudentPageId"`
	FeedbackTeacherPageID   string `json:"feedbackTeacherPageId"`
}

// @Summary 设置 OneNote 页面映射
// @Tags 管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param assignmentId path int true "作业ID"
// @Param userId path int true "学生ID"
// @Param body body LinkRequest true "页面ID"
// @Success 200 {object} util.Response{data=model.ExternalDocumentLink}
// @Router /assignments/{assignmentId}/links/{userId} [put]
func (c *AdminController) UpsertLink(ctx *gin.Context) {
	assignmentID := util.MustParseUint(ctx.Param("assignmentId"))
	userID := util.MustParseUint(ctx.Param("userId"))
	if assignmentID == 0 || userID == 0 {
		util.BadRequest(ctx, "invalid assignment or user id")
		return
	}

	var req LinkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	link := &model.ExternalDocumentLink{
		AssignID:                assignmentID,
		UserID:                  userID,
		SubmissionStudentPageID: req.SubmissionStudentPageID,
		FeedbackStudentPageID:   req.FeedbackStudentPageID,
		FeedbackTeacherPageID:   req.FeedbackTeacherPageID,
	}
	if err := c.LinkRepo.Upsert(ctx.Request.Context(), link); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, link)
}

type GradeRequest struct {
	AssignmentID uint     `json:"assignmentId" binding:"required"`
	UserID       uint     `json:"userId" binding:"required"`
	Grade        *float64 `json:"grade"`
}

// @Summary 创建或更新成绩
// @Tags 管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param gradeId path int true "成绩ID"
// @Param body body GradeRequest true "成绩"
// @Success 200 {object} util.Response{data=model.Grade}
// @Router /grades/{gradeId} [put]
func (c *AdminController) UpsertGrade(ctx *gin.Context) {
	gradeID := util.MustParseUint(ctx.Param("gradeId"))
	if gradeID == 0 {
		util.BadRequest(ctx, "invalid grade id")
		return
	}

	var req GradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	grade := &model.Grade{
		ID:           gradeID,
		AssignmentID: req.AssignmentID,
		UserID:       req.UserID,
		Grade:        req.Grade,
	}
	if err := c.GradeRepo.Save(ctx.Request.Context(), grade); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, grade)
}

// @Summary 删除作业
// @Description 删除作业的全部 OneNote 反馈记录、反馈文件和成绩
// @Tags 管理
// @Produce json
// @Security ApiKeyAuth
// @Param assignmentId path int true "作业ID"
// @Success 200 {object} util.Response
// @Router /assignments/{assignmentId} [delete]
func (c *AdminController) DeleteAssignment(ctx *gin.Context) {
	assignmentID := util.MustParseUint(ctx.Param("assignmentId"))
	if assignmentID == 0 {
		util.BadRequest(ctx, "invalid assignment id")
		return
	}

	if err := c.FeedbackService.OnAssignmentDeleted(ctx.Request.Context(), assignmentID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if err := c.GradeRepo.DeleteByAssignment(ctx.Request.Context(), assignmentID); err != nil {
		logger.Log.Error("Failed to delete assignment grades", zap.Uint("assignment_id", assignmentID), zap.Error(err))
		util.InternalServerError(ctx)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}
