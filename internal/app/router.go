package app

import (
	"onenote_feedback/docs"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/middleware"
	"onenote_feedback/internal/model"
	"onenote_feedback/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerFeedbackRoutes(authGroup, c)

		// 教师/管理员接口
		a.registerTeacherRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		// Microsoft 登录后由浏览器重定向，用户由 state 识别
		public.GET("/onenote/callback", c.onenote.Callback)
	}
}

func (a *App) registerFeedbackRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/onenote/signin", c.onenote.SignIn)
	group.POST("/onenote/signout", c.onenote.SignOut)

	group.GET("/grades/:gradeId/feedback/summary", c.feedback.GetSummary)
	group.GET("/grades/:gradeId/feedback/empty", c.feedback.IsEmpty)
	group.GET("/grades/:gradeId/feedback/files", c.feedback.View)
	group.GET("/feedback/files/:fileId/download", c.feedback.Download)
	group.GET("/feedback/areas", c.feedback.FileAreas)
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/grades/:gradeId/feedback/sync", c.feedback.Sync)
		teacher.GET("/grades/:gradeId/feedback/form", c.feedback.FormActions)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.PUT("/grades/:gradeId", c.admin.UpsertGrade)
		admin.PUT("/assignments/:assignmentId/links/:userId", c.admin.UpsertLink)
		admin.DELETE("/assignments/:assignmentId", c.admin.DeleteAssignment)
		admin.POST("/feedback/areas/copy", c.feedback.CopyArea)
	}
}
