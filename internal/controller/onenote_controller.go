package controller

import (
	"context"
	"net/http"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/util"
	"onenote_feedback/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OneNoteSession 用户 OneNote 会话的管理能力
type OneNoteSession interface {
	SignInLinker
	Exchange(ctx context.Context, userID uint, code string) error
	SignOut(ctx context.Context, userID uint) error
	HasValidSession(ctx context.Context, userID uint) bool
}

type OneNoteController struct {
	Session OneNoteSession
	Config  *config.Config
}

func NewOneNoteController(session OneNoteSession, cfg *config.Config) *OneNoteController {
	return &OneNoteController{Session: session, Config: cfg}
}

// @Summary OneNote 登录地址
// @Tags OneNote
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /onenote/signin [get]
func (c *OneNoteController) SignIn(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	state, err := util.GenerateOAuthState(user.UserID, c.Config.JWT.Secret)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"url":      c.Session.SignInURL(state),
		"signedIn": c.Session.HasValidSession(ctx.Request.Context(), user.UserID),
	})
}

// @Summary OneNote OAuth 回调
// @Description Microsoft 登录完成后重定向至此，state 中携带发起登录的用户
// @Tags OneNote
// @Produce json
// @Param code query string true "授权码"
// @Param state query string true "登录时签发的 state"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /onenote/callback [get]
func (c *OneNoteController) Callback(ctx *gin.Context) {
	if msg := ctx.Query("error"); msg != "" {
		util.BadRequest(ctx, msg+": "+ctx.Query("error_description"))
		return
	}
	code := ctx.Query("code")
	if code == "" {
		util.BadRequest(ctx, "missing code")
		return
	}

	userID, err := util.ParseOAuthState(ctx.Query("state"), c.Config.JWT.Secret)
	if err != nil {
		logger.Log.Debug("Invalid oauth state", zap.Error(err))
		util.BadRequest(ctx, util.ErrInvalidState.Error())
		return
	}

	if err := c.Session.Exchange(ctx.Request.Context(), userID, code); err != nil {
		logger.Log.Warn("OneNote code exchange failed", zap.Uint("user_id", userID), zap.Error(err))
		util.Error(ctx, http.StatusBadGateway, "onenote sign-in failed")
		return
	}

	logger.Log.Info("OneNote signed in", zap.Uint("user_id", userID))
	util.Success(ctx, gin.H{"signedIn": true})
}

// @Summary 退出 OneNote
// @Tags OneNote
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /onenote/signout [post]
func (c *OneNoteController) SignOut(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	if err := c.Session.SignOut(ctx.Request.Context(), user.UserID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"signedIn": false})
}
