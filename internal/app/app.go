package app

import (
	"context"
	"log"
	"net/http"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/controller"
	"onenote_feedback/internal/lease"
	"onenote_feedback/internal/onenote"
	"onenote_feedback/internal/repository"
	"onenote_feedback/internal/service"
	"onenote_feedback/pkg/configwatcher"
	"onenote_feedback/pkg/database"
	"onenote_feedback/pkg/logger"
	"onenote_feedback/pkg/monitoring"
	"onenote_feedback/pkg/security"
	"onenote_feedback/pkg/tracing"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigPath      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
	done            chan struct{}
}

type repositories struct {
	feedback *repository.FeedbackRepository
	link     *repository.LinkRepository
	grade    *repository.GradeRepository
	file     *repository.FileRepository
	token    *repository.TokenRepository
}

type services struct {
	storage  *service.StorageService
	files    *service.FileStore
	onenote  *onenote.Client
	feedback *service.FeedbackService
}

type controllers struct {
	feedback *controller.FeedbackController
	onenote  *controller.OneNoteController
	admin    *controller.AdminController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		feedback: repository.NewFeedbackRepository(db),
		link:     repository.NewLinkRepository(db),
		grade:    repository.NewGradeRepository(db),
		file:     repository.NewFileRepository(db),
		token:    repository.NewTokenRepository(db),
	}
}

func (a *App) initLocker(rdb *redis.Client) lease.Locker {
	if rdb != nil {
		return lease.NewRedisLocker(rdb, "onenote_feedback:")
	}
	logger.Log.Info("Redis disabled, using in-process sync lease")
	return lease.NewMemoryLocker()
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.files = service.NewFileStore(repos.file, s.storage.Provider)

	client, err := onenote.NewClient(&cfg.OneNote, repos.token)
	if err != nil {
		logger.Log.Fatal("Failed to initialize OneNote client", zap.Error(err))
	}
	s.onenote = client

	s.feedback = service.NewFeedbackService(repos.link, s.onenote, repos.feedback, s.files, a.initLocker(rdb), cfg)
	a.RegisterConfigCallback(s.feedback.ApplyConfig)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		feedback: controller.NewFeedbackController(s.feedback, repos.grade, s.onenote, a.Config),
		onenote:  controller.NewOneNoteController(s.onenote, a.Config),
		admin:    controller.NewAdminController(s.feedback, repos.link, repos.grade),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks() {
	if a.ConfigPath == "" {
		return
	}
	go func() {
		configFile := filepath.Join(a.ConfigPath, "config.yaml")
		if err := configwatcher.WatchConfig(configFile, a.applyConfig, a.done); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config, configPath string) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode != "release" || cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config:     cfg,
		ConfigPath: configPath,
		DB:         db,
		done:       make(chan struct{}),
	}

	if cfg.MigrateOnly {
		return app
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Warn("Failed to initialize redis, falling back to in-process lease", zap.Error(err))
		} else {
			app.Redis = rdb
		}
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, app.Redis)
	app.services = services
	controllers := app.initControllers(services, repos, db, app.Redis)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	app.startBackgroundTasks()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	close(a.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Log.Info("Server exiting")
}
