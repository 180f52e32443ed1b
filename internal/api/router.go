// Package api 提供仪器控制与日志查询的HTTP接口。
package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/instrument"
	"github.com/wfunc/pulse-server/internal/middleware"
	"github.com/wfunc/pulse-server/internal/repository"
	"github.com/wfunc/pulse-server/internal/utils"
	"github.com/wfunc/pulse-server/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	cfg            *config.Config
	db             *gorm.DB
	controller     instrument.PulseController
	hub            *websocket.Hub
	authHandler    *AuthHandler
	authMiddleware *middleware.AuthMiddleware
	instrumentAPI  *InstrumentAPI
	commandLogAPI  *CommandLogAPI
	wsHandler      *WebSocketHandler
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, db *gorm.DB, controller instrument.PulseController, hub *websocket.Hub, log *zap.Logger) *Router {
	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// 创建中间件与处理器
	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.ExpireDuration())
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, cfg.Security.JWT.Enabled)
	authHandler := NewAuthHandler(jwtManager, &cfg.Security.JWT)

	router := &Router{
		engine:         engine,
		cfg:            cfg,
		db:             db,
		controller:     controller,
		hub:            hub,
		authHandler:    authHandler,
		authMiddleware: authMiddleware,
		instrumentAPI:  NewInstrumentAPI(controller, &cfg.VISA),
		commandLogAPI:  NewCommandLogAPI(repository.NewCommandLogRepository(db), repository.NewSnapshotRepository(db)),
		wsHandler:      NewWebSocketHandler(hub, &cfg.WebSocket, log),
		log:            log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/token", r.authHandler.IssueToken)
		}

		// 仪器控制路由（需要认证）
		inst := v1.Group("/instrument")
		inst.Use(r.authMiddleware.RequireAuth())
		{
			inst.GET("/status", r.instrumentAPI.GetStatus)
			inst.POST("/connect", r.instrumentAPI.Connect)
			inst.POST("/disconnect", r.instrumentAPI.Disconnect)
			inst.GET("/settings", r.instrumentAPI.GetSettings)
			inst.GET("/settings/:name", r.instrumentAPI.GetSetting)
			inst.PUT("/settings/:name", r.instrumentAPI.SetSetting)
			inst.POST("/trigger", r.instrumentAPI.Trigger)
			inst.POST("/selftest", r.instrumentAPI.SelfTest)
			inst.POST("/command", r.instrumentAPI.SendCommand)
			inst.POST("/query", r.instrumentAPI.SendQuery)
		}

		// 日志查询路由（需要认证）
		logs := v1.Group("")
		logs.Use(r.authMiddleware.RequireAuth())
		{
			r.commandLogAPI.RegisterRoutes(logs)
		}
	}

	// WebSocket监控路由
	ws := r.engine.Group("/ws")
	ws.Use(r.authMiddleware.RequireAuth())
	{
		ws.GET("/monitor", r.wsHandler.Monitor)
	}

	// OpenAPI文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":     "healthy",
		"message":    "服务运行正常",
		"instrument": r.controller.State(),
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// respondError 把应用错误映射为HTTP响应
func respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, c.GetHeader("X-Request-ID")))
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": err.Error(),
	})
}
