package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/api/websocket"
	"github.com/modbusmon/modbusmon/internal/auth"
	"github.com/modbusmon/modbusmon/internal/config"
	"github.com/modbusmon/modbusmon/internal/interfaces"
	"github.com/modbusmon/modbusmon/internal/provision"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
	validator   *provision.Validator
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	validator, err := provision.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create provisioning validator: %w", err)
	}

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		validator:   validator,
	}

	s.router.Use(gin.Recovery())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// The dashboard read path is public: value display needs no login.
	api := s.router.Group("/api")
	{
		api.GET("/tags", s.dashboardTags)
		api.GET("/dashboard/config", s.dashboardConfig)
	}

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ENDPOINTS (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== USER MANAGEMENT (ADMIN ONLY) ====================
		users := v1.Group("/users")
		users.Use(s.authService.AuthMiddleware())
		users.Use(auth.RequirePermission(auth.PermAdmin))
		{
			users.POST("", s.createUser)
		}

		// ==================== DEVICES ====================
		devices := v1.Group("/devices")
		devices.Use(s.authService.AuthMiddleware())
		{
			devices.GET("", auth.RequirePermission(auth.PermOperator), s.listDevices)
			devices.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getDevice)

			devices.POST("", auth.RequirePermission(auth.PermAdmin), s.createDevice)
			devices.PUT("/:id", auth.RequirePermission(auth.PermAdmin), s.updateDevice)
			devices.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.deleteDevice)
		}

		// ==================== TAGS ====================
		tagRoutes := v1.Group("/tags")
		tagRoutes.Use(s.authService.AuthMiddleware())
		{
			tagRoutes.GET("", auth.RequirePermission(auth.PermOperator), s.listTags)
			tagRoutes.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getTag)

			tagRoutes.POST("/:id/write", auth.RequirePermission(auth.PermOperator), s.writeTag)

			tagRoutes.POST("", auth.RequirePermission(auth.PermAdmin), s.createTag)
			tagRoutes.PUT("/:id", auth.RequirePermission(auth.PermAdmin), s.updateTag)
			tagRoutes.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.deleteTag)
		}

		// ==================== DATA LOGGERS ====================
		loggers := v1.Group("/loggers")
		loggers.Use(s.authService.AuthMiddleware())
		{
			loggers.GET("", auth.RequirePermission(auth.PermOperator), s.listLoggers)
			loggers.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getLogger)

			loggers.POST("", auth.RequirePermission(auth.PermAdmin), s.createLogger)
			loggers.PUT("/:id", auth.RequirePermission(auth.PermAdmin), s.updateLogger)
			loggers.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.deleteLogger)
		}

		// ==================== ALARMS ====================
		alarmRoutes := v1.Group("/alarms")
		alarmRoutes.Use(s.authService.AuthMiddleware())
		{
			alarmRoutes.GET("/rules", auth.RequirePermission(auth.PermOperator), s.listAlarmRules)
			alarmRoutes.GET("/events", auth.RequirePermission(auth.PermOperator), s.listAlarmEvents)

			alarmRoutes.POST("/rules", auth.RequirePermission(auth.PermAdmin), s.createAlarmRule)
			alarmRoutes.PUT("/rules/:id", auth.RequirePermission(auth.PermAdmin), s.updateAlarmRule)
			alarmRoutes.DELETE("/rules/:id", auth.RequirePermission(auth.PermAdmin), s.deleteAlarmRule)
		}

		// ==================== PROVISIONING (ADMIN ONLY) ====================
		prov := v1.Group("/provision")
		prov.Use(s.authService.AuthMiddleware())
		prov.Use(auth.RequirePermission(auth.PermAdmin))
		{
			prov.POST("", s.applyProvision)
		}

		// ==================== SYSTEM (OPERATOR+) ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		system.Use(auth.RequirePermission(auth.PermOperator))
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== WEBSOCKET (PUBLIC) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
