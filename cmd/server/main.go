package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lottofun/internal/config"
	cronrunner "lottofun/internal/cron"
	"lottofun/internal/db"
	"lottofun/internal/handler"
	"lottofun/internal/logger"
	gormrepository "lottofun/internal/repository/gorm"
	"lottofun/internal/service"
)

func main() {
	cfgPath := os.Getenv("LF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("LF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	prizeAllocator := service.NewPrizeAllocator(cfg.Prizes)
	drawService := &service.DrawService{
		Repo:      store,
		Prizes:    prizeAllocator,
		Logger:    logger,
		Frequency: cfg.Draw.Frequency,
		BatchSize: cfg.Draw.ProcessingBatchSize,
	}
	ticketService := &service.TicketService{
		Repo:   store,
		Logger: logger,
		Price:  cfg.Ticket.PriceDecimal(),
	}
	userService := &service.UserService{Repo: store}
	authService := &service.AuthService{
		Repo:   store,
		Config: cfg.Auth,
		Logger: logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	authRequired := handler.AuthRequired(authService)

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	authHandler := &handler.AuthHandler{Auth: authService}
	authHandler.Register(engine)
	drawHandler := &handler.DrawHandler{Draws: drawService}
	drawHandler.Register(engine, authRequired)
	ticketHandler := &handler.TicketHandler{Tickets: ticketService}
	ticketHandler.Register(engine, authRequired)
	userHandler := &handler.UserHandler{Users: userService}
	userHandler.Register(engine, authRequired)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := &service.DrawScheduler{
		Draws:  drawService,
		Repo:   store,
		Logger: logger,
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("draw scheduler init failed", zap.Error(err))
	}
	defer scheduler.Stop()

	cronRunner := cronrunner.New(logger, ctx)
	sweepSpec := "@every " + cfg.Draw.RecoverySweep.String()
	if _, err := cronRunner.Add(sweepSpec, scheduler.RecoverySweep); err != nil {
		logger.Warn("cron register recovery sweep failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
