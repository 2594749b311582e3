package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizlive/internal/app"
	"quizlive/internal/config"
	"quizlive/internal/infra/memory"
	redisinfra "quizlive/internal/infra/redis"
	transport "quizlive/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	rt := cfg.Realtime
	engineCfg := app.Config{
		MaxRooms:            rt.MaxRooms,
		MaxPlayersPerRoom:   rt.MaxPlayersPerRoom,
		MaxConnectionsPerIP: rt.MaxConnectionsPerIP,
		RoomCodeLength:      rt.RoomCodeLength,
		DefaultQuestionTime: rt.DefaultQuestionTime,
		BasePoints:          rt.BasePoints,
		TimeBonusMultiplier: rt.TimeBonusMultiplier,
		LeaderboardSize:     rt.LeaderboardSize,
		GracePeriod:         time.Duration(rt.PlayerGracePeriod) * time.Second,
		CleanupInterval:     time.Duration(rt.CleanupInterval) * time.Second,
		HeartbeatInterval:   time.Duration(rt.HeartbeatInterval) * time.Second,
		SessionMaxAge:       time.Duration(rt.SessionMaxAge) * time.Second,
		MemoryLimitMB:       float64(rt.MaxMemoryMB),
		MemoryWarnMB:        float64(rt.WarningMemoryMB),
	}

	window := time.Duration(rt.RateLimitWindow) * time.Second
	var limiter app.RateLimiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = redisinfra.NewRateLimiter(client, rt.MaxRequestsPerWindow, window, logger)
		logger.Info("using redis rate limiter", "addr", cfg.Redis.Addr)
	} else {
		limiter = memory.NewRateLimiter(rt.MaxRequestsPerWindow, window)
	}

	engine := app.NewEngine(engineCfg, memory.NewRoomStore(), limiter, logger)
	defer engine.Stop()

	wsHandler := transport.NewWSHandler(engine, nil, logger)
	apiHandler := transport.NewAPIHandler(engine, logger)

	router := httprouter.New()
	router.GET("/ws/host/:room_code", wsHandler.ServeHost)
	router.GET("/ws/player/:room_code", wsHandler.ServePlayer)
	router.GET("/rooms/:room_code/info", apiHandler.RoomInfo)
	router.GET("/rooms/:room_code/validate", apiHandler.ValidateRoom)
	router.GET("/rooms/:room_code/leaderboard", apiHandler.Leaderboard)
	router.GET("/stats", apiHandler.Stats)
	router.GET("/health", apiHandler.Health)
	router.POST("/cleanup-sessions", apiHandler.Cleanup)
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// No global read/write timeouts: they would tear down long-lived
	// websocket connections. Liveness is the heartbeat sweep's job.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting quiz engine", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
