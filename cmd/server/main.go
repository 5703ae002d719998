package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/auth"
	"github.com/freeeve/hex-conquest/api/internal/config"
	"github.com/freeeve/hex-conquest/api/internal/handler"
	"github.com/freeeve/hex-conquest/api/internal/logger"
	"github.com/freeeve/hex-conquest/api/internal/middleware"
	"github.com/freeeve/hex-conquest/api/internal/narrative"
	"github.com/freeeve/hex-conquest/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/hex-conquest/api/internal/repository/redis"
	"github.com/freeeve/hex-conquest/api/internal/service"
	"github.com/freeeve/hex-conquest/api/internal/telemetry"
	"github.com/freeeve/hex-conquest/api/migrations"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	closeLog := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON})
	defer closeLog()
	log.Info().Str("port", cfg.Port).Dur("actionDuration", cfg.DefaultActionDuration).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "hex-conquest-api")
	if err != nil {
		log.Warn().Err(err).Msg("Tracing setup failed, continuing without traces")
	}

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxOpen:     cfg.DB.MaxOpenConns,
		MaxIdle:     cfg.DB.MaxIdleConns,
		MaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(ctx, db, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("Database migration failed")
		}
	}

	// Redis
	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	if err := redisClient.EnableExpiryEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timer expiry falls back to polling)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	roomRepo := postgres.NewRoomRepo(db)
	turnRepo := postgres.NewTurnRepo(db)
	newsRepo := postgres.NewNewsRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	rules := conquest.DefaultRules()
	rules.TradeExpiryTurns = cfg.TradeExpiryTurns
	rules.NewsCap = cfg.NewsCap

	roomSvc := service.NewRoomService(roomRepo, turnRepo, userRepo, redisClient, wsHub)
	roomSvc.SetRules(rules)
	roomSvc.SetDefaultActionDuration(cfg.DefaultActionDuration)
	intentSvc := service.NewIntentService(roomRepo, turnRepo, redisClient)
	turnSvc := service.NewTurnService(roomRepo, turnRepo, newsRepo, redisClient, wsHub)

	if narrator := narrative.NewClient(cfg.Narrative); narrator.Enabled() {
		turnSvc.SetAugmenter(narrator, cfg.Narrative.Timeout)
		log.Info().Str("model", cfg.Narrative.Model).Msg("Battle narration enabled")
	}

	// Timer listener (auto-resolve on expiry)
	timerListener := service.NewTimerListener(redisClient, turnSvc, turnRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	if cfg.DevMode {
		authHandler.EnableDevLogin()
		log.Warn().Msg("Dev login enabled")
	}
	userHandler := handler.NewUserHandler(userRepo)
	roomHandler := handler.NewRoomHandler(roomSvc, turnSvc)
	intentHandler := handler.NewIntentHandler(intentSvc, turnSvc, wsHub)
	queryHandler := handler.NewQueryHandler(intentSvc, turnSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, roomSvc)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)

	api.HandleFunc("POST /rooms", roomHandler.CreateRoom)
	api.HandleFunc("GET /rooms", roomHandler.ListRooms)
	api.HandleFunc("GET /rooms/{id}", roomHandler.GetRoom)
	api.HandleFunc("DELETE /rooms/{id}", roomHandler.DeleteRoom)
	api.HandleFunc("POST /rooms/{id}/join", roomHandler.JoinRoom)
	api.HandleFunc("POST /rooms/{id}/start", roomHandler.StartRoom)
	api.HandleFunc("POST /rooms/{id}/stop", roomHandler.StopRoom)

	api.HandleFunc("POST /rooms/{id}/intents", intentHandler.SubmitIntent)
	api.HandleFunc("GET /rooms/{id}/intents", intentHandler.ListIntents)
	api.HandleFunc("DELETE /rooms/{id}/intents/{slot}", intentHandler.WithdrawIntent)
	api.HandleFunc("POST /rooms/{id}/ready", intentHandler.MarkReady)
	api.HandleFunc("DELETE /rooms/{id}/ready", intentHandler.UnmarkReady)
	api.HandleFunc("GET /rooms/{id}/relations", intentHandler.ListRelations)
	api.HandleFunc("POST /rooms/{id}/diplomacy", intentHandler.Diplomacy)
	api.HandleFunc("GET /rooms/{id}/trades", intentHandler.ListTrades)
	api.HandleFunc("POST /rooms/{id}/trades", intentHandler.ProposeTrade)
	api.HandleFunc("POST /rooms/{id}/trades/{tradeId}/respond", intentHandler.RespondTrade)
	api.HandleFunc("GET /rooms/{id}/automoves", intentHandler.ListAutoMoves)
	api.HandleFunc("POST /rooms/{id}/automoves", intentHandler.CreateAutoMove)
	api.HandleFunc("DELETE /rooms/{id}/automoves/{orderId}", intentHandler.CancelAutoMove)
	api.HandleFunc("POST /rooms/{id}/automoves/{orderId}/resolve", intentHandler.ResolveAutoMove)
	api.HandleFunc("GET /rooms/{id}/battlefields", intentHandler.ListBattlefields)
	api.HandleFunc("POST /rooms/{id}/battlefields/{battlefieldId}/act", intentHandler.BattlefieldAction)

	api.HandleFunc("GET /rooms/{id}/state", queryHandler.State)
	api.HandleFunc("GET /rooms/{id}/troops", queryHandler.Troops)
	api.HandleFunc("GET /rooms/{id}/reachable", queryHandler.Reachable)
	api.HandleFunc("GET /rooms/{id}/news", queryHandler.News)
	api.HandleFunc("GET /rooms/{id}/turns", queryHandler.Turns)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux,
		middleware.Trace,
		middleware.Logger,
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		middleware.CORS(cfg.CORSOrigins),
		middleware.JSON,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Rehydrate Redis from Postgres after a restart
	if err := turnSvc.RecoverActiveRooms(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover active rooms (non-fatal)")
	}

	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Tracing shutdown error")
	}
	log.Info().Msg("Server stopped")
}
