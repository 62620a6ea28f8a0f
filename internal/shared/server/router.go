package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	googleauth "interview-backend/internal/auth"
	"interview-backend/internal/docparse"
	"interview-backend/internal/interview"
	"interview-backend/internal/llm"
	"interview-backend/internal/llm/deepseek"
	"interview-backend/internal/quota"
	"interview-backend/internal/session"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
	"interview-backend/internal/shared/storage/db"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) (*gin.Engine, *interview.Service) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
	)

	// Dependencies
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			if err := db.RunMigrations(context.Background(), dbConn); err != nil {
				log.Printf("failed to run migrations, falling back to memory: %v", err)
				dbConn = nil
			}
		}
		sqlDB = dbConn
	}

	var quotaSvc *quota.Service
	if sqlDB != nil {
		quotaSvc = quota.NewPostgresService(quota.NewPGStore(sqlDB))
	} else {
		quotaSvc = quota.NewService()
	}
	quotaHandler := quota.NewHandler(quotaSvc)

	var repo interview.Repo
	if sqlDB != nil {
		repo = &interview.PGRepo{DB: sqlDB}
	} else {
		repo = interview.NewMemoryRepo()
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		sessions = session.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}))
	} else {
		sessions = session.NewMemoryStore()
	}

	var llmClient llm.Client
	if client, err := deepseek.NewClient(cfg.DeepSeekAPIKey, cfg.DeepSeekModel); err != nil {
		log.Printf("llm client unavailable: %v", err)
		llmClient = llm.PlaceholderClient{}
	} else {
		llmClient = client
	}

	interviewSvc := &interview.Service{
		Repo:     repo,
		Quota:    quotaSvc,
		Parser:   docparse.NewParser(),
		LLM:      llmClient,
		Sessions: sessions,
	}
	interviewHandler := interview.NewHandler(interviewSvc)
	googleAuthSvc := googleauth.NewGoogleService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.UIRedirectURL)

	quizLimiter := middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"QUIZ": {Rate: 0.2, Burst: 3},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/interview/resume/quiz/stream" {
				return "QUIZ"
			}
			return ""
		},
	})

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())
	googleAuthSvc.RegisterRoutes(api)
	registerMeRoutes(api)
	quotaHandler.RegisterRoutes(api)

	quiz := api.Group("")
	quiz.Use(quizLimiter)
	interviewHandler.RegisterRoutes(quiz)

	if cfg.Env == "dev" {
		dev := api.Group("/dev")
		quotaHandler.RegisterDevRoutes(dev)
	}

	return r, interviewSvc
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
