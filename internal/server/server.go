package server

import (
	"github.com/Ayushh890/runner-app/internal/auth"
	"github.com/Ayushh890/runner-app/internal/config"
	"github.com/Ayushh890/runner-app/internal/geoindex"
	"github.com/Ayushh890/runner-app/internal/match"
	"github.com/Ayushh890/runner-app/internal/presence"
	"github.com/Ayushh890/runner-app/internal/profile"
	"github.com/Ayushh890/runner-app/internal/route"
	"github.com/Ayushh890/runner-app/internal/session"
	"github.com/Ayushh890/runner-app/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Index    *geoindex.Index
	Registry *presence.Registry
	Hub      *session.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Index:    geoindex.New(),
		Registry: presence.NewRegistry(cfg.PresenceTTL()),
		Hub:      session.NewHub(redisClient, cfg.SessionIdleTimeout()),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	profiles := profile.NewStore(s.DB)
	matchSvc := match.NewService(s.Index, s.Registry, profiles, s.Hub, s.Cfg.TeamRequestTTL())

	tracking.RegisterRoutes(s.App.Group("/positions"), tracking.NewService(s.Index, s.Registry), jwtMiddleware)
	match.RegisterRoutes(s.App, matchSvc, jwtMiddleware)
	session.RegisterRoutes(s.App.Group("/sessions"), s.Hub, jwtMiddleware)
	route.RegisterRoutes(s.App.Group("/routes"), route.NewService(s.DB), jwtMiddleware)
}
