package server

import (
	"backend-apex/internal/auth"
	"backend-apex/internal/config"
	"backend-apex/internal/location"
	"backend-apex/internal/recording"
	"backend-apex/internal/ride"
	"backend-apex/internal/session"
	"backend-apex/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Engine  *recording.Engine
	Gateway *location.Gateway
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	store := session.NewStore(redisClient)
	calibration := session.NewCalibration(redisClient)

	gateway := location.NewGateway(func() {
		if riderID := store.Snapshot().UserID; riderID != "" {
			hub.Notify(riderID, "permission_prompt", "location permission required to record")
		}
	})

	engine := recording.NewEngine(recording.Config{
		Store:          store,
		Calibration:    calibration,
		Saver:          ride.NewAdapter(db),
		Capability:     gateway,
		Publisher:      hub,
		AutoPauseAfter: cfg.AutoPauseAfter,
	})
	// Engine.Init is NOT called here: mount-time recovery may block on a
	// permission prompt that the client can only answer through the
	// /recording/permission route, so the caller runs Init once the
	// listener is up.

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Stream:  hub,
		Engine:  engine,
		Gateway: gateway,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB, s.Redis))
	recording.RegisterRoutes(s.App.Group("/recording"), s.Engine, s.Gateway, jwtMiddleware)
	ride.RegisterRoutes(s.App.Group("/rides"), ride.NewAdapter(s.DB), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
