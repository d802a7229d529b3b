// Package api serves the ledger over HTTP for web clients and indexers.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/domain/meta"
)

const shutdownTimeout = 15 * time.Second

type Options struct {
	AllowOrigins string
	JWTSecret    string
	Version      string
	Commit       string
}

type Server struct {
	app       *fiber.App
	processor *ledger.Processor
	query     *ledger.Query
	meta      *meta.Cache
	opts      Options
}

func New(processor *ledger.Processor, query *ledger.Query, metaCache *meta.Cache, opts Options) *Server {
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "*"
	}

	app := fiber.New(fiber.Config{
		AppName:               "pledgebot API",
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(LoggingMiddleware())

	s := &Server{
		app:       app,
		processor: processor,
		query:     query,
		meta:      metaCache,
		opts:      opts,
	}
	s.routes(NewTokenValidator(opts.JWTSecret))
	return s
}

// App exposes the fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes(validator *TokenValidator) {
	s.app.Get("/health", s.health)

	v1 := s.app.Group("/v1")
	v1.Get("/config", s.config)
	v1.Get("/goals/:id", s.getGoal)
	v1.Get("/users/:user/goals", s.userGoals)
	v1.Get("/users/:user/challenges", s.userChallenges)
	v1.Get("/users/:user/beneficiary", s.userBeneficiary)
	v1.Get("/users/:user/pledged", s.userPledged)
	v1.Get("/challenges/open", s.openChallenges)
	v1.Get("/challenges/:id", s.getChallenge)
	v1.Get("/challenges/:id/participants", s.challengeParticipants)
	v1.Get("/events", s.events)
	v1.Get("/meta/:kind/:id", s.getMeta)

	auth := AuthRequired(validator)
	v1.Post("/goals", auth, s.createGoal)
	v1.Post("/goals/:id/complete", auth, s.completeGoal)
	v1.Post("/goals/:id/claim", auth, s.claimGoal)
	v1.Post("/goals/:id/forfeit", auth, s.forfeitGoal)
	v1.Put("/beneficiary", auth, s.setBeneficiary)
	v1.Delete("/beneficiary", auth, s.clearBeneficiary)
	v1.Post("/challenges", auth, s.createChallenge)
	v1.Post("/challenges/:id/join", auth, s.joinChallenge)
	v1.Post("/challenges/:id/complete", auth, s.completeChallenge)
	v1.Post("/challenges/:id/resolve", auth, s.resolveChallenge)
	v1.Post("/challenges/:id/claim", auth, s.claimWinnings)
	v1.Put("/meta/:kind/:id", auth, s.putMeta)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("Starting API server", slog.String("type", "api"), slog.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	slog.Info("API server stopped", slog.String("type", "api"))
	return nil
}
