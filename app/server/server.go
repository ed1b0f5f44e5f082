package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"docqa/app/agent"
	"docqa/app/api"
	"docqa/app/middleware"
	"docqa/app/web"
	"docqa/config"
	"docqa/loader"
	"docqa/model"
	"docqa/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	shutdownTimeout = 10 * time.Second
	uiPrefix        = "/ui"
)

// Deps are the components the HTTP layer is built from.
type Deps struct {
	Config   *config.Config
	Store    store.DBStorer
	Ingestor *loader.Ingestor
	Service  *agent.Service
	Logger   *slog.Logger
}

// NewApp registers middleware and routes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		BodyLimit:             d.Config.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(d.Config.Server.CORSOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.PlugStatic(uiPrefix))

	var (
		checkHandler    = api.NewCheckHandler(d.Config, d.Store)
		configHandler   = api.NewConfigHandler(d.Config)
		documentHandler = api.NewDocumentHandler(d.Ingestor, d.Store, d.Logger)
		fileHandler     = api.NewFileHandler(d.Ingestor, d.Store)
		requestHandler  = api.NewRequestHandler(d.Service, d.Store)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1")
	)

	app.Get("/", checkHandler.HandleWelcome)
	app.Get("/health", checkHandler.HandleHealth)
	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Get("/config", configHandler.HandleGetConfig)

	apiv1.Post("/documents/upload", documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Get("/documents/:id", documentHandler.HandleGet)
	apiv1.Get("/documents/:id/file", fileHandler.HandleDownload)
	apiv1.Delete("/documents/:id", documentHandler.HandleDelete)

	apiv1.Post("/chat/query", requestHandler.HandleQuery)
	apiv1.Get("/chat/history", requestHandler.HandleHistory)

	apiv1.Post("/vector/search", requestHandler.HandleSearch)
	apiv1.Post("/vector/delete-doc/:id", documentHandler.HandleDelete)

	app.Use(uiPrefix, middleware.Static(web.Files(), d.Config.Server.StaticDir))

	return app
}

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Run builds every component, serves HTTP and shuts down when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	st, err := store.Open(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := model.NewLLM(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	embedder, err := model.NewEmbedder(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	ocr, err := model.NewTextRecognizer(s.cfg, llm, s.logger)
	if err != nil {
		return err
	}

	ingestor := loader.NewFromConfig(s.cfg, st, embedder, ocr, s.logger)
	qa := agent.New(llm, model.NewTokenCounter(), agent.ConfigFrom(s.cfg), s.logger)

	app := NewApp(Deps{
		Config:   s.cfg,
		Store:    st,
		Ingestor: ingestor,
		Service:  agent.NewService(qa, st, embedder, s.logger),
		Logger:   s.logger,
	})

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Server.Addr)
		errCh <- app.Listen(s.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		s.logger.Error("error to start server", "error", err)
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
