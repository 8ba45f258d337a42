package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/teif-firma/internal/bootstrap"
	"github.com/jhoicas/teif-firma/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/teif-firma/internal/interfaces/http"
	"github.com/jhoicas/teif-firma/pkg/config"
	"github.com/jhoicas/teif-firma/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: os.Getenv("LOG_LEVEL"),
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("audit_backend", cfg.Audit.Backend).
		Msg("iniciando aplicación")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuración inválida")
	}

	ctx := context.Background()
	svc, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar servicios")
	}
	defer svc.Close(context.Background())

	if os.Getenv("DB_AUTO_MIGRATE") == "true" {
		if err := postgres.Migrate(ctx, svc.Pool); err != nil {
			log.Fatal().Err(err).Msg("migración de esquema")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
		BodyLimit:    int(cfg.Signature.MaxCertificateSize) + 1024*1024, // multipart completo del certificado
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs (generado con swag init)
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "TEIF Firma API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		CertificateUC: svc.Certificates,
		SigningUC:     svc.Signing,
		AuditUC:       svc.Audit,
		JWTSecret:     cfg.JWT.Secret,
		Security: httpRouter.SecurityConfig{
			Production:   cfg.App.IsProduction(),
			RequireHTTPS: cfg.Signature.RequireHTTPS,
		},
		MaxCertificateSize: cfg.Signature.MaxCertificateSize,
		Log:                log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
