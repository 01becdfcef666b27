package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/VirtuFitHQ/VirtuFit/app/repository"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/cache"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/database"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/env"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4100")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		AppName: "VirtuFit Widget API",
		// Photos arrive inline; leave headroom above the 10 MiB photo cap
		// for multipart framing and base64 overhead.
		BodyLimit: 16 * 1024 * 1024,
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	router.InstallRouter(app)

	return app
}
