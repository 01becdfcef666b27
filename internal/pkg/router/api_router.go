package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VirtuFitHQ/VirtuFit/app/controllers"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/env"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/middleware"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/quota"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/ratelimit"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/tryon"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/webhook"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/widgetsession"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	factory := repository.GetGlobalFactory()
	merchants := factory.GetMerchantRepository()
	sessions := factory.GetSessionRepository()
	events := factory.GetWebhookEventRepository()

	manager := widgetsession.NewManager(sessions, widgetsession.Config{
		CompleteOnLimit: envBool("SESSION_COMPLETE_ON_LIMIT", true),
	})
	if interval := envDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute); interval > 0 {
		manager.StartSweeper(interval)
	}

	accountant := quota.NewAccountant(merchants)
	notifier := webhook.NewNotifier(events)
	provider := tryon.NewHTTPProviderFromEnv()
	orchestrator := tryon.NewOrchestrator(manager, merchants, accountant, provider, notifier)

	widgetController := controllers.NewWidgetController(manager, orchestrator, notifier)
	merchantController := controllers.NewMerchantController(merchants, sessions, events, accountant)

	store := ratelimit.RedisStore{}
	ipLimiter := ratelimit.New("ip", envInt("RATE_LIMIT_IP_PER_MINUTE", 20), time.Minute, store)
	merchantLimiter := ratelimit.New("merchant", envInt("RATE_LIMIT_MERCHANT_PER_MINUTE", 100), time.Minute, store)

	// The IP limiter runs before authentication so unauthenticated floods
	// are cut off without touching the merchant table.
	api := app.Group("/api", middleware.IPRateLimitMiddleware(ipLimiter))

	merchant := api.Group("/merchant")
	merchant.Post("/register", merchantController.HandleRegister)

	merchantAuthed := merchant.Group("",
		middleware.MerchantAuthMiddleware(),
		middleware.MerchantRateLimitMiddleware(merchantLimiter),
	)
	merchantAuthed.Get("/me", merchantController.HandleGetProfile)
	merchantAuthed.Post("/rotate-keys", merchantController.HandleRotateKeys)
	merchantAuthed.Put("/domains", merchantController.HandleUpdateDomains)
	merchantAuthed.Get("/sessions/:id/webhooks", merchantController.HandleListWebhookDeliveries)

	widget := api.Group("/widget",
		middleware.MerchantAuthMiddleware(),
		middleware.MerchantRateLimitMiddleware(merchantLimiter),
	)
	widget.Post("/session", widgetController.HandleCreateSession)
	widget.Get("/session/:id", widgetController.HandleGetSession)
	widget.Post("/session/:id/try-on", widgetController.HandleTryOn)
	widget.Get("/session/:id/result", widgetController.HandleGetResult)
	widget.Get("/session/:id/poll", widgetController.HandlePollSession)
	widget.Delete("/session/:id", widgetController.HandleDeleteSession)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(env.GetEnv(key, "")); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	if v, err := time.ParseDuration(raw); err == nil {
		return v
	}
	return def
}
