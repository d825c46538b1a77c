package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/novamart/novamart-backend/api/controllers"
	webhookcontrollers "github.com/novamart/novamart-backend/api/controllers/webhooks"
	"github.com/novamart/novamart-backend/api/middleware"
	checkoutsvc "github.com/novamart/novamart-backend/internal/checkout"
	"github.com/novamart/novamart-backend/internal/cron"
	refundsvc "github.com/novamart/novamart-backend/internal/refunds"
	gatewaywebhook "github.com/novamart/novamart-backend/internal/webhooks/gateway"
	"github.com/novamart/novamart-backend/pkg/config"
	"github.com/novamart/novamart-backend/pkg/db"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	refundService refundsvc.Service,
	webhookService *gatewaywebhook.Service,
	webhookGuard *gatewaywebhook.IdempotencyGuard,
	timeoutJob *cron.OrderTimeoutJob,
	reconciliationJob *cron.ReconciliationJob,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(webhookService, cfg.Gateway.IPNSecret, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Post("/refunds", controllers.IssueRefund(refundService, logg))
	})

	r.Route("/internal/jobs", func(r chi.Router) {
		r.Post("/order-timeout", controllers.RunOrderTimeoutSweep(timeoutJob, logg))
		r.Post("/reconcile", controllers.RunReconciliation(reconciliationJob, logg))
	})

	return r
}
