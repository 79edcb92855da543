package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/credstock/api/controllers"
	"github.com/angelmondragon/credstock/api/middleware"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/logger"
)

// RateLimitStore backs the fixed-window limiters on the shop and admin surfaces.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Deps are the collaborators served over HTTP. Optional members may be nil.
type Deps struct {
	DB        controllers.Pinger
	Redis     controllers.Pinger
	RateStore RateLimitStore
	Gatherer  prometheus.Gatherer
	HTTP      middleware.RequestObserver

	Keys      middleware.KeyValidator
	Counter   controllers.StockCounter
	Seller    controllers.Seller
	Catalog   controllers.Catalog
	Settings  controllers.SettingsStore
	Telegram  controllers.TelegramTester
	Checker   controllers.StockChecker
	Scheduler controllers.SchedulerControl
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.AccessLog(logg, deps.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	inputPolicy := middleware.NewRateLimitPolicy("input", cfg.RateLimit.Window, cfg.RateLimit.Limit)
	adminPolicy := middleware.NewRateLimitPolicy("admin", cfg.RateLimit.AdminWindow, cfg.RateLimit.AdminLimit)

	r.Route("/api/v1/input", func(r chi.Router) {
		r.Use(middleware.APIKey(deps.Keys, logg))
		r.Use(middleware.RateLimit(inputPolicy, deps.RateStore, logg))

		r.Get("/", controllers.InputCount(deps.Counter, logg))
		r.Get("/products", controllers.InputSell(deps.Seller, cfg.Fulfillment.MaxQuantity, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(adminPolicy, deps.RateStore, logg))
		r.Use(middleware.AdminToken(cfg.Admin.TokenHash, logg))

		r.Get("/stats", controllers.AdminStats(deps.Catalog, logg))

		r.Route("/inventories", func(r chi.Router) {
			r.Get("/", controllers.AdminListInventories(deps.Catalog, logg))
			r.Post("/", controllers.AdminCreateInventory(deps.Catalog, logg))
			r.Patch("/{inventoryId}", controllers.AdminUpdateInventory(deps.Catalog, logg))
			r.Delete("/{inventoryId}", controllers.AdminDeleteInventory(deps.Catalog, logg))
			r.Delete("/{inventoryId}/sold", controllers.AdminPurgeSold(deps.Catalog, logg))
			r.Post("/{inventoryId}/delete-by-list", controllers.AdminDeleteByList(deps.Catalog, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.AdminListProducts(deps.Catalog, logg))
			r.Post("/", controllers.AdminAddProducts(deps.Catalog, logg))
			r.Post("/bulk-delete", controllers.AdminBulkDeleteProducts(deps.Catalog, logg))
			r.Delete("/{productId}", controllers.AdminDeleteProduct(deps.Catalog, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", controllers.AdminGetSettings(deps.Settings, logg))
			r.Put("/", controllers.AdminUpdateSettings(deps.Settings, logg))
			r.Post("/telegram/test", controllers.AdminTelegramTest(deps.Telegram, logg))
		})

		r.Post("/stock/check", controllers.AdminStockCheck(deps.Checker, logg))

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/", controllers.AdminSchedulerStatus(deps.Scheduler))
			r.Post("/{action}", controllers.AdminSchedulerAction(deps.Scheduler, logg))
		})
	})

	return r
}
