package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/branches"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Deps lists everything the HTTP surface needs. Nil pingers are reported as
// disabled by the readiness probe; a nil idempotency store disables replay.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Address  address.Service
	Branches branches.Service
	Cart     cart.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    d.Redis,
		}, logg))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/address", func(r chi.Router) {
		r.Get("/provinces", controllers.AddressProvinces(d.Address, logg))
		r.Get("/provinces/{provinceId}/districts", controllers.AddressDistricts(d.Address, logg))
		r.Get("/districts/{districtId}/wards", controllers.AddressWards(d.Address, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/", controllers.CartGet(d.Cart, logg))
		r.Delete("/", controllers.CartClear(d.Cart, logg))
		r.With(middleware.Idempotency(d.Idempotency, cfg.Cart.IdempotencyTTL, logg)).
			Post("/items", controllers.CartAddItem(d.Cart, logg))
		r.Patch("/items/{variantId}", controllers.CartUpdateItem(d.Cart, logg))
		r.Delete("/items/{variantId}", controllers.CartRemoveItem(d.Cart, logg))
	})

	r.Route("/api/admin/v1/branches", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, pkgAuth.RoleAdmin))
		r.Post("/", controllers.AdminBranchCreate(d.Branches, logg))
		r.Get("/", controllers.AdminBranchList(d.Branches, logg))
		r.Get("/stats", controllers.AdminBranchStats(d.Branches, logg))
		r.Get("/{branchId}", controllers.AdminBranchGet(d.Branches, logg))
		r.Patch("/{branchId}", controllers.AdminBranchUpdate(d.Branches, logg))
		r.Delete("/{branchId}", controllers.AdminBranchDelete(d.Branches, logg))
		r.Get("/{branchId}/references", controllers.AdminBranchReferences(d.Branches, logg))
		r.Delete("/{branchId}/cascade", controllers.AdminBranchDeleteCascade(d.Branches, logg))
	})

	return r
}
