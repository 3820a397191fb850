package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yndnr/scriptgate-go/internal/core/service"
	"github.com/yndnr/scriptgate-go/internal/server/httpserver/handler"
	"github.com/yndnr/scriptgate-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Service handles script lifecycle operations.
	Service *service.ScriptService

	// Payload is the JavaScript body served on delivery.
	Payload []byte

	// Logger for request logging.
	Logger *slog.Logger

	// Metrics is optional; nil disables the /metrics endpoint and
	// request instrumentation.
	Metrics *metric.Registry

	// AdminKeyHash is the Argon2id hash guarding the admin API.
	// Empty disables the admin API.
	AdminKeyHash string

	// AllowedOrigins is the CORS allowlist for public endpoints.
	AllowedOrigins []string

	// RateLimitPerIP throttles public endpoints per client IP.
	// Zero disables limiting.
	RateLimitPerIP float64

	// RateLimitBurst is the per-IP burst size.
	RateLimitBurst int

	// ReadyCheck probes the storage backend for /ready.
	ReadyCheck func(context.Context) error
}

// NewRouter builds the complete HTTP handler: public script
// endpoints, admin API, health probes, and metrics.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(handler.Config{
		Service:    cfg.Service,
		Payload:    cfg.Payload,
		Logger:     log,
		Metrics:    cfg.Metrics,
		ReadyCheck: cfg.ReadyCheck,
	})

	public := func(route string) http.Handler {
		mws := []Middleware{
			Recover(log),
			RequestID(),
			Logging(log),
		}
		if cfg.Metrics != nil {
			mws = append(mws, Observe(cfg.Metrics, route))
		}
		if cfg.RateLimitPerIP > 0 {
			mws = append(mws, RateLimit(cfg.RateLimitPerIP, cfg.RateLimitBurst))
		}
		if len(cfg.AllowedOrigins) > 0 {
			mws = append(mws, CORS(cfg.AllowedOrigins))
		}
		return Chain(h, mws...)
	}

	admin := func(route string) http.Handler {
		mws := []Middleware{
			Recover(log),
			RequestID(),
			Logging(log),
		}
		if cfg.Metrics != nil {
			mws = append(mws, Observe(cfg.Metrics, route))
		}
		mws = append(mws, AdminAuth(cfg.AdminKeyHash, log))
		return Chain(h, mws...)
	}

	probe := Chain(h, Recover(log), RequestID())

	mux := http.NewServeMux()

	// Health endpoints, unauthenticated.
	mux.Handle("GET /health", probe)
	mux.Handle("GET /ready", probe)

	// Metrics endpoint.
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	// Public script endpoints.
	mux.Handle("GET /script/{name}", public("/script/{name}"))
	mux.Handle("POST /check/{name}", public("/check/{name}"))
	mux.Handle("OPTIONS /script/{name}", public("/script/{name}"))
	mux.Handle("OPTIONS /check/{name}", public("/check/{name}"))

	// Admin API.
	mux.Handle("POST /admin/v1/scripts", admin("/admin/v1/scripts"))
	mux.Handle("GET /admin/v1/scripts/{name}", admin("/admin/v1/scripts/{name}"))
	mux.Handle("GET /admin/v1/scripts/{name}/answers", admin("/admin/v1/scripts/{name}/answers"))
	mux.Handle("POST /admin/v1/scripts/{name}/status", admin("/admin/v1/scripts/{name}/status"))
	mux.Handle("POST /admin/v1/scripts/{name}/first-seen", admin("/admin/v1/scripts/{name}/first-seen"))
	mux.Handle("POST /admin/v1/scripts/{name}/fingerprint", admin("/admin/v1/scripts/{name}/fingerprint"))

	return mux
}
