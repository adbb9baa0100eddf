package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/scopefence/api"
	"github.com/yourusername/scopefence/metrics"
	"github.com/yourusername/scopefence/middleware"
	"github.com/yourusername/scopefence/pkg/scopefence"
	"github.com/yourusername/scopefence/store"
)

const filterName = "gateway"

type providerRoute struct {
	ProviderRoute
	proxy *httputil.ReverseProxy
}

// gateway shares one filter between every route, so the global and
// consumer buckets count requests gateway-wide. Provider routes name their
// provider per request, which adds the provider and provider-consumer
// scopes.
type gateway struct {
	cfg       *GatewayConfig
	logger    *slog.Logger
	filter    *scopefence.Filter
	providers []*providerRoute
	extractor scopefence.IdentityExtractor
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	stats     store.Store
	observers []scopefence.Observer
}

func newGateway(cfg *GatewayConfig, stats store.Store, logger *slog.Logger, opts ...scopefence.Option) (*gateway, error) {
	extractor, err := scopefence.ParseIdentityExtractorConfig(cfg.Identity)
	if err != nil {
		return nil, err
	}

	g := &gateway{
		cfg:       cfg,
		logger:    logger,
		extractor: extractor,
		metrics:   metrics.NewMetrics(),
		registry:  prometheus.NewRegistry(),
		stats:     stats,
	}

	opts = append([]scopefence.Option{scopefence.WithLogger(logger)}, opts...)
	g.filter, err = scopefence.NewFilter(filterName, cfg.RateLimit, opts...)
	if err != nil {
		return nil, err
	}

	for _, p := range cfg.Providers {
		target, err := url.Parse(p.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: provider %q target: %v", scopefence.ErrInvalidConfig, p.ID, err)
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		id := p.ID
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("proxy error", "provider", id, "error", err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}
		g.providers = append(g.providers, &providerRoute{ProviderRoute: p, proxy: proxy})
	}

	prom, err := metrics.NewPrometheus(g.registry)
	if err != nil {
		return nil, err
	}
	if err := g.registry.Register(metrics.NewBucketCollector(g.filter)); err != nil {
		return nil, fmt.Errorf("failed to register bucket collector: %w", err)
	}

	// Only configured consumers get their own stats entries; ids read from
	// headers are otherwise unbounded.
	known := cfg.RateLimit.HasConsumer
	g.metrics.TrackConsumer = known
	g.observers = []scopefence.Observer{g.metrics, prom}
	if stats != nil {
		rec := store.NewRecorder(stats, logger)
		rec.TrackConsumer = known
		g.observers = append(g.observers, rec)
	}
	return g, nil
}

// limited wraps h with authentication and rate limiting. A non-empty
// provider is the provider every request through h is routed to.
func (g *gateway) limited(provider string, h http.Handler) http.Handler {
	opts := middleware.Options{
		ConsumerExtractor: g.extractor,
		Observers:         g.observers,
		Logger:            g.logger,
	}
	if provider != "" {
		opts.ProviderFunc = func(*http.Request) string { return provider }
	}

	h = middleware.New(g.filter, opts)(h)
	if len(g.cfg.Users) > 0 {
		h = middleware.Authenticate(g.cfg.Users, "scopefence")(h)
	}
	return h
}

func (g *gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Admin endpoints are never rate limited
	r.Get("/health", g.health)
	r.Get("/dashboard", dashboardHandler)
	r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	r.Route("/admin", func(r chi.Router) {
		h := api.NewHandler(g.filter, g.observers...)
		r.Post("/check", h.CheckRateLimit)
		r.Get("/limits", h.Limits)
		r.Get("/metrics", api.NewMetricsHandler(g.metrics).ServeHTTP)
		r.Get("/stats", g.statsHandler)
	})

	for _, p := range g.providers {
		r.Mount(p.Context, g.limited(p.ID, http.StripPrefix(p.Context, p.proxy)))
	}

	r.NotFound(g.limited("", http.HandlerFunc(notFound)).ServeHTTP)
	return r
}

func (g *gateway) statsHandler(w http.ResponseWriter, r *http.Request) {
	if g.stats == nil {
		writeJSON(w, http.StatusOK, map[string]store.Counts{})
		return
	}

	counts, err := g.stats.Counts(r.Context(), g.filter.Name())
	if err != nil {
		g.logger.Warn("failed to read stats", "filter", g.filter.Name(), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "stats_unavailable",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]store.Counts{g.filter.Name(): counts})
}

func (g *gateway) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "healthy",
		"service":   "scopefence",
		"buckets":   g.filter.Registry().Len(),
		"providers": len(g.providers),
	}
	if p, ok := g.stats.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["stats"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "not_found",
		"message": "no provider serves " + r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
