// Package gateway dispatches inbound requests: it owns the process-wide
// resource singletons (store connection, request engine), derives a trust
// context per request, and maps service failures to wire-level responses.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sre-norns/skald/pkg/dbstore"
	"github.com/sre-norns/skald/pkg/lazy"
	"github.com/sre-norns/skald/pkg/skald"
	"github.com/sre-norns/skald/pkg/trust"
)

const defaultPingInterval = 30 * time.Second

type Config struct {
	// Store connection string. Absence is surfaced on the first
	// construction attempt, never at startup.
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	// Interval between store liveness probes
	PingInterval time.Duration
}

// Gateway is an http.Handler deployable in a cold-start execution model:
// the store connection and the request engine are constructed lazily on
// first use and shared by every in-flight request.
type Gateway struct {
	cfg      Config
	log      log.Logger
	resolver *trust.Resolver
	metrics  *apiMetrics

	store   *lazy.Handle[skald.Store]
	engine  *lazy.Handle[http.Handler]
	monitor http.Handler
}

func New(cfg Config, logger log.Logger) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		log:      logger,
		resolver: trust.NewResolver(cfg.JWTSecret, cfg.TokenTTL, logger),
		metrics:  newApiMetrics(),
	}

	g.store = lazy.NewHandle(g.connectStore)
	g.engine = lazy.NewHandle(g.buildEngine)
	g.monitor = promhttp.HandlerFor(g.metrics.registry, promhttp.HandlerOpts{})

	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Liveness and introspection never wait on the engine
	switch r.URL.Path {
	case "/health":
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	case "/":
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Skald API Server",
			"endpoints": map[string]string{
				"health":  "/health",
				"metrics": "/metrics",
				"api":     "/api/v1",
			},
		})
		return
	case "/metrics":
		g.monitor.ServeHTTP(w, r)
		return
	}

	engine, err := g.engine.Ensure(r.Context())
	if err != nil {
		level.Error(g.log).Log("msg", "request engine unavailable", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, skald.ErrorResponse{
			Code:    string(skald.KindUnavailable),
			Message: "service temporarily unavailable",
		})
		return
	}

	engine.ServeHTTP(w, r)
}

// connectStore builds the store-connection singleton. Registers a passive
// liveness monitor that flips the handle back to absent on a detected
// disconnect, without blocking any caller.
func (g *Gateway) connectStore(ctx context.Context) (skald.Store, error) {
	if g.cfg.DatabaseURL == "" {
		return nil, skald.NewError(skald.KindConfiguration, "store connection string is not set")
	}

	db, err := dbstore.Open(g.cfg.DatabaseURL)
	if err != nil {
		return nil, skald.NewErrorf(skald.KindUnavailable, "failed to connect to the store: %w", err)
	}

	if err := db.AutoMigrate(&skald.Account{}, &skald.Post{}, &skald.Lead{}); err != nil {
		return nil, skald.NewErrorf(skald.KindUnavailable, "store migration failed: %w", err)
	}

	store := dbstore.NewDbStore(db)
	level.Info(g.log).Log("msg", "store connected")

	go g.watchStore(store)

	return store, nil
}

func (g *Gateway) watchStore(store skald.Store) {
	interval := g.cfg.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := store.Ping(ctx)
		cancel()

		if err != nil {
			level.Warn(g.log).Log("msg", "store connection lost", "err", err)
			// The engine holds a reference to this store, so both
			// singletons are rebuilt on the next request
			g.store.Reset()
			g.engine.Reset()
			return
		}
	}
}

// buildEngine constructs the request-engine singleton. Depends on the
// store-connection singleton being ready first; the nested Ensure is on a
// different handle, so there is no self-deadlock.
func (g *Gateway) buildEngine(ctx context.Context) (http.Handler, error) {
	store, err := g.store.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	service := skald.NewService(store, g.resolver, g.log)
	g.metrics.coldStarts.Inc()
	level.Info(g.log).Log("msg", "request engine ready")

	return g.apiRoutes(service), nil
}

func writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}
