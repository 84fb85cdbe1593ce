package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/classifier"
	"github.com/opscart/site-optimizer/pkg/inventory"
	"github.com/opscart/site-optimizer/pkg/metrics"
	"github.com/opscart/site-optimizer/pkg/storage"
)

// Config configures the status server
type Config struct {
	Inventory        inventory.Config
	Tier1MinVisitors int
	Tier2MinVisitors int

	// History is optional; without it the deployment routes return 404.
	History storage.Store
	Metrics *metrics.Metrics
}

// Server serves a read-only view of the inventory.
//
// The inventory is read into a snapshot that Reload swaps under a write lock.
type Server struct {
	cfg Config

	mu         sync.RWMutex
	inventory  *inventory.Store
	classifier *classifier.Classifier
	loadedAt   time.Time
}

// New creates a server and loads the first snapshot.
func New(cfg Config) (*Server, error) {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	s := &Server{cfg: cfg}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads the inventory document again and refreshes the inventory gauges.
func (s *Server) Reload() error {
	inv := inventory.New(s.cfg.Inventory)
	result, err := inv.Load()
	if err != nil {
		return errors.Annotate(err, "loading inventory")
	}
	c, err := classifier.New(inv, s.cfg.Tier1MinVisitors, s.cfg.Tier2MinVisitors)
	if err != nil {
		return errors.Trace(err)
	}

	s.cfg.Metrics.SetInventory(inv.Statistics(), capacityReport(c, inv))

	s.mu.Lock()
	s.inventory = inv
	s.classifier = c
	s.loadedAt = time.Now()
	s.mu.Unlock()

	slog.Info("Inventory loaded", "sites", result.Sites, "servers", result.Servers, "skipped", result.Skipped)
	return nil
}

// snapshot returns the current inventory and classifier; callers must not mutate them.
func (s *Server) snapshot() (*inventory.Store, *classifier.Classifier) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventory, s.classifier
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", s.cfg.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/statistics", s.statistics)
		r.Get("/sites", s.listSites)
		r.Get("/sites/{domain}", s.getSite)
		r.Get("/sites/{domain}/history", s.siteHistory)
		r.Get("/servers", s.listServers)
		r.Get("/servers/{hostname}/capacity", s.serverCapacity)
		r.Get("/classification/summary", s.classificationSummary)
		r.Get("/classification/recommendations", s.recommendations)
		r.Get("/deployments", s.listDeployments)
		r.Get("/deployments/{id}", s.getDeployment)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, reloading the inventory every
// reloadEvery when it is positive.
func (s *Server) ListenAndServe(ctx context.Context, addr string, reloadEvery time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if reloadEvery > 0 {
		go s.reloadLoop(ctx, reloadEvery)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Trace(err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Trace(srv.Shutdown(shutdownCtx))
	}
}

func (s *Server) reloadLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				slog.Warn("Inventory reload failed", "error", err)
			}
		}
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
