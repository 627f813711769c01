package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"dnshelper/internal/auth"
	"dnshelper/internal/hosts"
	"dnshelper/internal/jobs/instance"
	"dnshelper/internal/jobs/sources"
	"dnshelper/internal/resolver"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the hosts table, the resolver chain and the settings over HTTP.
type Server struct {
	table     *hosts.Table
	exporter  *hosts.Exporter
	refresher *sources.Refresher
	resolver  *resolver.Chain
	redis     *redis.Client
}

// Deps are the collaborators of a Server. Redis is nil for a single instance.
type Deps struct {
	Table     *hosts.Table
	Exporter  *hosts.Exporter
	Refresher *sources.Refresher
	Resolver  *resolver.Chain
	Redis     *redis.Client
}

func New(deps Deps) *Server {
	return &Server{
		table:     deps.Table,
		exporter:  deps.Exporter,
		refresher: deps.Refresher,
		resolver:  deps.Resolver,
		redis:     deps.Redis,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the routed, CORS-enabled handler.
func (s *Server) Handler() http.Handler {
	admin := auth.RequireRole(auth.AdminRole)

	router := http.NewServeMux()
	router.HandleFunc("POST /login", loginUser)
	router.HandleFunc("GET /healthz", s.healthz)
	router.HandleFunc("GET /version", getVersion)
	router.Handle("GET /metrics", promhttp.Handler())

	router.Handle("GET /hosts", auth.RequireAuth(http.HandlerFunc(s.listHosts)))
	router.Handle("GET /hosts/{hostname}", auth.RequireAuth(http.HandlerFunc(s.getHost)))
	router.Handle("POST /hosts", admin(http.HandlerFunc(s.addHost)))
	router.Handle("DELETE /hosts/{hostname}", admin(http.HandlerFunc(s.removeHost)))
	router.Handle("POST /hosts/{hostname}/block", admin(http.HandlerFunc(s.blockHost)))
	router.Handle("POST /hosts/{hostname}/unblock", admin(http.HandlerFunc(s.unblockHost)))
	router.Handle("GET /stats", auth.RequireAuth(http.HandlerFunc(s.getStats)))

	router.Handle("POST /import", admin(http.HandlerFunc(s.runImport)))
	router.Handle("GET /export", auth.RequireAuth(http.HandlerFunc(s.exportHosts)))

	router.Handle("GET /resolve/{hostname}", auth.RequireAuth(http.HandlerFunc(s.resolveHost)))

	router.Handle("GET /settings", admin(http.HandlerFunc(getSettings)))
	router.Handle("POST /settings", admin(http.HandlerFunc(saveSettings)))

	log.Debug("Routes opened")
	return enableCORS(router)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting dnshelper api on port :%d", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Info("API server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "instance": instance.ID()}
	if s.redis != nil {
		if n, err := instance.CountActive(r.Context(), s.redis); err == nil {
			status["instances"] = n
		} else {
			log.Warn("count active instances", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, status)
}
