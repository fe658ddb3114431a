package server

import (
	"crypto/tls"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eigenclaw/warden/internal/history"
	"github.com/eigenclaw/warden/internal/metrics"
	"github.com/eigenclaw/warden/internal/supervisor"
)

// Router exposes the supervisor's observability surface:
//   GET /status   supervisor state snapshot
//   GET /healthz  the supervisor's own liveness (distinct from the gateway's)
//   GET /history  recent lifecycle events (404 when no store configured)
//   GET /metrics  Prometheus metrics
type Router struct {
	sup   *supervisor.Supervisor
	store history.Store
}

func NewRouter(sup *supervisor.Supervisor, store history.Store) *Router {
	return &Router{sup: sup, store: store}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/status", r.handleStatus)
	g.GET("/healthz", r.handleHealthz)
	g.GET("/history", r.handleHistory)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// A non-nil tlsConf switches the listener to HTTPS with that configuration.
func NewServer(addr string, tlsConf *tls.Config, sup *supervisor.Supervisor, store history.Store) *http.Server {
	r := NewRouter(sup, store)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         tlsConf,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if tlsConf != nil {
			_ = srv.ListenAndServeTLS("", "")
			return
		}
		_ = srv.ListenAndServe()
	}()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Status())
}

// handleHealthz always answers 200: it reports the supervisor itself, which
// by contract stays alive across gateway failures.
func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.store == nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "history not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := r.store.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}
