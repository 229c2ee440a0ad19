package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/process"

	"github.com/f9global/ferret9/common/version"
)

// AuditCounter is the part of the store /status reports on.
type AuditCounter interface {
	AuditCount(ctx context.Context) (int, error)
}

// Status is where /status gets its numbers. Any field may be nil.
type Status struct {
	Audit         AuditCounter
	Conversations func() int
	Backend       string
}

// HealthServer exposes /health and /status. It is optional; Ferret9 runs
// without it when HTTP_ADDR is empty.
type HealthServer struct {
	addr      string
	status    Status
	startedAt time.Time
	engine    *gin.Engine
	logger    *slog.Logger
	proc      *process.Process
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSecs    float64   `json:"uptime_seconds"`
	Conversations int       `json:"conversations"`
	AuditEntries  int       `json:"audit_entries"`
	Backend       string    `json:"backend"`
	RSSBytes      uint64    `json:"rss_bytes"`
}

// NewHealthServer builds the router. It does not listen until Serve.
func NewHealthServer(addr string, status Status, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	hs := &HealthServer{
		addr:      addr,
		status:    status,
		startedAt: time.Now(),
		engine:    r,
		logger:    logger,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		hs.proc = p
	} else {
		logger.Warn("health: process stats unavailable", "err", err)
	}

	r.GET("/health", hs.handleHealth)
	r.GET("/status", hs.handleStatus)
	return hs
}

// ServeHTTP lets tests drive the router without a listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// Serve listens on the configured address until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", h.addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("health: listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.logger.Warn("health: shutdown", "err", err)
	}
	return nil
}

func (h *HealthServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		Backend:    h.status.Backend,
		RSSBytes:   h.rss(),
	}
	if h.status.Conversations != nil {
		resp.Conversations = h.status.Conversations()
	}
	if h.status.Audit != nil {
		if n, err := h.status.Audit.AuditCount(c.Request.Context()); err == nil {
			resp.AuditEntries = n
		} else {
			h.logger.Warn("health: count audit entries", "err", err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HealthServer) rss() uint64 {
	if h.proc == nil {
		return 0
	}
	mem, err := h.proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return mem.RSS
}
