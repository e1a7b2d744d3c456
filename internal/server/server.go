// Package server exposes the task API, pool diagnostics, Prometheus
// metrics, and a websocket event stream over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okanya/webagentd/internal/observability"
	"github.com/okanya/webagentd/internal/tasks"
	"github.com/okanya/webagentd/pkg/pool"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config holds HTTP server settings.
type Config struct {
	Host  string
	Port  int
	Debug bool
}

// Server is the HTTP front end of the daemon.
type Server struct {
	cfg         Config
	manager     *tasks.Manager
	pool        *pool.Pool
	clients     *ClientRegistry
	broadcaster *EventBroadcaster
	engine      *gin.Engine
	server      *http.Server
}

// New creates a server over the given task manager and session pool.
func New(cfg Config, manager *tasks.Manager, p *pool.Pool) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("task manager is required")
	}
	if p == nil {
		return nil, fmt.Errorf("session pool is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	clients := NewClientRegistry()

	s := &Server{
		cfg:         cfg,
		manager:     manager,
		pool:        p,
		clients:     clients,
		broadcaster: NewEventBroadcaster(clients),
	}
	s.engine = s.buildEngine()
	return s, nil
}

// Broadcaster returns the event broadcaster so pool and task manager
// event sinks can be pointed at it.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

func (s *Server) buildEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Limit trusted proxies; do not trust arbitrary proxies by default.
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	router.RemoteIPHeaders = []string{"X-Forwarded-For", "X-Real-IP"}
	router.ForwardedByClientIP = true

	router.Use(CORSMiddleware())
	router.Use(RequestLogger())

	router.POST("/tasks", s.handleCreateTask)
	router.GET("/tasks", s.handleListTasks)
	router.GET("/tasks/:id", s.handleGetTask)
	router.DELETE("/tasks/:id", s.handleDeleteTask)

	router.GET("/health", s.handleHealth)
	router.GET("/pool/status", s.handlePoolStatus)
	router.POST("/pool/cleanup", s.handlePoolCleanup)

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/events", s.handleEvents)

	return router
}

// Start begins serving. It returns once the listener is accepting
// connections; request handling runs in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Shutdown notifies event subscribers, closes their connections, and
// stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	for _, client := range s.clients.GetAll() {
		_ = client.Close()
		s.clients.Remove(client.ID)
	}

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}

type createTaskRequest struct {
	Task     string `json:"task"`
	MaxSteps int    `json:"max_steps"`
	Async    bool   `json:"async"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task cannot be empty"})
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.Request.Header.Get(name)
	}

	task, err := s.manager.Submit(c.Request.Context(), tasks.SubmitRequest{
		Description:   req.Task,
		Headers:       headers,
		SourceAddress: c.ClientIP(),
		MaxSteps:      req.MaxSteps,
		Async:         req.Async,
	})
	if err != nil {
		if pool.IsCapacityExceeded(err) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":     err.Error(),
				"retryable": true,
			})
			return
		}
		if task != nil {
			// The task settled as failed; return its record so the
			// caller sees the task id and the underlying message.
			c.JSON(http.StatusInternalServerError, task)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Async {
		c.JSON(http.StatusAccepted, task)
		return
	}
	if !task.Success {
		c.JSON(http.StatusInternalServerError, task)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	running, completed, err := s.manager.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"running":         running,
		"completed":       completed,
		"total_running":   len(running),
		"total_completed": len(completed),
	})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id := c.Param("id")

	// A running task is stopped and settled in place.
	if task, stopped := s.manager.Stop(id); stopped {
		c.JSON(http.StatusOK, task)
		return
	}

	// Otherwise remove the stored result.
	task, err := s.manager.Remove(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   fmt.Sprintf("Completed task %s removed from results", id),
		"task_info": task,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Format(time.RFC3339),
		"initialized": true,
	})
}

func (s *Server) handlePoolStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.pool.Status())
}

func (s *Server) handlePoolCleanup(c *gin.Context) {
	status := s.pool.Status()
	maxIdle := s.pool.MaxIdleDuration()

	go func() {
		evicted := s.pool.EvictIdleOlderThan(maxIdle)
		log.Info().Int("evicted", evicted).Msg("Forced pool cleanup complete")
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":                 "Session pool cleanup initiated",
		"sessions_before_cleanup": status.TotalSessions,
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := newClient(conn)
	s.clients.Add(client)

	log.Info().
		Str("client_id", client.ID).
		Str("ip", c.ClientIP()).
		Msg("Event stream client connected")

	go s.readLoop(client)
}

// readLoop drains inbound frames so pings are answered and the close
// handshake is observed. Subscribers are write-only otherwise.
func (s *Server) readLoop(client *Client) {
	defer func() {
		s.clients.Remove(client.ID)
		_ = client.Close()
		log.Info().Str("client_id", client.ID).Msg("Event stream client disconnected")
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
