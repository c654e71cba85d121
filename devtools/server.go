package devtools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/atomstore/config"
	"github.com/tailored-agentic-units/atomstore/observability"
)

const (
	EventStreamOpen  observability.EventType = "devtools.stream.open"
	EventStreamClose observability.EventType = "devtools.stream.close"
	EventStreamDrop  observability.EventType = "devtools.stream.drop"
)

const shutdownTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithGatherer sets the registry served at /metrics. The default is
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithObserver sets the observer notified of live feed activity.
func WithObserver(obs observability.Observer) ServerOption {
	return func(s *Server) { s.observer = obs }
}

// Server serves a Recorder over HTTP:
//
//	GET /log         action log, newest first
//	GET /observers   active observer counts
//	GET /state       latest state tree
//	GET /state/keys  sorted keys of the latest state tree
//	GET /metrics     Prometheus exposition
//	GET /stream      websocket feed of new entries
type Server struct {
	recorder     *Recorder
	addr         string
	streamBuffer int
	gatherer     prometheus.Gatherer
	logger       *slog.Logger
	observer     observability.Observer
	engine       *gin.Engine
}

// NewServer creates a Server for rec listening on cfg.Addr.
func NewServer(rec *Recorder, cfg *config.DevtoolsConfig, opts ...ServerOption) *Server {
	s := &Server{
		recorder:     rec,
		addr:         cfg.Addr,
		streamBuffer: max(cfg.StreamBuffer, 1),
		gatherer:     prometheus.DefaultGatherer,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observer = observability.OrNoOp(s.observer)

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.GET("/log", s.handleLog)
	s.engine.GET("/observers", s.handleObservers)
	s.engine.GET("/state", s.handleState)
	s.engine.GET("/state/keys", s.handleStateKeys)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.engine.GET("/stream", s.handleStream)

	return s
}

// Handler returns the HTTP handler serving the devtools routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("devtools server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("devtools server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleLog(c *gin.Context) {
	c.JSON(http.StatusOK, s.recorder.Log())
}

func (s *Server) handleObservers(c *gin.Context) {
	c.JSON(http.StatusOK, s.recorder.Observers())
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.recorder.State())
}

func (s *Server) handleStateKeys(c *gin.Context) {
	state := s.recorder.State()
	keys := make([]string, 0, len(state))
	for key := range state {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	c.JSON(http.StatusOK, keys)
}

// handleStream forwards new entries to a websocket client. Each connection
// has its own bounded queue; entries that do not fit are dropped for that
// connection only, so a slow client never stalls the store.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade devtools stream", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	s.notify(ctx, EventStreamOpen, observability.LevelInfo, map[string]any{"remote": c.ClientIP()})

	queue := make(chan Entry, s.streamBuffer)
	unsubscribe := s.recorder.Subscribe(func(ctx context.Context, e Entry) {
		select {
		case queue <- e:
		default:
			s.notify(ctx, EventStreamDrop, observability.LevelWarning, map[string]any{"atom_key": e.Action.AtomKey})
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.notify(ctx, EventStreamClose, observability.LevelInfo, nil)
			return
		case <-ctx.Done():
			return
		case e := <-queue:
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Warn("failed to write devtools stream entry", "error", err)
				return
			}
		}
	}
}

func (s *Server) notify(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "devtools.Server",
		Data:      data,
	})
}
