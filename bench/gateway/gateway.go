// Package gateway exposes the bench daemon over HTTP for diagnostics:
// link status, protocol statistics, the parameter catalog, session
// history and capture summaries.
package gateway

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/bench/capture"
	"github.com/ancware/tunelink/bench/history"
	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Status is the daemon-level state served at /status. The daemon fills
// the link and queue fields; the gateway refreshes the engine fields on
// every request.
type Status struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	LinkKind        string    `json:"link_kind"`
	LinkDescription string    `json:"link_description"`
	LinkConnected   bool      `json:"link_connected"`
	PeerVersion     string    `json:"peer_version,omitempty"`
	SendState       string    `json:"send_state"`
	PendingRetries  int       `json:"pending_retries"`
	RxQueueDepth    int       `json:"rx_queue_depth"`
	RxDropped       uint64    `json:"rx_dropped"`
	HistoryEnabled  bool      `json:"history_enabled"`
	CaptureActive   bool      `json:"capture_active"`
}

// Deps are the daemon pieces the gateway serves. Engine is required,
// the rest degrade to 503 responses when absent.
type Deps struct {
	Engine  *engine.Engine
	History *history.Store
	Capture *capture.Recorder
	Status  func() Status
}

// Server is the HTTP diagnostics endpoint.
type Server struct {
	app    *fiber.App
	addr   string
	deps   Deps
	logger zerolog.Logger
}

// New creates the gateway server without starting it.
func New(addr string, deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New(ErrMissingEngine, "gateway requires an engine", nil)
	}

	s := &Server{
		addr:   addr,
		deps:   deps,
		logger: logger.With().Str("component", "gateway").Logger(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "tunelink-bench",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          s.handleError,
	})
	app.Use(fiberrecover.New())
	app.Use(requestid.New())
	app.Use(s.logRequests)

	app.Get("/health", s.handleHealth)
	app.Get("/status", s.handleStatus)
	app.Get("/stats", s.handleStats)
	app.Get("/version", s.handleVersion)
	app.Get("/params", s.handleParams)
	app.Get("/params/:path", s.handleParam)
	app.Get("/history", s.handleHistory)
	app.Get("/captures", s.handleCaptures)

	s.app = app
	return s, nil
}

// App exposes the router for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			s.logger.Error().Err(err).Msg("Gateway server stopped")
		}
	}()

	s.logger.Info().Str("address", s.addr).Msg("Gateway listening")
	return nil
}

// Shutdown stops the server, honoring the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return errors.New(ErrShutdownFailed, "gateway shutdown failed", err)
	}
	s.logger.Info().Msg("Gateway stopped")
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("elapsed", time.Since(start)).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Msg("Gateway request")
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	var st Status
	if s.deps.Status != nil {
		st = s.deps.Status()
	}

	st.SendState = s.deps.Engine.State().String()
	st.PendingRetries = s.deps.Engine.PendingRetries()
	if peer, ok := s.deps.Engine.PeerVersion(); ok {
		st.PeerVersion = peer
	}
	st.HistoryEnabled = s.deps.History != nil
	st.CaptureActive = s.deps.Capture != nil && s.deps.Capture.Active()
	if !st.StartedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(st.StartedAt).Seconds())
	}
	return c.JSON(st)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.deps.Engine.Stats())
}

func (s *Server) handleVersion(c *fiber.Ctx) error {
	gate := s.deps.Engine.Gate()
	out := fiber.Map{
		"local":     gate.Local().String(),
		"mode":      gate.Mode().String(),
		"supported": gate.Supported(),
	}
	if peer, ok := s.deps.Engine.PeerVersion(); ok {
		out["peer"] = peer
	}
	return c.JSON(out)
}

// paramView is the JSON shape of one catalog entry.
type paramView struct {
	Path        string `json:"path"`
	MessageType string `json:"message_type"`
	Kind        string `json:"kind"`
	WireField   string `json:"wire_field"`
	Deprecated  bool   `json:"deprecated,omitempty"`
	ReplacedBy  string `json:"replaced_by,omitempty"`
	Description string `json:"description,omitempty"`
}

func viewOf(info params.ParameterInfo) paramView {
	return paramView{
		Path:        info.LogicalPath,
		MessageType: protocol.MessageTypeName(info.Type),
		Kind:        protocol.ValueKindNames[info.Kind],
		WireField:   info.WireField,
		Deprecated:  info.Deprecated,
		ReplacedBy:  info.ReplacedBy,
		Description: info.Description,
	}
}

func (s *Server) handleParams(c *fiber.Ctx) error {
	registry := s.deps.Engine.Params()

	views := make([]paramView, 0, registry.Count())
	for _, path := range registry.Paths() {
		info, err := registry.Resolve(path)
		if err != nil {
			continue
		}
		views = append(views, viewOf(info))
	}
	return c.JSON(views)
}

func (s *Server) handleParam(c *fiber.Ctx) error {
	path := c.Params("path")
	info, err := s.deps.Engine.Params().Resolve(path)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown parameter",
			"path":  path,
		})
	}
	return c.JSON(viewOf(info))
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.deps.History == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history is disabled"})
	}

	q := history.Query{
		SessionID:   c.Query("session"),
		MessageType: c.Query("type"),
		Direction:   c.Query("direction"),
		Outcome:     c.Query("outcome"),
		Limit:       c.QueryInt("limit", 0),
	}
	if since := c.Query("since"); since != "" {
		at, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "since must be RFC3339"})
		}
		q.Since = at
	}

	recs, err := s.deps.History.Search(c.UserContext(), q)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if recs == nil {
		recs = []history.Record{}
	}
	return c.JSON(recs)
}

func (s *Server) handleCaptures(c *fiber.Ctx) error {
	if s.deps.Capture == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "capture is disabled"})
	}

	infos, err := s.deps.Capture.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if infos == nil {
		infos = []capture.Info{}
	}

	out := fiber.Map{"captures": infos}
	if current, ok := s.deps.Capture.Current(); ok {
		out["active"] = current
	}
	return c.JSON(out)
}
