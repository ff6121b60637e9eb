package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/maraxen/praxisbridge"
)

// server exposes one bridge over REST and WebSocket.
type server struct {
	ctx     context.Context
	log     *slog.Logger
	bridge  *praxisbridge.Bridge
	metrics *praxisbridge.BasicMetrics
	hub     *hub

	upgrader websocket.Upgrader
}

func newServer(ctx context.Context, log *slog.Logger, bridge *praxisbridge.Bridge, metrics *praxisbridge.BasicMetrics, h *hub, origins []string) *server {
	return &server{
		ctx:     ctx,
		log:     log,
		bridge:  bridge,
		metrics: metrics,
		hub:     h,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(origins),
		},
	}
}

func (s *server) routes(r *gin.Engine) {
	r.GET("/", s.handleBanner)
	r.GET("/healthz", s.handleHealthz)
	r.GET("/api/metrics", s.handleMetrics)
	r.GET("/api/history/:id", s.handleHistory)
	r.GET("/ws", s.handleWS)
}

func (s *server) handleBanner(c *gin.Context) {
	c.String(http.StatusOK, "praxis-bridged %s", praxisbridge.Version)
}

func (s *server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": praxisbridge.Version})
}

func (s *server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *server) handleHistory(c *gin.Context) {
	if s.bridge.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not configured"})
		return
	}
	records, err := s.bridge.History.ListRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// handleWS upgrades the connection, attaches it to the hub, and runs the
// read loop until the client goes away.
func (s *server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := s.hub.attach(conn)
	defer s.hub.detach(cl.id)

	// Capability snapshot so late joiners learn the runtime they talk to.
	if data, err := s.capabilityFrame(); err == nil {
		s.hub.send(cl, data)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", "client_id", cl.id, "error", err)
			}
			return
		}
		s.dispatch(cl, data)
	}
}

func (s *server) capabilityFrame() ([]byte, error) {
	return praxisbridge.Message{
		Kind:    praxisbridge.KindInitComplete,
		Payload: s.bridge.Capabilities(),
	}.Encode()
}

// dispatch decodes one inbound envelope and forwards it to the controller.
// Events flow back to every client through the broadcast observer; dispatch
// errors go only to the submitting client.
func (s *server) dispatch(cl *client, data []byte) {
	msg, err := praxisbridge.DecodeMessage(data)
	if err != nil {
		s.sendError(cl, err.Error())
		return
	}

	var h *praxisbridge.Handle
	switch msg.Kind {
	case praxisbridge.KindExec:
		p, _ := msg.Payload.(praxisbridge.ExecPayload)
		h, err = s.bridge.Controller.Submit(s.ctx, p.Code)
	case praxisbridge.KindExecuteBlob:
		p, _ := msg.Payload.(praxisbridge.ExecuteBlobPayload)
		h, err = s.bridge.Controller.RunBlob(s.ctx, p.Blob, p.Entry, p.Context)
	case praxisbridge.KindInstall:
		p, _ := msg.Payload.(praxisbridge.InstallPayload)
		h, err = s.bridge.Controller.Install(s.ctx, p.Packages)
	case praxisbridge.KindComplete:
		p, _ := msg.Payload.(praxisbridge.CompletePayload)
		h, err = s.bridge.Controller.Complete(s.ctx, p.Fragment)
	case praxisbridge.KindSignatures:
		p, _ := msg.Payload.(praxisbridge.SignaturesPayload)
		h, err = s.bridge.Controller.Signatures(s.ctx, p.Fragment)
	case praxisbridge.KindInterrupt:
		s.bridge.Controller.Interrupt()
		return
	case praxisbridge.KindDeviceData:
		p, _ := msg.Payload.(praxisbridge.DeviceDataPayload)
		s.bridge.Controller.RespondDeviceRead(p.RequestID, p.Data)
		return
	case praxisbridge.KindUserInput:
		p, _ := msg.Payload.(praxisbridge.UserInputPayload)
		s.bridge.Controller.RespondUserPrompt(p.RequestID, p.Value)
		return
	case praxisbridge.KindInit:
		// The daemon initializes its bridge at boot; a second INIT would
		// only ever fail.
		s.sendError(cl, "bridge already initialized")
		return
	default:
		s.sendError(cl, fmt.Sprintf("unsupported request kind %q", string(msg.Kind)))
		return
	}

	if err != nil {
		s.sendError(cl, err.Error())
		return
	}

	// Clients see events via the broadcast observer; the handle only needs
	// draining so its pump can retire.
	go func() { _, _ = h.Drain(context.Background()) }()
}

// sendError reports a dispatch failure to one client as an ERROR frame with
// no execution id.
func (s *server) sendError(cl *client, message string) {
	data, err := praxisbridge.Message{
		Kind:    praxisbridge.KindError,
		Payload: praxisbridge.ErrorPayload{Message: message},
	}.Encode()
	if err != nil {
		return
	}
	s.hub.send(cl, data)
}

// eventBroadcaster forwards every bridge event to the hub as a wire frame.
type eventBroadcaster struct {
	praxisbridge.NoopObserver

	hub *hub
	log *slog.Logger
}

func (b *eventBroadcaster) OnEvent(ctx context.Context, ev praxisbridge.Message) {
	data, err := ev.Encode()
	if err != nil {
		b.log.Error("event encode failed", "kind", string(ev.Kind), "error", err)
		return
	}
	b.hub.broadcast(data)
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"*"}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// requestLogger logs one line per HTTP request.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
