package ring

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"deskbroker/internal/shared/logging"
)

// WSMsgType discriminates control-plane WebSocket payloads.
type WSMsgType string

const (
	WSMsgConnect     WSMsgType = "connect"
	WSMsgRingChanged WSMsgType = "ring_changed"
	WSMsgHeartbeat   WSMsgType = "heartbeat"
)

// WSMessage is the envelope pushed to every connected UI surface.
type WSMessage struct {
	Type    WSMsgType `json:"type"`
	AppName string    `json:"app_name,omitempty"`
}

type slotView struct {
	Position   int    `json:"position"`
	Enabled    bool   `json:"enabled"`
	ActionName string `json:"action_name,omitempty"`
	UsageCount int    `json:"usage_count"`
}

// ClickEvent is the payload posted by the ring surface when a position
// is invoked.
type ClickEvent struct {
	Position int `json:"position" binding:"min=0,max=7"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the RingManager over a local HTTP+WebSocket
// control-plane so an out-of-process UI surface can read slot state and
// receive change notifications without linking against this package.
type Server struct {
	manager *Manager
	onClick func(position int)
	log     *logging.Logger
	engine  *gin.Engine
	devMode bool

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

// NewServer wires a gin engine with CORS enabled for local UI shells.
// onClick is invoked (off the HTTP goroutine's critical path is the
// caller's responsibility) whenever a click event is posted. devMode
// gates the /api/logs diagnostic route: it reads arbitrary log files
// off disk, so it stays off outside local development.
func NewServer(manager *Manager, onClick func(position int), devMode bool) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Content-Type"},
	}))

	s := &Server{
		manager: manager,
		onClick: onClick,
		log:     logging.NewComponentLogger("RingServer"),
		engine:  engine,
		devMode: devMode,
		conns:   make(map[*websocket.Conn]struct{}),
	}

	engine.GET("/api/ring", s.handleGetRing)
	engine.POST("/api/ring/click", s.handleClick)
	engine.GET("/api/logs", s.handleDevLogTrace)
	engine.GET("/ws", s.handleWebSocket)

	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleGetRing(c *gin.Context) {
	views := make([]slotView, 0, 8)
	for i := 0; i < 8; i++ {
		slot, ok := s.manager.Get(i)
		if !ok {
			views = append(views, slotView{Position: i})
			continue
		}
		views = append(views, slotView{Position: i, Enabled: slot.Enabled, ActionName: slot.ActionName, UsageCount: slot.UsageCount})
	}
	c.JSON(http.StatusOK, gin.H{"app_name": s.manager.CurrentApp(), "slots": views})
}

func (s *Server) handleClick(c *gin.Context) {
	var event ClickEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.onClick != nil {
		s.onClick(event.Position)
	}
	c.Status(http.StatusAccepted)
}

// handleDevLogTrace returns every log line correlated with a log_id
// across the broker's text and request logs, for tracing one dispatch
// or tool call end to end during local development.
func (s *Server) handleDevLogTrace(c *gin.Context) {
	if !s.devMode {
		c.Status(http.StatusNotFound)
		return
	}
	logID := strings.TrimSpace(c.Query("log_id"))
	if logID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "log_id is required"})
		return
	}
	bundle := logging.FetchLogBundle(logID, logging.LogFetchOptions{MaxEntries: 400, MaxBytes: 1 << 20})
	c.JSON(http.StatusOK, bundle)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(WSMessage{Type: WSMsgConnect, AppName: s.manager.CurrentApp()}); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastChanges subscribes to the manager's change notifications and
// pushes a ring_changed message to every connected client until ctx is
// cancelled.
func (s *Server) BroadcastChanges(ctx context.Context) {
	changes := s.manager.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			s.broadcast(WSMessage{Type: WSMsgRingChanged, AppName: s.manager.CurrentApp()})
		}
	}
}

func (s *Server) broadcast(msg WSMessage) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warn("dropping websocket client after write error: %v", err)
			go conn.Close()
			delete(s.conns, conn)
		}
	}
}
