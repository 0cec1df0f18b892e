package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

// Config tunes session and fan-out behavior.
type Config struct {
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	SendQueueSize     int
	WriteWait         time.Duration
	PongWait          time.Duration
}

// Manager owns all live sessions and their group subscriptions, and fans
// broadcast messages out to them. Inbound control messages mutate session
// state only; they never trigger a fetch.
type Manager struct {
	cfg     Config
	logger  *applogger.Logger
	metrics repository.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	groups   map[string]map[string]*Session

	sent    atomic.Uint64
	dropped atomic.Uint64

	upgrader websocket.Upgrader
}

func NewManager(cfg Config, metrics repository.Metrics, l *applogger.Logger) *Manager {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 64
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		logger:   l,
		metrics:  metrics,
		sessions: make(map[string]*Session),
		groups:   make(map[string]map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request to a session and starts its pumps.
func (m *Manager) HandleWS(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	clientType := c.QueryParam("client_type")
	if clientType == "" {
		clientType = "web"
	}

	s := newSession(conn, clientType, m.cfg.SendQueueSize)
	m.register(s)

	m.SendTo(s, models.NewEnvelope(models.MsgWelcome, models.WelcomeData{
		SessionID: s.ID,
		Message:   "connected to market data stream",
	}))

	go m.writePump(s)
	go m.readPump(s)

	m.logger.Info("session connected",
		applogger.String("session", s.ID),
		applogger.String("client_type", clientType),
	)
	return nil
}

// register adds a session and moves it from CONNECTING to OPEN.
func (m *Manager) register(s *Session) {
	s.transition(StateConnecting, StateOpen)
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)
}

// Subscribe adds the session to a group. Idempotent: subscribing twice is
// a no-op. Unknown group names are ignored.
func (m *Manager) Subscribe(s *Session, group string) {
	if !models.KnownGroup(group) || s.State() != StateOpen {
		return
	}
	m.mu.Lock()
	members, ok := m.groups[group]
	if !ok {
		members = make(map[string]*Session)
		m.groups[group] = members
	}
	members[s.ID] = s
	m.mu.Unlock()
}

// Unsubscribe removes the session from a group. Removing a non-member is
// a no-op, not an error.
func (m *Manager) Unsubscribe(s *Session, group string) {
	m.mu.Lock()
	if members, ok := m.groups[group]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(m.groups, group)
		}
	}
	m.mu.Unlock()
}

// Broadcast fans env out to every OPEN session subscribed to group, or to
// all sessions when group is "all". A slow session never delays the rest:
// enqueueing is non-blocking and sheds that session's oldest message when
// its queue is full. Returns the number of sessions the message was
// enqueued for.
func (m *Manager) Broadcast(env *models.Envelope, group string) int {
	b, err := json.Marshal(env)
	if err != nil {
		m.metrics.RecordError("broadcast_marshal")
		return 0
	}

	m.mu.RLock()
	var targets []*Session
	if group == models.GroupAll {
		targets = make([]*Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			targets = append(targets, s)
		}
	} else {
		targets = make([]*Session, 0, len(m.groups[group])+len(m.groups[models.GroupAll]))
		for _, s := range m.groups[group] {
			targets = append(targets, s)
		}
		// Sessions subscribed to "all" receive every group's traffic.
		for id, s := range m.groups[models.GroupAll] {
			if _, dup := m.groups[group][id]; !dup {
				targets = append(targets, s)
			}
		}
	}
	m.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		before := s.dropped.Load()
		if s.enqueue(b) {
			delivered++
			m.sent.Add(1)
		}
		if shed := s.dropped.Load() - before; shed > 0 {
			m.dropped.Add(shed)
			m.metrics.RecordQueueDrop()
		}
	}
	m.metrics.RecordBroadcast(group, env.Type, delivered)
	return delivered
}

// SendTo enqueues a message for a single session.
func (m *Manager) SendTo(s *Session, env *models.Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		return false
	}
	// Welcome goes out while the session is still registering.
	if s.State() == StateConnecting {
		select {
		case s.send <- b:
			m.sent.Add(1)
			return true
		default:
			return false
		}
	}
	if s.enqueue(b) {
		m.sent.Add(1)
		return true
	}
	return false
}

// Stats computes aggregates from live session state, not a snapshot.
func (m *Manager) Stats() models.ConnStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.ConnStats{
		ActiveSessions:  len(m.sessions),
		ByClientType:    make(map[string]int),
		ByGroup:         make(map[string]int),
		MessagesSent:    m.sent.Load(),
		MessagesDropped: m.dropped.Load(),
	}
	for _, s := range m.sessions {
		stats.ByClientType[s.ClientType]++
	}
	for group, members := range m.groups {
		stats.ByGroup[group] = len(members)
	}
	return stats
}

// Run emits heartbeats and reaps idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	reaper := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer heartbeat.Stop()
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			m.Broadcast(models.NewEnvelope(models.MsgHeartbeat, nil), models.GroupAll)
		case <-reaper.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	now := time.Now()
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.idleFor(now) > m.cfg.IdleTimeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		m.logger.Info("closing idle session", applogger.String("session", s.ID))
		m.closeSession(s, "idle timeout")
	}
}

// Shutdown notifies and closes every session, best-effort.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		m.closeSession(s, "server shutting down")
	}
}

// closeSession transitions a session to CLOSED, removes it from every
// group, and closes the connection. Safe to call multiple times; only the
// first call acts.
func (m *Manager) closeSession(s *Session, reason string) {
	if !s.transition(StateOpen, StateClosing) && !s.transition(StateConnecting, StateClosing) {
		return
	}

	if s.conn != nil {
		deadline := time.Now().Add(m.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = s.conn.Close()
	}

	s.transition(StateClosing, StateClosed)
	close(s.done)

	m.mu.Lock()
	delete(m.sessions, s.ID)
	for group, members := range m.groups {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(m.groups, group)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)
}

// writePump drains the session's outbound queue; order within a session is
// preserved. A write failure closes the session without disturbing any
// in-progress broadcast to others.
func (m *Manager) writePump(s *Session) {
	ping := time.NewTicker(m.cfg.PongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				m.logger.Debug("session write failed",
					applogger.String("session", s.ID),
					applogger.Error(err),
				)
				m.closeSession(s, "write error")
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.closeSession(s, "ping failed")
				return
			}
		}
	}
}

// readPump consumes inbound control messages for one session.
func (m *Manager) readPump(s *Session) {
	defer m.closeSession(s, "connection closed")

	_ = s.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.touch()
		_ = s.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))

		var msg models.InboundMessage
		if err := json.Unmarshal(b, &msg); err != nil {
			// Malformed frames are dropped, not fatal.
			continue
		}
		m.handleInbound(s, msg)
	}
}

// handleInbound applies a client control message. Unknown types are
// ignored with no response, keeping the protocol forward-compatible.
func (m *Manager) handleInbound(s *Session, msg models.InboundMessage) {
	switch msg.Type {
	case models.MsgSubscribe:
		m.Subscribe(s, msg.Group)
	case models.MsgUnsubscribe:
		m.Unsubscribe(s, msg.Group)
	case models.MsgGetStats:
		m.SendTo(s, models.NewEnvelope(models.MsgStatsUpdate, m.Stats()))
	case models.MsgPing:
		m.SendTo(s, models.NewEnvelope(models.MsgHeartbeat, nil))
	}
}
