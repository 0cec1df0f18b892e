package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordFetchAttempt(string, string, float64) {}
func (nopMetrics) RecordCacheRead(string)                     {}
func (nopMetrics) RecordBroadcast(string, string, int)        {}
func (nopMetrics) RecordQueueDrop()                           {}
func (nopMetrics) SetActiveSessions(int)                      {}
func (nopMetrics) RecordSampleStored(string)                  {}
func (nopMetrics) RecordError(string)                         {}
func (nopMetrics) RecordLastPrice(string, float64)            {}
func (nopMetrics) RecordChainExhausted(string)                {}

func newTestManager(queueSize int) *Manager {
	return NewManager(Config{
		HeartbeatInterval: time.Minute,
		IdleTimeout:       time.Minute,
		SendQueueSize:     queueSize,
	}, nopMetrics{}, applogger.Nop())
}

// addSession registers a sessionless connection: pumps are never started,
// so messages accumulate in the send queue for inspection.
func addSession(m *Manager, clientType string) *Session {
	s := newSession(nil, clientType, m.cfg.SendQueueSize)
	m.register(s)
	return s
}

func drain(s *Session) []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case b := <-s.send:
			var env models.Envelope
			if err := json.Unmarshal(b, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	m := newTestManager(8)
	s := addSession(m, "web")

	m.Subscribe(s, models.GroupPrices)
	m.Subscribe(s, models.GroupPrices)

	if got := m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, nil), models.GroupPrices); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
	if got := len(drain(s)); got != 1 {
		t.Fatalf("expected 1 queued message, got %d", got)
	}
}

func TestBroadcastGroupFiltering(t *testing.T) {
	m := newTestManager(8)
	prices := addSession(m, "web")
	market := addSession(m, "web")
	m.Subscribe(prices, models.GroupPrices)
	m.Subscribe(market, models.GroupMarket)

	m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, nil), models.GroupPrices)

	if got := len(drain(prices)); got != 1 {
		t.Fatalf("expected subscriber to receive, got %d", got)
	}
	if got := len(drain(market)); got != 0 {
		t.Fatalf("expected non-subscriber to receive nothing, got %d", got)
	}
}

func TestGroupAllReceivesEveryGroup(t *testing.T) {
	m := newTestManager(8)
	s := addSession(m, "web")
	m.Subscribe(s, models.GroupAll)

	m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, nil), models.GroupPrices)
	m.Broadcast(models.NewEnvelope(models.MsgAlert, nil), models.GroupAlerts)

	if got := len(drain(s)); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
}

func TestBroadcastToAllReachesEveryone(t *testing.T) {
	m := newTestManager(8)
	a := addSession(m, "web")
	b := addSession(m, "bot")

	if got := m.Broadcast(models.NewEnvelope(models.MsgHeartbeat, nil), models.GroupAll); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatalf("expected both sessions to receive")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := newTestManager(8)
	s := addSession(m, "web")
	m.Subscribe(s, models.GroupPrices)
	m.Unsubscribe(s, models.GroupPrices)

	if got := m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, nil), models.GroupPrices); got != 0 {
		t.Fatalf("expected 0 deliveries, got %d", got)
	}
}

func TestUnsubscribeNonMemberIsNoOp(t *testing.T) {
	m := newTestManager(8)
	s := addSession(m, "web")
	m.Unsubscribe(s, models.GroupPrices)
	m.Unsubscribe(s, "bogus")
}

func TestUnknownGroupSubscribeIgnored(t *testing.T) {
	m := newTestManager(8)
	s := addSession(m, "web")
	m.Subscribe(s, "bogus")

	stats := m.Stats()
	if len(stats.ByGroup) != 0 {
		t.Fatalf("expected no group membership, got %v", stats.ByGroup)
	}
}

func TestFullQueueShedsOldest(t *testing.T) {
	m := newTestManager(1)
	s := addSession(m, "web")
	m.Subscribe(s, models.GroupPrices)

	m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, "first"), models.GroupPrices)
	m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, "second"), models.GroupPrices)

	got := drain(s)
	if len(got) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(got))
	}
	if got[0].Data != "second" {
		t.Fatalf("expected newest message kept, got %v", got[0].Data)
	}
	if s.dropped.Load() != 1 {
		t.Fatalf("expected 1 drop, got %d", s.dropped.Load())
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(8)
	a := addSession(m, "web")
	addSession(m, "web")
	b := addSession(m, "bot")
	m.Subscribe(a, models.GroupPrices)
	m.Subscribe(b, models.GroupPrices)

	stats := m.Stats()
	if stats.ActiveSessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", stats.ActiveSessions)
	}
	if stats.ByClientType["web"] != 2 || stats.ByClientType["bot"] != 1 {
		t.Fatalf("unexpected client type counts: %v", stats.ByClientType)
	}
	if stats.ByGroup[models.GroupPrices] != 2 {
		t.Fatalf("unexpected group counts: %v", stats.ByGroup)
	}
}

func TestClosedSessionNotDeliverable(t *testing.T) {
	m := newTestManager(8)
	s := addSession(m, "web")
	m.Subscribe(s, models.GroupPrices)
	m.closeSession(s, "test")

	if got := m.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, nil), models.GroupPrices); got != 0 {
		t.Fatalf("expected 0 deliveries after close, got %d", got)
	}
	if m.Stats().ActiveSessions != 0 {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStateTransitions(t *testing.T) {
	s := newSession(nil, "web", 1)
	if s.State() != StateConnecting {
		t.Fatalf("expected connecting, got %s", s.State())
	}
	if !s.transition(StateConnecting, StateOpen) {
		t.Fatalf("expected transition to open")
	}
	if s.transition(StateConnecting, StateOpen) {
		t.Fatalf("expected repeat transition to fail")
	}
	if !s.transition(StateOpen, StateClosing) || !s.transition(StateClosing, StateClosed) {
		t.Fatalf("expected close path")
	}
	if s.transition(StateClosed, StateOpen) {
		t.Fatalf("closed must be terminal")
	}
}
