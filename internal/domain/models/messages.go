package models

import "time"

// Message types on the persistent connection, server to client.
const (
	MsgWelcome       = "welcome"
	MsgStatsUpdate   = "stats_update"
	MsgProviderStats = "provider_stats"
	MsgMarketUpdate  = "market_update"
	MsgPriceUpdate   = "price_update"
	MsgAlert         = "alert"
	MsgHeartbeat     = "heartbeat"
)

// Message types client to server. Unknown types are ignored.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgGetStats    = "get_stats"
	MsgPing        = "ping"
)

// Subscription group names.
const (
	GroupMarket = "market"
	GroupPrices = "prices"
	GroupNews   = "news"
	GroupAlerts = "alerts"
	GroupAll    = "all"
)

// KnownGroup reports whether name is a recognized subscription group.
func KnownGroup(name string) bool {
	switch name {
	case GroupMarket, GroupPrices, GroupNews, GroupAlerts, GroupAll:
		return true
	}
	return false
}

// Envelope is the wire format for every message on a persistent connection.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current time.
func NewEnvelope(msgType string, data interface{}) *Envelope {
	return &Envelope{Type: msgType, Data: data, Timestamp: time.Now().UTC()}
}

// InboundMessage is a client control message.
type InboundMessage struct {
	Type  string `json:"type"`
	Group string `json:"group,omitempty"`
}

// WelcomeData accompanies the welcome message.
type WelcomeData struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// AlertData accompanies alert broadcasts.
type AlertData struct {
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

// ConnStats is the live aggregate over connection state.
type ConnStats struct {
	ActiveSessions  int            `json:"active_sessions"`
	ByClientType    map[string]int `json:"by_client_type"`
	ByGroup         map[string]int `json:"by_group"`
	MessagesSent    uint64         `json:"messages_sent"`
	MessagesDropped uint64         `json:"messages_dropped"`
}

// ProviderStat is one provider's latest health reading, pushed periodically.
type ProviderStat struct {
	Provider     string      `json:"provider"`
	RateLimitPct float64     `json:"rate_limit_pct"`
	Status       EntryStatus `json:"status"`
	SampledAt    time.Time   `json:"sampled_at"`
}
