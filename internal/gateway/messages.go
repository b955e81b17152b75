package gateway

import (
	"encoding/json"

	"netwatch/internal/model"
)

// Outbound and inbound message type tags. External clients depend on these
// exact strings.
const (
	MessageInitialData   = "initialData"
	MessageNetworkLog    = "networkLog"
	MessageAlert         = "alert"
	MessageMetricsUpdate = "metricsUpdate"
	MessageSubscribe     = "subscribe"
)

// envelope is the shape of every server→client push.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// initialData is the payload of the one-time snapshot sent on connect.
type initialData struct {
	Stats  *model.DashboardStats `json:"stats"`
	Alerts []*model.Alert        `json:"alerts"`
	Logs   []*model.TrafficLog   `json:"logs"`
}

// inbound is the shape of client→server messages. Only "subscribe" is
// recognized, and only for bookkeeping.
type inbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// encodeEvent maps a bus event onto its wire envelope. Unknown event kinds
// yield ok = false and are not delivered.
func encodeEvent(ev model.Event) (msg []byte, ok bool) {
	var env envelope
	switch ev.Type {
	case model.EventLogCreated:
		env = envelope{Type: MessageNetworkLog, Data: ev.Log}
	case model.EventAlertCreated:
		env = envelope{Type: MessageAlert, Data: ev.Alert}
	case model.EventMetricsSnapshot:
		env = envelope{Type: MessageMetricsUpdate, Data: ev.Metric}
	default:
		return nil, false
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, false
	}
	return out, true
}
