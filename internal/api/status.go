package api

import (
	"net/http"
	"time"

	"github.com/meshboard/meshboard-core/internal/ingest"
)

// statusResponse is the response body for GET /status.
type statusResponse struct {
	Status      string       `json:"status"` // "ok" | "degraded"
	Device      deviceStatus `json:"device"`
	Store       storeStatus  `json:"store"`
	Subscribers int          `json:"subscribers"`
	Version     string       `json:"version"`
}

type deviceStatus struct {
	Connected           bool       `json:"connected"`
	State               string     `json:"state"`
	NodeName            string     `json:"node_name,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastConnectedAt     *time.Time `json:"last_connected_at,omitempty"`
	DrainedTotal        uint64     `json:"drained_total"`
	DroppedTotal        uint64     `json:"dropped_total"`
}

type storeStatus struct {
	Connected bool  `json:"connected"`
	LatencyMs int64 `json:"latency_ms"`
	Messages  int64 `json:"messages"`
}

// handleStatus reports pipeline health: the radio link, the message
// store, and the live subscriber count. Overall status is "ok" only
// when the device is connected and the store answers.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.device.Status()
	connected := st.State == ingest.StateConnected || st.State == ingest.StateDraining

	dev := deviceStatus{
		Connected:           connected,
		State:               string(st.State),
		NodeName:            st.NodeName,
		ConsecutiveFailures: st.Failures,
		DrainedTotal:        st.DrainedTotal,
		DroppedTotal:        st.DroppedTotal,
	}
	if !st.ConnectedAt.IsZero() {
		at := st.ConnectedAt
		dev.LastConnectedAt = &at
	}

	var store storeStatus
	if s.store != nil {
		if latency, err := s.store.PingLatency(r.Context()); err != nil {
			s.logger.Warn("store ping failed", "error", err)
		} else {
			store.Connected = true
			store.LatencyMs = latency.Milliseconds()
			if n, err := s.repo.CountEstimate(r.Context()); err == nil {
				store.Messages = n
			}
		}
	}

	status := "degraded"
	if connected && store.Connected {
		status = "ok"
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:      status,
		Device:      dev,
		Store:       store,
		Subscribers: s.hub.SubscriberCount(),
		Version:     s.version,
	})
}
