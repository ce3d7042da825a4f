package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMessageSignal records signal quality for one ingested message.
//
// The write is non-blocking; data is batched and sent asynchronously.
// The point is stamped with the message's received time, not the write
// time, so late drains land where they belong.
//
// Parameters:
//   - msgType: "CHANNEL" or "DIRECT"
//   - channelName: resolved channel name ("" for direct messages)
//   - snr: signal-to-noise ratio in dB (0 when unreported)
//   - pathLen: mesh hop count
//   - receivedAt: when this node ingested the message
func (c *Client) WriteMessageSignal(msgType string, channelName string, snr float64, pathLen int, receivedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"message_signal",
		map[string]string{
			"msg_type":     msgType,
			"channel_name": channelName,
		},
		map[string]interface{}{
			"snr":      snr,
			"path_len": pathLen,
		},
		receivedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePollerHealth records the radio poller's connection health.
//
// Written on every poller state transition, so the series doubles as a
// connect/disconnect event log.
//
// Parameters:
//   - connected: whether a radio session is currently established
//   - failures: consecutive connection failures since the last success
//   - drainedTotal: messages ingested over the process lifetime
func (c *Client) WritePollerHealth(connected bool, failures int, drainedTotal uint64) {
	if !c.IsConnected() {
		return
	}

	up := 0
	if connected {
		up = 1
	}

	point := write.NewPoint(
		"poller_health",
		nil,
		map[string]interface{}{
			"connected":            up,
			"consecutive_failures": failures,
			// #nosec G115 -- a message counter will not overflow int64
			"drained_total": int64(drainedTotal),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

