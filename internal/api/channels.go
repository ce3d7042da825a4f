package api

import "net/http"

// handleListChannels returns the channel table cached at the last
// connect. Serving from the cache keeps this endpoint working while the
// radio is briefly away and never queues device round trips behind it.
func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	channels := s.channels.Channels()
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"count":    len(channels),
	})
}
