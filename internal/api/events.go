package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pepeearn/internal/utils"
)

type changeEvent struct {
	Kind  string `json:"kind"`
	Topic string `json:"topic"`
}

// events streams server-sent events naming each store change that concerns
// the caller, so the client knows to refetch its profile or withdrawals.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	changes, cancel := sess.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case topic, ok := <-changes:
			if !ok {
				return
			}
			kind, _, _ := strings.Cut(topic, ":")
			data, err := json.Marshal(changeEvent{Kind: kind, Topic: topic})
			if err != nil {
				s.logger.Error("Error encoding event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
