package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/perchrun/perch/internal/events"
)

// keepAliveEvery bounds how long an idle SSE connection goes without bytes,
// so intermediaries don't reap it.
const keepAliveEvery = 15 * time.Second

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusNotImplemented, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	stream := &sseStream{w: w, flusher: flusher}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Replay what a reconnecting client missed before switching to live
	// delivery.
	replayFrom := lastEventID(r)
	for _, ev := range s.events.SnapshotSince(replayFrom) {
		if stream.event(ev) != nil {
			return
		}
	}
	stream.flush()

	ch, cancel := s.events.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if stream.event(ev) != nil {
				return
			}
			stream.flush()
		case <-keepAlive.C:
			if stream.comment("keep-alive") != nil {
				return
			}
			stream.flush()
		}
	}
}

// lastEventID reads the SSE reconnection header; absent or malformed values
// mean "replay everything buffered".
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// sseStream frames events on the wire. Payloads are single-line JSON, so one
// data: line suffices.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseStream) event(ev events.Event) error {
	var frame strings.Builder
	fmt.Fprintf(&frame, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&frame, "event: %s\n", ev.Type)
	}
	fmt.Fprintf(&frame, "data: %s\n\n", ev.Data)
	_, err := s.w.Write([]byte(frame.String()))
	return err
}

func (s *sseStream) comment(text string) error {
	_, err := fmt.Fprintf(s.w, ": %s\n\n", text)
	return err
}

func (s *sseStream) flush() {
	s.flusher.Flush()
}
