package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/health"
)

// SSE tiers, per spec.md 4.7: health refreshes fastest since it drives the
// live camera-status dashboard, slow carries storage totals that rarely
// change meaningfully inside a single browser session.
const (
	healthEventInterval = time.Second
	statusEventInterval = 20 * time.Second
	slowEventInterval   = 500 * time.Second
)

// handleEvents serves the tiered SSE stream. One goroutine per tier polls
// its own cadence and writes through a mutex-guarded flusher so the three
// tickers and the log tailer never interleave a partial event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	sink := newSSESink(w, flusher)

	go s.runHealthTier(ctx, sink)
	go s.runStatusTier(ctx, sink)
	go s.runSlowTier(ctx, sink)
	if s.cfg.LogFilePath != "" {
		go newLogTailer(s.cfg.LogFilePath).run(ctx, func(line string) {
			sink.send("log", map[string]string{"line": line})
		})
	}

	<-ctx.Done()
}

// sseSink serializes writes from multiple tier goroutines to one
// ResponseWriter and coalesces repeats: an event whose payload is
// byte-identical to the last one sent under the same name is suppressed.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	last    map[string][]byte
}

func newSSESink(w http.ResponseWriter, flusher http.Flusher) *sseSink {
	return &sseSink{w: w, flusher: flusher, last: make(map[string][]byte)}
}

func (s *sseSink) send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[event]; ok && bytes.Equal(prev, data) {
		return
	}
	s.last[event] = data

	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flusher.Flush()
}

func (s *Server) runHealthTier(ctx context.Context, sink *sseSink) {
	ticker := time.NewTicker(healthEventInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.healthClient.Query(health.KindFull)
			if err != nil {
				continue
			}
			sink.send("health", map[string]interface{}{
				"system":  snap.System,
				"cameras": snap.Cameras,
				"stale":   snap.Stale,
			})
		}
	}
}

func (s *Server) runStatusTier(ctx context.Context, sink *sseSink) {
	ticker := time.NewTicker(statusEventInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := s.composeStatus()
			if err != nil {
				continue
			}
			sink.send("status", map[string]interface{}{
				"network": status.Data.Network,
				"wifi_ap": status.Data.WifiAP,
				"update":  status.Data.Update,
				"version": status.Node.Version,
			})
		}
	}
}

func (s *Server) runSlowTier(ctx context.Context, sink *sseSink) {
	ticker := time.NewTicker(slowEventInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cfg.Storage == nil {
				continue
			}
			sink.send("slow", map[string]interface{}{
				"total_bytes": s.cfg.Storage.TotalBytes(),
				"stats":       s.cfg.Storage.Stats(),
			})
		}
	}
}
