package view

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/babelforce/tutor-go/transport/ws"
)

//go:embed static/index.html
var indexHTML []byte

// Handler routes the host surface:
//
//	GET /              presentation page
//	GET /ws            websocket for proto messages
//	GET /metrics       prometheus metrics
//	GET /api/journal   recent snapshots
//	GET /api/snapshot  current snapshot
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})

	mux.Handle("GET /ws", ws.Handler(ws.ServerConfig{Config: ws.Config{Logger: h.config.Logger}}, h.hub.Accept))

	mux.Handle("GET /metrics", h.metrics.Handler())

	mux.HandleFunc("GET /api/journal", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, h.journal.Entries())
	})

	mux.HandleFunc("GET /api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, h.controller.Snapshot())
	})

	return mux
}

func (h *Host) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", slog.Any("err", err))
	}
}
