// Package web provides an HTTP status server for the touch-sensor daemon.
//
// Routes:
//
//	/, /index.html      per-channel touch table
//	/index.json         full daemon status
//	/channel.json?c=N   touch state and count for one monitored channel
package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/status"
)

// ChannelJSON is the body served by /channel.json. Count is omitted unless
// the detector is counting.
type ChannelJSON struct {
	Channel int    `json:"channel"`
	Touched bool   `json:"touched"`
	Count   *int   `json:"count,omitempty"`
	Mode    string `json:"mode"`
}

// Server serves the touch status pages over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/channel.json", s.handleChannel)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("c"))
	if err != nil || !logic.Channel(n).Valid() {
		http.Error(w, "c must be a channel number 0-11", http.StatusBadRequest)
		return
	}
	c := logic.Channel(n)
	snap := s.tracker.Snapshot()

	monitored := false
	for _, m := range snap.Channels {
		if m == c {
			monitored = true
			break
		}
	}
	if !monitored {
		http.Error(w, "channel not monitored", http.StatusNotFound)
		return
	}

	body := ChannelJSON{Channel: n, Touched: snap.Touched.Has(c), Mode: snap.Mode.String()}
	if snap.Mode.Has(logic.ModeCount) {
		count := 0
		for _, cc := range snap.Counts {
			if cc.Channel == c {
				count = cc.Count
			}
		}
		body.Count = &count
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("web: encode channel %d: %v", n, err)
	}
}
