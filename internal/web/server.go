// Package web provides the HTTP status server for the touch-scale daemon:
// a status page, a JSON snapshot, a websocket status stream and the session
// controls.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/touch-scale/internal/session"
	"github.com/sweeney/touch-scale/internal/status"
	"github.com/sweeney/touch-scale/internal/touch"
)

// Controller drives the weighing session.
type Controller interface {
	Start() error
	Restart() error
	Zero() (bool, error)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a Server that reads state from tracker. ctl may be nil, in
// which case the control endpoints answer 503.
func New(addr string, tracker *status.Tracker, ctl Controller) *Server {
	s := &Server{
		tracker: tracker,
		ctl:     ctl,
		quit:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/restart", s.handleRestart)
	mux.HandleFunc("/zero", s.handleZero)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	// Hijacked websocket connections are not closed by Shutdown.
	s.httpServer.RegisterOnShutdown(s.closeStreams)
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

// Shutdown gracefully shuts down the server and ends every status stream.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) closeStreams() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleWS streams a compact status snapshot on every tracker change.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade: %v", err)
		return
	}

	done := make(chan struct{})
	go readPump(conn, done)
	go s.writePump(conn, done)
}

// readPump discards client messages and watches for the connection closing.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("web: websocket read: %v", err)
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		conn.Close()
	}()

	for {
		// Fetch the channel before the snapshot so no change is missed.
		changed := s.tracker.Changed()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, status.FormatCompactJSON(s.tracker.Snapshot())); err != nil {
			return
		}

	wait:
		for {
			select {
			case <-changed:
				break wait
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-s.quit:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
				return
			}
		}
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.control(w, r) {
		return
	}
	if err := s.ctl.Start(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if !s.control(w, r) {
		return
	}
	if err := s.ctl.Restart(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleZero(w http.ResponseWriter, r *http.Request) {
	if !s.control(w, r) {
		return
	}
	zeroed, err := s.ctl.Zero()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "zeroed": zeroed})
}

// control checks the method and that a controller is attached.
func (s *Server) control(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	if s.ctl == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no session"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, touch.ErrSourceUnavailable) || errors.Is(err, session.ErrClosed) {
		code = http.StatusServiceUnavailable
	}
	log.Printf("web: %v", err)
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
