package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fadhillaxl/stepper-rasp/gs232"
	"github.com/fadhillaxl/stepper-rasp/rotator"
)

// statusPoll is how often the web server snapshots rotator state.
const statusPoll = 250 * time.Millisecond

// WebServer pushes rotator status to browsers and accepts commands over
// a websocket.
type WebServer struct {
	rot *gs232.Server

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     rotator.Status
}

func NewWebServer(rot *gs232.Server) *WebServer {
	s := &WebServer{rot: rot}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *WebServer) Run(ctx context.Context, addr, staticDir string) error {
	r := mux.NewRouter()
	r.Handle("/", http.FileServer(http.Dir(staticDir)))
	r.Handle("/api/status", http.HandlerFunc(s.StatusHandler))
	r.Handle("/api/ws", http.HandlerFunc(s.StatusSocketHandler))
	srv := &http.Server{
		Handler:      r,
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		// Wake websocket writers blocked on the cond.
		s.statusCond.Broadcast()
		srv.Close()
	}()
	go s.pollStatus(ctx)
	log.Printf("status server listening on %v", addr)
	err := srv.ListenAndServe()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *WebServer) pollStatus(ctx context.Context) {
	t := time.NewTicker(statusPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		status := s.rot.Status()
		s.statusMu.Lock()
		changed := status != s.status
		s.status = status
		s.statusMu.Unlock()
		if changed {
			s.statusCond.Broadcast()
		}
	}
}

func (s *WebServer) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

// Command is a control message from the web frontend.
type Command struct {
	Command  string  `json:"command"`
	Position float64 `json:"position"`
	Enabled  bool    `json:"enabled"`
}

func (s *WebServer) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			switch msg.Command {
			case "set_azimuth_position":
				s.rot.SetAzimuthPosition(msg.Position)
			case "set_elevation_position":
				s.rot.SetElevationPosition(msg.Position)
			case "stop":
				s.rot.Stop()
			case "home":
				s.rot.Home()
			case "set_feedback":
				s.rot.SetFeedbackEnabled(msg.Enabled)
			}
		}
	}()

	send := func(status rotator.Status) bool {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return false
		}
		return true
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if !send(status) {
		return
	}

	for {
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if !send(status) {
			return
		}
	}
}
