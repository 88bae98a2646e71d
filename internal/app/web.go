package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/fall_monitor/internal/alert"
	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/monitor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is pushed to every websocket client on /ws/events.
type WSMessage struct {
	Type   string          `json:"type"` // "event", "alert" or "status"
	Event  *monitor.Event  `json:"event,omitempty"`
	Alert  *alert.Alert    `json:"alert,omitempty"`
	Status *monitor.Status `json:"status,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
}

// eventHub fans messages out to websocket clients. Slow clients lose
// messages instead of blocking the MQTT callbacks.
type eventHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*wsClient]struct{})}
}

func (h *eventHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *eventHub) broadcast(msg WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slog.Debug("websocket client too slow, message dropped")
		}
	}
}

func (h *eventHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *eventHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade error", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan WSMessage, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go func() {
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write error", "error", err)
				conn.Close()
				return
			}
		}
		conn.Close()
	}()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// webServer keeps the latest detector state seen on MQTT.
type webServer struct {
	pub           publisher
	responseTopic string
	hub           *eventHub

	mu         sync.RWMutex
	status     monitor.Status
	haveStatus bool
	latest     alert.Alert
	haveAlert  bool
}

func newWebServer(pub publisher, responseTopic string) *webServer {
	return &webServer{pub: pub, responseTopic: responseTopic, hub: newEventHub()}
}

func (s *webServer) onStatus(st monitor.Status) {
	s.mu.Lock()
	s.status = st
	s.haveStatus = true
	s.mu.Unlock()
	s.hub.broadcast(WSMessage{Type: "status", Status: &st})
}

func (s *webServer) onAlert(a alert.Alert) {
	s.mu.Lock()
	s.latest = a
	s.haveAlert = true
	s.mu.Unlock()
	s.hub.broadcast(WSMessage{Type: "alert", Alert: &a})
}

func (s *webServer) onEvent(ev monitor.Event) {
	s.hub.broadcast(WSMessage{Type: "event", Event: &ev})
}

func (s *webServer) routes(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/alert", s.handleAlert)
	mux.HandleFunc("POST /api/alert/respond", s.handleRespond)
	mux.HandleFunc("GET /ws/events", s.hub.serveWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (s *webServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	st, ok := s.status, s.haveStatus
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *webServer) handleAlert(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	a, ok := s.latest, s.haveAlert
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "no alert", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *webServer) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req AlertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := alert.ParseAction(req.Action); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := publishJSON(s.pub, s.responseTopic, 1, false, req); err != nil {
		slog.Error("alert response publish failed", "error", err)
		http.Error(w, "detector unreachable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}

// RunWeb serves the status API and the live event websocket until ctx is
// canceled.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	s := newWebServer(client, cfg.TopicAlertResponse)
	if err := subscribeJSON(client, cfg.TopicFallStatus, s.onStatus); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicAlert, s.onAlert); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicFallEvent, s.onEvent); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           s.routes("web"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("web server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
