// Command monitor is an optional, read-only dashboard for a running lifty
// simulator: it listens for the same UDP event datagrams (§6) the
// simulator sends for its external control program, and rebroadcasts them
// over a websocket to any connected browser. It sends nothing back and
// never touches the simulator's hardware state — see SPEC_FULL.md §11.
package main

import (
	"embed"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
)

//go:embed static/*
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventAddr matches the simulator's fixed event endpoint (spec §6). The
// monitor and a real control program cannot both bind this port at once;
// the monitor is meant to be run instead of one while developing the
// other, not alongside it.
const eventAddr = "127.0.0.1:11000"

// hub fans a single UDP event stream out to every connected browser.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) broadcast(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
			slog.Warn("dropping monitor client", "error", err)
			c.Close()
			delete(h.clients, c)
		}
	}
}

func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	h.add(conn)
	slog.Info("monitor client connected", "remote", conn.RemoteAddr())
	defer func() {
		h.remove(conn)
		conn.Close()
		slog.Info("monitor client disconnected", "remote", conn.RemoteAddr())
	}()

	// This is a read-only dashboard; drain and discard any frames a
	// client sends so Gorilla's control-frame handling keeps working.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func listenEvents(h *hub) error {
	addr, err := net.ResolveUDPAddr("udp", eventAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 512)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				slog.Error("monitor event listener stopped", "error", err)
				return
			}
			h.broadcast(string(buf[:n]))
		}
	}()
	return nil
}

func loadPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8090"
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	h := newHub()
	if err := listenEvents(h); err != nil {
		logger.Error("failed to bind event listener", "addr", eventAddr, "error", err)
		os.Exit(1)
	}

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logger.Error("embed setup failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", h.handleWS)

	addr := ":" + loadPort()
	logger.Info("starting lifty monitor", "addr", addr, "events_from", eventAddr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("monitor server stopped", "error", err)
		os.Exit(1)
	}
}
