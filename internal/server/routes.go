package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sharemesh/sharemesh/internal/relay"
	"github.com/sharemesh/sharemesh/internal/version"
)

// Options configures the relay HTTP surface.
type Options struct {
	// AllowedOrigins restricts browser origins. Empty or "*" allows all.
	AllowedOrigins []string

	// SendBuffer is the per-client outbound queue length.
	SendBuffer int

	Logger *slog.Logger
}

// NewRouter wires the health check and websocket endpoints.
func NewRouter(hub *relay.Hub, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler(hub))
	mux.HandleFunc("/ws", ServeWs(hub, opts))
	return mux
}

type healthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Stats   relay.Stats `json:"stats"`
}

func healthCheckHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(healthResponse{
			Status:  "ok",
			Version: version.Version,
			Stats:   hub.Registry.Stats(),
		})
	}
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// Every connection gets a fresh session ID and display name before it is
// registered; a connection that cannot be named is rejected.
func ServeWs(hub *relay.Hub, opts Options) http.HandlerFunc {
	upgrader := newUpgrader(opts.AllowedOrigins)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}

		name, err := hub.Names.Allocate()
		if err != nil {
			logger.Error("rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
			rejectConnection(conn, err)
			return
		}

		client := relay.NewClient(hub, conn, uuid.NewString(), name, opts.SendBuffer)
		if !hub.Register(client) {
			hub.Names.Release(name)
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func rejectConnection(conn *websocket.Conn, cause error) {
	defer conn.Close()

	payload, _ := json.Marshal(relay.ErrorPayload{Error: cause.Error(), Code: relay.CodeNameExhausted})
	deadline := time.Now().Add(time.Second)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(&relay.Message{Type: relay.TypeError, Payload: payload}); err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "no display names available"), deadline)
}
