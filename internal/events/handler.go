package events

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/observability"
)

const (
	transportHTTP      = "http"
	transportWebSocket = "websocket"
)

var upgrader = websocket.Upgrader{
	// The reporter runs as third-party script inside the presentation page.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SlideMessage is a push-channel frame. A frame that is not JSON is treated
// as the raw hash itself.
type SlideMessage struct {
	Hash string `json:"hash"`
}

// Handler receives slide-change notifications and feeds the queue.
type Handler struct {
	queue  *Queue
	logger zerolog.Logger
}

// NewHandler creates a handler that pushes onto queue.
func NewHandler(queue *Queue, logger zerolog.Logger) *Handler {
	return &Handler{
		queue:  queue,
		logger: logger.With().Str("component", "event_source").Logger(),
	}
}

// Register mounts the event endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/slide-change", h.SlideChange)
	mux.HandleFunc("/slide-events", h.SlideEvents)
}

// SlideChange handles GET /slide-change?hash=... and its CORS preflight.
// It always answers 200 so the in-page reporter never sees an error.
func (h *Handler) SlideChange(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.accept(r.URL.Query().Get("hash"), transportHTTP)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// SlideEvents upgrades to a websocket and treats every text frame as a
// slide-change notification until the peer disconnects.
func (h *Handler) SlideEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade slide event connection")
		return
	}
	defer conn.Close()

	h.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Slide reporter connected")

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("Slide reporter read error")
			}
			h.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Slide reporter disconnected")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.accept(decodeFrame(payload), transportWebSocket)
	}
}

func (h *Handler) accept(raw, transport string) {
	id, err := ParseFragment(raw)
	if err != nil {
		observability.RecordSlideEvent(transport, "dropped")
		h.logger.Warn().
			Err(err).
			Str("hash", raw).
			Str("transport", transport).
			Msg("Dropping malformed slide-change notification")
		return
	}

	if err := h.queue.Push(id); err != nil {
		observability.RecordSlideEvent(transport, "dropped")
		h.logger.Debug().Err(err).Str("slide_id", id).Msg("Queue closed, ignoring slide change")
		return
	}

	observability.RecordSlideEvent(transport, "queued")
	h.logger.Debug().
		Str("slide_id", id).
		Str("transport", transport).
		Msg("Slide change queued")
}

func decodeFrame(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var msg SlideMessage
		if err := json.Unmarshal(payload, &msg); err == nil {
			return msg.Hash
		}
	}
	return trimmed
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
}
