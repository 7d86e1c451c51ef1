package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

const (
	// Tamanho máximo de mensagem permitido do cliente
	maxWebSocketMessageSize = 512 * 1024 // 512KB
)

// Handler gerencia conexões WebSocket
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader

	origins    map[string]bool
	maxClients int
	status     func() models.TrackerStatus
}

// HandlerOption configura um Handler
type HandlerOption func(*Handler)

// WithAllowedOrigins restringe as origens aceitas no upgrade. Sem origens
// configuradas qualquer uma é aceita (a interface roda em outro host da planta).
func WithAllowedOrigins(origins ...string) HandlerOption {
	return func(h *Handler) {
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				h.origins[strings.ToLower(o)] = true
			}
		}
	}
}

// WithMaxClients limita o número de clientes simultâneos (0 = sem limite)
func WithMaxClients(n int) HandlerOption {
	return func(h *Handler) { h.maxClients = n }
}

// WithStatus informa de onde vem o estado do rastreamento mostrado no /ws/health
func WithStatus(fn func() models.TrackerStatus) HandlerOption {
	return func(h *Handler) { h.status = fn }
}

// NewHandler cria um novo gerenciador de WebSocket
func NewHandler(hub *Hub, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:     hub,
		origins: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP implementa a interface http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket gerencia requisições WebSocket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.maxClients > 0 && h.hub.ClientCount() >= h.maxClients {
		logger.Warnf("Conexão WebSocket recusada: limite de %d clientes", h.maxClients)
		http.Error(w, "Limite de clientes atingido", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("Erro ao fazer upgrade para WebSocket: %v", err)
		return
	}
	conn.SetReadLimit(maxWebSocketMessageSize)

	userAgent := r.UserAgent()
	ipAddress := getIPAddress(r)
	logger.Infof("Nova conexão WebSocket de %s (%s)", ipAddress, userAgent)

	client := newClient(h.hub, conn, userAgent, ipAddress)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// checkOrigin aceita requisições sem Origin (clientes fora do navegador)
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.origins[strings.ToLower(origin)] {
		return true
	}
	logger.Warnf("Origem WebSocket recusada: %s", origin)
	return false
}

// getIPAddress extrai o endereço IP do cliente
func getIPAddress(r *http.Request) string {
	// Tentar obter o IP real caso esteja atrás de proxy
	ipAddress := r.Header.Get("X-Real-IP")
	if ipAddress == "" {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			ipAddress = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	if ipAddress == "" {
		ipAddress = r.RemoteAddr
	}
	return ipAddress
}

// Health é a resposta do /ws/health
type Health struct {
	Status     string    `json:"status"`
	Clients    int       `json:"clients"`
	MaxClients int       `json:"maxClients,omitempty"`
	Dropped    int64     `json:"droppedMessages"`
	Tracker    string    `json:"tracker,omitempty"`
	Ticks      uint64    `json:"ticks"`
	Fixes      uint64    `json:"fixes"`
	LastError  string    `json:"lastError,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Health monta o estado do hub e do rastreamento que alimenta os clientes.
// "degraded" quando o rastreamento parou ou o limite de clientes foi atingido.
func (h *Handler) Health() Health {
	health := Health{
		Status:     "ok",
		Clients:    h.hub.ClientCount(),
		MaxClients: h.maxClients,
		Dropped:    h.hub.DroppedMessages(),
		Timestamp:  time.Now(),
	}
	if h.status != nil {
		st := h.status()
		health.Tracker = st.Status
		health.Ticks = st.Ticks
		health.Fixes = st.Fixes
		health.LastError = st.LastError
		if st.Status == "stopped" {
			health.Status = "degraded"
		}
	}
	if h.maxClients > 0 && health.Clients >= h.maxClients {
		health.Status = "degraded"
	}
	return health
}

// ServeHealth responde ao /ws/health
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Health()); err != nil {
		logger.Errorf("Erro ao codificar saúde do WebSocket: %v", err)
	}
}
