package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Intervalo mínimo entre relatórios com o mesmo estado de fix
const reportThrottle = 20 * time.Millisecond

// CommandHandler executa os comandos do operador e fornece o estado inicial
// enviado a cada cliente novo
type CommandHandler interface {
	HandleCommand(cmd models.ClientCommand) (models.WebSocketMessage, error)
	Snapshot() []models.WebSocketMessage
}

// Hub gerencia todas as conexões WebSocket e distribuição de mensagens
type Hub struct {
	// Clientes registrados
	clients map[*Client]bool

	// Canal para registrar clientes
	register chan *Client

	// Canal para desregistrar clientes
	unregister chan *Client

	// Canal para mensagens de broadcast
	broadcast chan []byte

	// Comando recebido dos clientes
	commands chan models.ClientCommand

	// Mutex para operações concorrentes no mapa de clientes
	mu sync.RWMutex

	handler     CommandHandler
	handlerLock sync.RWMutex

	// Último relatório enviado (para limitar a taxa)
	lastReportState models.FixState
	lastReportTime  time.Time
	reportLock      sync.Mutex

	// Estatísticas
	stats struct {
		totalMessages      int64
		droppedMessages    int64
		totalClients       int64
		messagesPerSecond  float64
		lastStatsReset     time.Time
		messagesSinceReset int64
	}
	statsLock sync.Mutex

	// Sinal para encerramento do hub
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub cria uma nova instância do Hub
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		commands:   make(chan models.ClientCommand, 100),
		ctx:        ctx,
		cancel:     cancel,
	}

	h.stats.lastStatsReset = time.Now()
	return h
}

// SetCommandHandler define quem executa os comandos dos clientes
func (h *Hub) SetCommandHandler(handler CommandHandler) {
	h.handlerLock.Lock()
	defer h.handlerLock.Unlock()
	h.handler = handler
}

func (h *Hub) commandHandler() CommandHandler {
	h.handlerLock.RLock()
	defer h.handlerLock.RUnlock()
	return h.handler
}

// Run inicia o loop principal do hub para gerenciar clientes e mensagens
func (h *Hub) Run() {
	logger.Info("Iniciando WebSocket Hub")

	// Ticker para estatísticas periódicas
	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	// Ticker para manter conexões ativas
	pingTicker := time.NewTicker(5 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			logger.Info("Encerrando WebSocket Hub")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			logger.Infof("Novo cliente WebSocket conectado. ID: %s. Total: %d", client.id, clientCount)

			h.statsLock.Lock()
			h.stats.totalClients++
			h.statsLock.Unlock()

			// Enviar dados iniciais para o cliente
			go h.sendInitialDataToClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.statsLock.Lock()
			h.stats.totalMessages++
			h.stats.messagesSinceReset++
			h.statsLock.Unlock()

			h.mu.RLock()
			deadClients := make([]*Client, 0, 4)
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Canal do cliente está cheio, marcar para desconexão
					deadClients = append(deadClients, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range deadClients {
				h.removeClient(client)
			}

		case cmd := <-h.commands:
			go h.handleClientCommand(cmd)

		case <-statsTicker.C:
			h.logStats()

		case <-pingTicker.C:
			h.sendPingToAllClients()
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		logger.Infof("Cliente WebSocket desconectado. ID: %s. Total: %d", client.id, len(h.clients))
	}
}

func (h *Hub) logStats() {
	h.statsLock.Lock()
	elapsed := time.Since(h.stats.lastStatsReset).Seconds()
	if elapsed > 0 {
		h.stats.messagesPerSecond = float64(h.stats.messagesSinceReset) / elapsed
	}
	h.stats.messagesSinceReset = 0
	h.stats.lastStatsReset = time.Now()
	mps := h.stats.messagesPerSecond
	total := h.stats.totalMessages
	dropped := h.stats.droppedMessages
	h.statsLock.Unlock()

	logger.Infof("Estatísticas WebSocket: %d clientes, %.2f msgs/seg, total: %d mensagens, %d descartadas",
		h.ClientCount(), mps, total, dropped)
}

// enqueue coloca a mensagem na fila de broadcast sem bloquear quem publica
func (h *Hub) enqueue(msg interface{}, kind string) {
	jsonMessage, err := SerializeMessage(msg)
	if err != nil {
		logger.Error("Erro ao serializar mensagem de "+kind, err)
		return
	}
	select {
	case h.broadcast <- jsonMessage:
	default:
		h.statsLock.Lock()
		h.stats.droppedMessages++
		h.statsLock.Unlock()
	}
}

// BroadcastReport envia o relatório do tick para todos os clientes. Relatórios
// muito próximos com o mesmo estado de fix são descartados.
func (h *Hub) BroadcastReport(report models.TrackingReport) {
	h.reportLock.Lock()
	now := time.Now()
	if report.State == h.lastReportState && now.Sub(h.lastReportTime) < reportThrottle {
		h.reportLock.Unlock()
		return
	}
	h.lastReportState = report.State
	h.lastReportTime = now
	h.reportLock.Unlock()

	h.enqueue(NewReportMessage(report), "relatório")
}

// BroadcastStatus envia atualização de status para todos os clientes
func (h *Hub) BroadcastStatus(status models.TrackerStatus) {
	h.enqueue(NewStatusMessage(status), "status")
}

// BroadcastGoal envia o goal calculado
func (h *Hub) BroadcastGoal(info models.GoalInfo) {
	h.enqueue(NewMessage(TypeGoal, info), "goal")
}

// BroadcastGoalState envia uma transição da aquisição do goal
func (h *Hub) BroadcastGoalState(ev models.GoalStateEvent) {
	h.enqueue(NewMessage(TypeGoalState, ev), "estado do goal")
}

// BroadcastPendingPick avisa que uma câmera aguarda o clique do operador
func (h *Hub) BroadcastPendingPick(p models.PendingPick) {
	h.enqueue(NewMessage(TypeGoalPending, p), "seleção pendente")
}

// BroadcastCameraSelected avisa a troca da câmera exibida
func (h *Hub) BroadcastCameraSelected(cameraID int) {
	h.enqueue(NewMessage(TypeCameraSelected, models.CameraParams{Camera: cameraID}), "câmera selecionada")
}

// handleClientCommand processa comandos recebidos dos clientes
func (h *Hub) handleClientCommand(cmd models.ClientCommand) {
	logger.Infof("Comando recebido do cliente %s: %s", cmd.ClientID, cmd.Command)

	if cmd.Command == "ping" {
		h.sendPong(cmd.ClientID, cmd.Params)
		return
	}

	handler := h.commandHandler()
	if handler == nil {
		h.sendToClient(cmd.ClientID, NewErrorMessage("Servidor não aceita comandos no momento", "unavailable"))
		return
	}

	reply, err := handler.HandleCommand(cmd)
	if err != nil {
		logger.Warnf("Comando %s do cliente %s falhou: %v", cmd.Command, cmd.ClientID, err)
		h.sendToClient(cmd.ClientID, NewErrorMessage(err.Error(), cmd.Command))
		return
	}
	if reply.Type != "" {
		h.sendToClient(cmd.ClientID, reply)
	}
}

// sendToClient envia uma mensagem apenas para o cliente solicitante
func (h *Hub) sendToClient(clientID string, msg interface{}) {
	client := h.getClientByID(clientID)
	if client == nil {
		return
	}
	jsonMsg, err := SerializeMessage(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- jsonMsg:
	default:
	}
}

// sendPong envia resposta de pong para um cliente específico
func (h *Hub) sendPong(clientID string, params interface{}) {
	var pingTime int64
	if paramsMap, ok := params.(map[string]interface{}); ok {
		if timeVal, ok := paramsMap["time"].(float64); ok {
			pingTime = int64(timeVal)
		}
	}
	h.sendToClient(clientID, CreatePongResponse(pingTime))
}

// sendInitialDataToClient envia boas-vindas e o estado atual a um cliente novo
func (h *Hub) sendInitialDataToClient(client *Client) {
	welcome := NewMessage(TypeWelcome, map[string]interface{}{
		"message":  "Conectado ao servidor de rastreamento",
		"clientId": client.id,
	})
	h.sendToClient(client.id, welcome)

	if handler := h.commandHandler(); handler != nil {
		for _, msg := range handler.Snapshot() {
			h.sendToClient(client.id, msg)
		}
	}
}

// Shutdown encerra graciosamente o hub
func (h *Hub) Shutdown() {
	h.cancel()
	// Aguardar um pequeno tempo para processamento finalizar
	time.Sleep(100 * time.Millisecond)
}

// closeAllClients fecha todas as conexões dos clientes
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("Fechando todas as conexões de clientes WebSocket")
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount retorna o número atual de clientes conectados
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages retorna quantas mensagens foram descartadas com a fila cheia
func (h *Hub) DroppedMessages() int64 {
	h.statsLock.Lock()
	defer h.statsLock.Unlock()
	return h.stats.droppedMessages
}

// getClientByID retorna um cliente pelo seu ID
func (h *Hub) getClientByID(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.id == clientID {
			return client
		}
	}
	return nil
}

// sendPingToAllClients envia ping para todos os clientes
func (h *Hub) sendPingToAllClients() {
	if h.ClientCount() == 0 {
		return
	}
	ping := models.PingMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypePing,
			Timestamp: time.Now(),
		},
		Time: time.Now().UnixNano() / int64(time.Millisecond),
	}
	h.enqueue(ping, "ping")
}
