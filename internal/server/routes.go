package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/api"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/discovery"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/plc"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/websocket"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/utils"
)

const serviceName = "Goal Tracker"

// setupRoutes configura todas as rotas do servidor e retorna o handler final
func (s *Server) setupRoutes() http.Handler {
	wsHandler := websocket.NewHandler(s.wsHub,
		websocket.WithAllowedOrigins(s.config.Server.AllowedOrigins...),
		websocket.WithMaxClients(s.config.Server.MaxWSClients),
		websocket.WithStatus(s.tracker.GetStatus),
	)
	apiRouter := api.NewRouter(s.controller, "/api")
	apiRouter.Setup()

	// Endpoint de saúde
	s.router.HandleFunc("/health", s.healthHandler)

	// Endpoint de informações do servidor
	s.router.HandleFunc("/info", s.infoHandler)

	// Endpoints de descoberta
	s.router.HandleFunc("/api/discover", s.discoverHandler)
	s.router.HandleFunc("/api/server-info", s.serverInfoHandler)

	// WebSocket
	s.router.Handle("/ws", wsHandler)
	s.router.HandleFunc("/ws/health", wsHandler.ServeHealth)

	// API REST
	s.router.Handle("/api/", apiRouter.Handler())

	// Interface do operador (opcional)
	s.router.Handle("/", http.FileServer(http.Dir("./static")))

	return api.Chain(api.RecoveryMiddleware, api.CorsMiddleware)(s.router)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Erro ao codificar resposta JSON: %v", err)
	}
}

// healthHandler responde com o status de saúde do servidor
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	trackerStatus := "ok"
	if !s.tracker.IsRunning() {
		trackerStatus = "waiting_goal"
	}

	plcStatus := "disabled"
	var plcHealth *plc.Health
	if s.config.PLC.Enabled {
		plcStatus = "offline"
		if s.plcService != nil {
			h := s.plcService.Health()
			plcHealth = &h
			if h.Running && h.Connected {
				plcStatus = "ok"
			}
		}
	}

	redisStatus := "disabled"
	if s.config.Redis.Enabled {
		redisStatus = "ok"
		if !s.redisService.IsConnected() {
			redisStatus = "offline"
		}
	}

	discoveryStatus := "disabled"
	if s.discoveryService != nil {
		discoveryStatus = "ok"
		if !s.discoveryService.IsRunning() {
			discoveryStatus = "offline"
		}
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"services": map[string]string{
			"tracker":   trackerStatus,
			"redis":     redisStatus,
			"plc":       plcStatus,
			"websocket": "ok",
			"discovery": discoveryStatus,
		},
	}

	if plcHealth != nil {
		response["plc"] = plcHealth
	}

	// Sem Redis não chegam detecções
	if redisStatus == "offline" {
		response["status"] = "degraded"
	}

	writeJSON(w, response)
}

// infoHandler retorna informações básicas sobre o servidor
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()

	writeJSON(w, map[string]interface{}{
		"name":        serviceName,
		"version":     info.Version,
		"ip":          info.IP,
		"port":        info.Port,
		"websocket":   info.WebSocketURL,
		"api":         info.APIURL,
		"startTime":   info.StartTime,
		"uptime":      utils.FormatDuration(time.Since(info.StartTime)),
		"connections": info.Connections,
	})
}

// serverInfoHandler retorna informações completas sobre o servidor
func (s *Server) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()

	discoveryInfo := map[string]interface{}{
		"enabled": s.discoveryService != nil,
	}
	if s.discoveryService != nil {
		discoveryInfo["running"] = s.discoveryService.IsRunning()
		discoveryInfo["instanceName"] = s.discoveryService.GetInstanceName()
		discoveryInfo["serviceType"] = s.discoveryService.GetServiceType()
	}

	writeJSON(w, map[string]interface{}{
		"server": map[string]interface{}{
			"name":        serviceName,
			"version":     info.Version,
			"ip":          info.IP,
			"port":        info.Port,
			"websocket":   info.WebSocketURL,
			"api":         info.APIURL,
			"startTime":   info.StartTime,
			"uptime":      utils.FormatDuration(time.Since(info.StartTime)),
			"connections": info.Connections,
		},
		"discovery": discoveryInfo,
		"services": map[string]interface{}{
			"tracker": map[string]interface{}{
				"running":     s.tracker.IsRunning(),
				"cameras":     s.tracker.Cameras(),
				"performance": s.tracker.PerformanceStats(),
			},
			"goal": map[string]interface{}{
				"mode": s.config.Goal.Mode,
			},
			"redis": map[string]interface{}{
				"enabled":   s.config.Redis.Enabled,
				"connected": s.redisService.IsConnected(),
				"host":      s.config.Redis.Host,
				"port":      s.config.Redis.Port,
			},
			"plc": map[string]interface{}{
				"enabled": s.config.PLC.Enabled,
				"running": s.plcService != nil && s.plcService.IsRunning(),
				"host":    s.config.PLC.Host,
			},
		},
	})
}

// discoverHandler fornece informações para descoberta manual. Com
// ?browse=1 também lista outras instâncias anunciadas via mDNS.
func (s *Server) discoverHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()

	response := map[string]interface{}{
		"name":        serviceName,
		"ip":          info.IP,
		"port":        info.Port,
		"wsUrl":       info.WebSocketURL,
		"apiUrl":      info.APIURL,
		"version":     info.Version,
		"wsEndpoint":  "/ws",
		"apiEndpoint": "/api",
	}

	if r.URL.Query().Get("browse") != "" && s.discoveryService != nil {
		peers, err := s.discoveryService.Browse(r.Context(), 2*time.Second)
		if err != nil {
			logger.Warnf("Busca mDNS falhou: %v", err)
			peers = []discovery.Peer{}
		}
		response["peers"] = peers
	}

	writeJSON(w, response)
}
