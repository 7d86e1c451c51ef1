package redis

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Canais de saída (com prefixo)
const (
	ReportChannel = "Report"
	StatusChannel = "Status"
	GoalChannel   = "Goal"
)

// Service publica relatórios, status e goal no Redis
type Service struct {
	client    *Client
	mutex     sync.RWMutex
	connected bool
	failures  int
}

// NewService cria o serviço de publicação sobre um cliente
func NewService(client *Client) *Service {
	s := &Service{client: client}

	if !client.Enabled() {
		logger.Info("Serviço Redis desabilitado por configuração")
		return s
	}

	// Testar conexão
	if err := client.Connect(); err != nil {
		logger.Warnf("Aviso: %v. O Redis será utilizado em modo offline.", err)
		return s
	}
	s.connected = true
	return s
}

// IsConnected verifica se o serviço está conectado
func (s *Service) IsConnected() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.connected && s.client.Enabled()
}

func (s *Service) publish(name string, v interface{}) error {
	if !s.client.Enabled() {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("erro ao serializar %s: %w", name, err)
	}

	err = s.client.Publish(s.client.FormatChannel(name), payload)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err != nil {
		s.failures++
		// só registra a primeira falha da sequência
		if s.connected {
			logger.Warnf("Redis indisponível: %v", err)
		}
		s.connected = false
		return err
	}
	if !s.connected {
		logger.Info("Conexão com o Redis restabelecida")
	}
	s.connected = true
	s.failures = 0
	return nil
}

// WriteReport publica o relatório do tick
func (s *Service) WriteReport(report *models.TrackingReport) error {
	return s.publish(ReportChannel, report)
}

// WriteStatus publica o status do rastreador
func (s *Service) WriteStatus(status models.TrackerStatus) error {
	return s.publish(StatusChannel, status)
}

// WriteGoal publica o goal calculado
func (s *Service) WriteGoal(info models.GoalInfo) error {
	return s.publish(GoalChannel, info)
}

// Shutdown encerra graciosamente o serviço Redis
func (s *Service) Shutdown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.client.Close(); err != nil {
		logger.Errorf("Erro ao fechar conexão com Redis: %v", err)
	}
	s.connected = false
}
