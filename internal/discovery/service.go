package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

const (
	// ServiceDomain é o domínio para descoberta na rede
	ServiceDomain = "local."

	// DefaultServiceType é usado quando a configuração não define outro
	DefaultServiceType = "_goaltrack._tcp"

	// Versão anunciada no TXT
	Version = "1.0.0"
)

// Peer é outra instância encontrada na rede
type Peer struct {
	Instance string            `json:"instance"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	IPs      []string          `json:"ips"`
	Text     map[string]string `json:"text,omitempty"`
}

// DiscoveryService gerencia o anúncio do serviço na rede local
type DiscoveryService struct {
	server       *zeroconf.Server
	ctx          context.Context
	cancel       context.CancelFunc
	mutex        sync.Mutex
	instanceName string
	serviceType  string
	port         int
	running      bool
	serverIP     string
	text         map[string]string
}

// NewDiscoveryService cria um novo serviço de descoberta
func NewDiscoveryService(cfg config.DiscoveryConfig, port int) *DiscoveryService {
	ctx, cancel := context.WithCancel(context.Background())

	// Nome de instância único por host
	hostname, _ := os.Hostname()
	instance := cfg.Instance
	if instance == "" {
		instance = "GoalTracker"
	}
	serviceType := cfg.Service
	if serviceType == "" {
		serviceType = DefaultServiceType
	}

	return &DiscoveryService{
		ctx:          ctx,
		cancel:       cancel,
		port:         port,
		instanceName: fmt.Sprintf("%s-%s", instance, hostname),
		serviceType:  serviceType,
		text:         map[string]string{"version": Version},
	}
}

// SetText adiciona um par chave=valor aos metadados anunciados
func (s *DiscoveryService) SetText(key, value string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.text[key] = value
}

// txtRecords monta os registros TXT em ordem estável
func txtRecords(text map[string]string) []string {
	out := make([]string, 0, len(text))
	for k, v := range text {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// parseTXT faz o inverso de txtRecords
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k != "" {
			out[k] = v
		}
	}
	return out
}

// Start inicia o serviço de descoberta
func (s *DiscoveryService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	// Obter o endereço IP local
	ip, err := getLocalIP()
	if err != nil {
		return fmt.Errorf("erro ao obter IP local: %w", err)
	}
	s.serverIP = ip
	s.text["ip"] = ip

	server, err := zeroconf.Register(
		s.instanceName,
		s.serviceType,
		ServiceDomain,
		s.port,
		txtRecords(s.text),
		nil, // Interfaces de rede (todas)
	)
	if err != nil {
		return fmt.Errorf("erro ao registrar serviço de descoberta: %w", err)
	}

	s.server = server
	s.running = true

	logger.Infof("Serviço de descoberta iniciado em %s:%d (mDNS: %s.%s)",
		ip, s.port, s.instanceName, s.serviceType)

	return nil
}

// Browse procura outras instâncias do mesmo tipo de serviço durante timeout
func (s *DiscoveryService) Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar resolver mDNS: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		peers   = make([]Peer, 0)
		peersMu sync.Mutex
	)
	go func() {
		for e := range entries {
			if e.Instance == s.instanceName {
				continue
			}
			p := Peer{Instance: e.Instance, Host: e.HostName, Port: e.Port, Text: parseTXT(e.Text)}
			for _, ip := range e.AddrIPv4 {
				p.IPs = append(p.IPs, ip.String())
			}
			peersMu.Lock()
			peers = append(peers, p)
			peersMu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, s.serviceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("erro na busca mDNS: %w", err)
	}
	<-ctx.Done()

	peersMu.Lock()
	defer peersMu.Unlock()
	out := make([]Peer, len(peers))
	copy(out, peers)
	return out, nil
}

// Stop para o serviço de descoberta
func (s *DiscoveryService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}

	s.cancel()
	s.running = false

	logger.Info("Serviço de descoberta parado")
}

// GetServerIP retorna o IP do servidor
func (s *DiscoveryService) GetServerIP() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.serverIP
}

// GetPort retorna a porta do servidor
func (s *DiscoveryService) GetPort() int {
	return s.port
}

// GetServiceType retorna o tipo anunciado
func (s *DiscoveryService) GetServiceType() string {
	return s.serviceType
}

// getLocalIP obtém o endereço IP local
func getLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}

	return "", fmt.Errorf("não foi possível determinar o endereço IP local")
}

// GetInstanceName retorna o nome da instância do serviço
func (s *DiscoveryService) GetInstanceName() string {
	return s.instanceName
}

// IsRunning verifica se o serviço está em execução
func (s *DiscoveryService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}
