package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Client encapsula a conexão com o Redis usada como barramento pub/sub
type Client struct {
	client    *redis.Client
	ctx       context.Context
	prefix    string
	config    config.RedisConfig
	mu        sync.RWMutex
	connected bool
}

// NewClient cria um novo cliente Redis
func NewClient(cfg config.RedisConfig) *Client {
	// Criar contexto base
	ctx := context.Background()

	// Se Redis estiver desabilitado, retornar cliente vazio
	if !cfg.Enabled {
		logger.Info("Cliente Redis desabilitado por configuração")
		return &Client{
			ctx:    ctx,
			config: cfg,
			prefix: cfg.Prefix,
		}
	}

	// Criar cliente Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{
		client: redisClient,
		ctx:    ctx,
		config: cfg,
		prefix: cfg.Prefix,
	}
}

// Enabled indica se o Redis está habilitado na configuração
func (c *Client) Enabled() bool {
	return c.config.Enabled && c.client != nil
}

// Connect tenta estabelecer conexão com o Redis
func (c *Client) Connect() error {
	if !c.config.Enabled {
		return fmt.Errorf("cliente Redis desabilitado por configuração")
	}

	if c.client == nil {
		return fmt.Errorf("cliente Redis não inicializado")
	}

	// Testar a conexão com ping
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.Ping(ctx).Result(); err != nil {
		c.setConnected(false)
		return fmt.Errorf("erro ao conectar ao Redis: %w", err)
	}

	c.setConnected(true)
	logger.Infof("Conexão estabelecida com Redis em %s:%d", c.config.Host, c.config.Port)
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected verifica se o cliente está conectado
func (c *Client) IsConnected() bool {
	if !c.Enabled() {
		return false
	}

	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	// Se ainda não conectou, tenta agora
	if !connected {
		ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
		defer cancel()

		if _, err := c.client.Ping(ctx).Result(); err != nil {
			return false
		}
		c.setConnected(true)
	}
	return true
}

// Close fecha a conexão com o Redis
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("erro ao fechar conexão Redis: %w", err)
	}

	c.setConnected(false)
	logger.Info("Conexão com Redis fechada")
	return nil
}

// GetPrefix retorna o prefixo usado nos canais publicados
func (c *Client) GetPrefix() string {
	return c.prefix
}

// FormatChannel formata um canal de saída com o prefixo configurado
func (c *Client) FormatChannel(name string) string {
	return fmt.Sprintf("%s.%s", c.prefix, name)
}

// CameraTopic aplica o id da câmera ao padrão de tópico
func CameraTopic(pattern string, cameraID int) string {
	return fmt.Sprintf(pattern, cameraID)
}

// Publish publica uma mensagem em um canal
func (c *Client) Publish(channel string, payload []byte) error {
	if !c.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		c.setConnected(false)
		return fmt.Errorf("erro ao publicar em %s: %w", channel, err)
	}
	c.setConnected(true)
	return nil
}

// subscribe abre uma assinatura com conexão própria
func (c *Client) subscribe(ctx context.Context, topic string) (*redis.PubSub, error) {
	ps := c.client.Subscribe(ctx, topic)
	// Receive espera a confirmação da assinatura
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("erro ao assinar %s: %w", topic, err)
	}
	return ps, nil
}
