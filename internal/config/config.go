package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"github.com/spf13/cast"
)

// DefaultPath é o arquivo lido quando nenhum caminho é informado
const DefaultPath = "config.json"

// Config representa a configuração completa da aplicação
type Config struct {
	Server      ServerConfig      `json:"server"`
	Cameras     CamerasConfig     `json:"cameras"`
	Calibration CalibrationConfig `json:"calibration"`
	Redis       RedisConfig       `json:"redis"`
	Tracker     TrackerConfig     `json:"tracker"`
	Goal        GoalConfig        `json:"goal"`
	PLC         PLCConfig         `json:"plc"`
	Discovery   DiscoveryConfig   `json:"discovery"`
	Log         LogConfig         `json:"log"`
}

// Duration aceita "100ms", "2s" ou um número de nanossegundos no JSON
type Duration time.Duration

// D retorna o valor como time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON serializa no formato legível ("100ms")
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON aceita string ou número
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := cast.ToDurationE(v)
	if err != nil {
		return fmt.Errorf("duração inválida %s: %w", string(b), err)
	}
	*d = Duration(parsed)
	return nil
}

// ServerConfig contém configurações do servidor HTTP/WebSocket
type ServerConfig struct {
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
	// Origens aceitas no /ws (vazio aceita qualquer uma)
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	MaxWSClients   int      `json:"maxWsClients"`
}

// CamerasConfig lista as câmeras do rig na ordem usada para o goal e a exibição
type CamerasConfig struct {
	IDs           []int `json:"ids"`
	DisplayCamera int   `json:"displayCamera"`
}

// CalibrationConfig indica onde estão os arquivos de calibração por câmera
type CalibrationConfig struct {
	Dir         string `json:"dir"`
	FilePattern string `json:"filePattern"`
}

// RedisConfig contém configurações do Redis (transporte pub/sub)
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	Enabled  bool   `json:"enabled"`

	// Tópicos de entrada, com %d substituído pelo id da câmera
	FrameTopic     string `json:"frameTopic"`
	DetectionTopic string `json:"detectionTopic"`
	// Capacidade do buffer de cada assinatura
	BufferSize int `json:"bufferSize"`
}

// TrackerConfig contém os tempos do loop de rastreamento
type TrackerConfig struct {
	TickInterval  Duration `json:"tickInterval"`
	PollTimeout   Duration `json:"pollTimeout"`
	StaleAfter    Duration `json:"staleAfter"`
	StatsInterval Duration `json:"statsInterval"`
	Annotate      bool     `json:"annotate"`
}

// GoalConfig define como o ponto de referência é obtido na inicialização
type GoalConfig struct {
	// "remote" (operador via HTTP/WebSocket), "static" (pixels pré-definidos) ou "fixed"
	Mode string `json:"mode"`
	// Ponto 3D fixo, usado com mode "fixed"
	Fixed []float64 `json:"fixed,omitempty"`
	// Cliques pré-definidos por câmera (chave = id), usados com mode "static"
	Points map[string][]float64 `json:"points,omitempty"`
	// Tempo máximo de espera por cada frame durante a seleção (0 = sem limite)
	FrameTimeout Duration `json:"frameTimeout"`
}

// PLCConfig contém configurações para comunicação com o PLC S7
type PLCConfig struct {
	Enabled      bool     `json:"enabled"`
	Host         string   `json:"host"`
	Rack         int      `json:"rack"`
	Slot         int      `json:"slot"`
	DBNumber     int      `json:"dbNumber"`
	UpdateRate   Duration `json:"updateRate"`
	ReadTimeout  Duration `json:"readTimeout"`
	WriteTimeout Duration `json:"writeTimeout"`
}

// DiscoveryConfig controla o anúncio mDNS
type DiscoveryConfig struct {
	Enabled  bool   `json:"enabled"`
	Instance string `json:"instance"`
	Service  string `json:"service"`
}

// LogConfig controla nível e arquivos de log
type LogConfig struct {
	Level  string `json:"level"`
	Dir    string `json:"dir"`
	Prefix string `json:"prefix"`
}

// Load carrega a configuração do arquivo ou usa valores padrão.
// Referências ${VAR} no arquivo são substituídas pelo ambiente antes do parse.
func Load(path string) (*Config, error) {
	config := getDefaultConfig()
	if path == "" {
		path = DefaultPath
	}

	// Verificar se existe um arquivo de configuração
	if _, err := os.Stat(path); err == nil {
		raw, err := envsubst.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("erro ao ler %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("erro ao decodificar %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// Sobrescrever com variáveis de ambiente, se existirem
	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnvironmentOverrides sobrescreve configurações com variáveis de ambiente
func applyEnvironmentOverrides(config *Config) error {
	var firstErr error
	setErr := func(name string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("variável %s inválida: %w", name, err)
		}
	}

	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		n, err := cast.ToIntE(v)
		setErr("SERVER_PORT", err)
		config.Server.Port = n
	}
	if v, ok := os.LookupEnv("WS_ALLOWED_ORIGINS"); ok {
		origins := cast.ToStringSlice(strings.Split(v, ","))
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		config.Server.AllowedOrigins = origins
	}
	if v, ok := os.LookupEnv("REDIS_HOST"); ok {
		config.Redis.Host = v
	}
	if v, ok := os.LookupEnv("REDIS_PORT"); ok {
		n, err := cast.ToIntE(v)
		setErr("REDIS_PORT", err)
		config.Redis.Port = n
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		config.Redis.Password = v
	}
	if v, ok := os.LookupEnv("REDIS_ENABLED"); ok {
		b, err := cast.ToBoolE(v)
		setErr("REDIS_ENABLED", err)
		config.Redis.Enabled = b
	}
	if v, ok := os.LookupEnv("CALIBRATION_DIR"); ok {
		config.Calibration.Dir = v
	}
	if v, ok := os.LookupEnv("CAMERA_IDS"); ok {
		ids, err := cast.ToIntSliceE(strings.Split(v, ","))
		setErr("CAMERA_IDS", err)
		if err == nil {
			config.Cameras.IDs = ids
		}
	}
	if v, ok := os.LookupEnv("GOAL_MODE"); ok {
		config.Goal.Mode = v
	}
	if v, ok := os.LookupEnv("POLL_TIMEOUT"); ok {
		d, err := cast.ToDurationE(v)
		setErr("POLL_TIMEOUT", err)
		config.Tracker.PollTimeout = Duration(d)
	}
	if v, ok := os.LookupEnv("PLC_ENABLED"); ok {
		b, err := cast.ToBoolE(v)
		setErr("PLC_ENABLED", err)
		config.PLC.Enabled = b
	}
	if v, ok := os.LookupEnv("PLC_HOST"); ok {
		config.PLC.Host = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		config.Log.Level = v
	}
	return firstErr
}

// Validate verifica combinações inválidas antes de iniciar os serviços
func (c *Config) Validate() error {
	if len(c.Cameras.IDs) == 0 {
		return errors.New("nenhuma câmera configurada")
	}
	seen := make(map[int]bool, len(c.Cameras.IDs))
	for _, id := range c.Cameras.IDs {
		if seen[id] {
			return fmt.Errorf("câmera %d repetida", id)
		}
		seen[id] = true
	}
	if c.Cameras.DisplayCamera != 0 && !seen[c.Cameras.DisplayCamera] {
		return fmt.Errorf("câmera de exibição %d não está na lista", c.Cameras.DisplayCamera)
	}
	if c.Tracker.PollTimeout <= 0 || c.Tracker.TickInterval <= 0 {
		return errors.New("tickInterval e pollTimeout devem ser positivos")
	}
	if c.Server.MaxWSClients < 0 {
		return errors.New("server.maxWsClients não pode ser negativo")
	}
	if !strings.Contains(c.Calibration.FilePattern, "%d") {
		return fmt.Errorf("calibration.filePattern %q precisa conter %%d", c.Calibration.FilePattern)
	}

	switch c.Goal.Mode {
	case GoalModeRemote, GoalModeStatic:
	case GoalModeFixed:
		if len(c.Goal.Fixed) != 3 {
			return errors.New("goal.fixed precisa de 3 coordenadas")
		}
	default:
		return fmt.Errorf("goal.mode desconhecido: %q", c.Goal.Mode)
	}
	for k, p := range c.Goal.Points {
		if _, err := cast.ToIntE(k); err != nil {
			return fmt.Errorf("goal.points: chave %q não é id de câmera", k)
		}
		if len(p) != 2 {
			return fmt.Errorf("goal.points[%s] precisa de 2 coordenadas", k)
		}
	}
	return nil
}

// Modos de aquisição do goal
const (
	GoalModeRemote = "remote"
	GoalModeStatic = "static"
	GoalModeFixed  = "fixed"
)

// StaticPoints converte goal.points para o mapa indexado por id de câmera
func (g GoalConfig) StaticPoints() map[int][2]float64 {
	out := make(map[int][2]float64, len(g.Points))
	for k, p := range g.Points {
		id, err := cast.ToIntE(k)
		if err != nil || len(p) != 2 {
			continue
		}
		out[id] = [2]float64{p[0], p[1]}
	}
	return out
}
