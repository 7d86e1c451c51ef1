package plc

import (
	"context"
	"sync"
	"time"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/utils"
)

// Layout do DB do relatório (offsets em bytes)
const (
	OffsetDistance = 0  // REAL
	OffsetBearing  = 4  // REAL, graus
	OffsetOffsetX  = 8  // REAL, goal - alvo
	OffsetOffsetY  = 12 // REAL
	OffsetOffsetZ  = 16 // REAL
	OffsetTargetX  = 20 // REAL
	OffsetTargetY  = 24 // REAL
	OffsetTargetZ  = 28 // REAL
	OffsetState    = 32 // INT: 0 sem fix, 1 fix, 2 fix antigo
	OffsetSequence = 34 // INT: contador do tick, volta a 0 em 32767
	ReportSize     = 36
)

// Códigos do estado de fix gravados no PLC
const (
	StateNoFix int16 = 0
	StateFix   int16 = 1
	StateStale int16 = 2
)

// blockWriter é a parte do cliente S7 usada pelo serviço
type blockWriter interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	WriteDataBlock(dbNumber int, startOffset int, data []byte) error
	GetLastError() error
}

// Health resume o estado da gravação no PLC para o /health
type Health struct {
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	Sequence  uint64 `json:"sequence,omitempty"`
	LastWrite string `json:"lastWrite,omitempty"`
	Failures  int    `json:"failures"`
	LastError string `json:"lastError,omitempty"`
}

// PLCService grava o último relatório de rastreamento em um DB do PLC
type PLCService struct {
	client          blockWriter
	config          config.PLCConfig
	ctx             context.Context
	cancel          context.CancelFunc
	updateFrequency time.Duration
	lastReport      *models.TrackingReport
	lastWritten     uint64
	lastWriteAt     time.Time
	written         bool
	reports         chan models.TrackingReport
	mutex           sync.RWMutex
	running         bool
	writeErrors     int
}

// NewPLCService cria um novo serviço de PLC
func NewPLCService(cfg config.PLCConfig) *PLCService {
	return newPLCService(cfg, NewS7Client(cfg))
}

func newPLCService(cfg config.PLCConfig, client blockWriter) *PLCService {
	ctx, cancel := context.WithCancel(context.Background())
	freq := cfg.UpdateRate.D()
	if freq <= 0 {
		freq = 200 * time.Millisecond
	}

	return &PLCService{
		client:          client,
		config:          cfg,
		ctx:             ctx,
		cancel:          cancel,
		updateFrequency: freq,
		reports:         make(chan models.TrackingReport, 10),
	}
}

// Start inicia o serviço de comunicação com o PLC
func (s *PLCService) Start() error {
	if !s.config.Enabled {
		logger.Info("Serviço PLC desabilitado por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	// Iniciar conexão com o PLC
	if err := s.client.Connect(); err != nil {
		return err
	}

	// Iniciar goroutine para atualização contínua
	go s.runUpdateLoop()

	s.running = true
	logger.Infof("Serviço PLC iniciado (DB%d, %v)", s.config.DBNumber, s.updateFrequency)
	return nil
}

// Stop para o serviço de comunicação com o PLC
func (s *PLCService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.client.Disconnect()
	s.running = false
	logger.Info("Serviço PLC parado")
}

// IsRunning verifica se o serviço está em execução
func (s *PLCService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Health retorna o estado atual da conexão e da última gravação
func (s *PLCService) Health() Health {
	s.mutex.RLock()
	h := Health{
		Running:  s.running,
		Failures: s.writeErrors,
	}
	if s.written {
		h.Sequence = s.lastWritten
		h.LastWrite = utils.FormatDateTimeMs(s.lastWriteAt)
	}
	s.mutex.RUnlock()

	h.Connected = s.client.IsConnected()
	if err := s.client.GetLastError(); err != nil {
		h.LastError = err.Error()
	}
	return h
}

// UpdateReport recebe o relatório do tick (assinatura de tracker.ReportHandler)
func (s *PLCService) UpdateReport(report models.TrackingReport) {
	if !s.IsRunning() {
		return
	}

	select {
	case s.reports <- report:
	default:
		// Canal cheio: o loop grava só o mais recente de qualquer forma
		logger.Debug("Canal de relatórios para PLC está cheio, descartando atualização")
	}
}

// runUpdateLoop executa o loop de atualização contínua para o PLC
func (s *PLCService) runUpdateLoop() {
	ticker := time.NewTicker(s.updateFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case report := <-s.reports:
			s.mutex.Lock()
			s.lastReport = &report
			s.mutex.Unlock()

		case <-ticker.C:
			s.mutex.RLock()
			report := s.lastReport
			s.mutex.RUnlock()

			if report != nil {
				s.sendReportToPLC(*report)
			}
		}
	}
}

// sendReportToPLC grava o relatório no DB, ignorando sequências já gravadas
func (s *PLCService) sendReportToPLC(report models.TrackingReport) {
	s.mutex.RLock()
	already := s.written && s.lastWritten == report.Sequence
	s.mutex.RUnlock()
	if already {
		return
	}

	if !s.client.IsConnected() {
		if err := s.client.Connect(); err != nil {
			logger.Error("Falha ao reconectar ao PLC", err)
			return
		}
	}

	if err := s.client.WriteDataBlock(s.config.DBNumber, 0, EncodeReport(report)); err != nil {
		s.mutex.Lock()
		s.writeErrors++
		count := s.writeErrors
		s.mutex.Unlock()
		logger.Errorf("Erro ao gravar relatório no PLC (%d falhas): %v", count, err)
		return
	}

	s.mutex.Lock()
	s.lastWritten = report.Sequence
	s.lastWriteAt = time.Now()
	s.written = true
	s.writeErrors = 0
	s.mutex.Unlock()
}

// EncodeReport monta a imagem do DB para um relatório. Sem fix, os REAL ficam zerados.
func EncodeReport(report models.TrackingReport) []byte {
	buf := make([]byte, ReportSize)

	state := StateNoFix
	switch {
	case report.HasFix() && report.State == models.FixStale:
		state = StateStale
	case report.HasFix():
		state = StateFix
	}

	if state != StateNoFix {
		putReal := func(off int, v float64) { utils.PutFloat32(buf[off:off+4], float32(v)) }
		if report.Distance != nil {
			putReal(OffsetDistance, *report.Distance)
		}
		if report.BearingDeg != nil {
			putReal(OffsetBearing, *report.BearingDeg)
		}
		if o := report.Offset; o != nil {
			putReal(OffsetOffsetX, o.X)
			putReal(OffsetOffsetY, o.Y)
			putReal(OffsetOffsetZ, o.Z)
		}
		t := report.Target
		putReal(OffsetTargetX, t.X)
		putReal(OffsetTargetY, t.Y)
		putReal(OffsetTargetZ, t.Z)
	}

	utils.PutInt16(buf[OffsetState:OffsetState+2], state)
	utils.PutInt16(buf[OffsetSequence:OffsetSequence+2], int16(report.Sequence%32768))
	return buf
}

// Shutdown encerra graciosamente o serviço
func (s *PLCService) Shutdown() {
	s.Stop()
}
