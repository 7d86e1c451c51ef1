// Package tracker executa o loop de rastreamento: a cada tick consulta todas
// as câmeras, triangula o alvo e publica a relação alvo/goal.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/display"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/goal"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/normalize"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/triangulation"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Status do serviço
const (
	StatusWaitingGoal = "waiting_goal"
	StatusRunning     = "running"
	StatusNoFix       = "no_fix"
	StatusStopped     = "stopped"
)

// ReportHandler é um tipo de função para receber os relatórios de cada tick
type ReportHandler func(report models.TrackingReport)

// DetectionSource é o adaptador de último valor de uma câmera
type DetectionSource interface {
	GetLatest(timeout time.Duration) ([]byte, int, bool)
}

// Broadcaster envia relatórios e status aos clientes conectados
type Broadcaster interface {
	BroadcastReport(report models.TrackingReport)
	BroadcastStatus(status models.TrackerStatus)
}

// Publisher publica relatórios e status no barramento
type Publisher interface {
	IsConnected() bool
	WriteReport(report *models.TrackingReport) error
	WriteStatus(status models.TrackerStatus) error
}

// Renderer gera o frame anotado da câmera exibida
type Renderer interface {
	Render(cameraID int, target *geometry.Ray, goalPx *r2.Point) (goal.Frame, bool, error)
}

// Options contém os tempos do loop
type Options struct {
	TickInterval  time.Duration
	PollTimeout   time.Duration
	StaleAfter    time.Duration
	StatsInterval time.Duration
	Annotate      bool
	Clock         clock.Clock
}

type fix struct {
	target  r3.Vector
	at      time.Time
	cameras []int
}

// Service gerencia o loop de rastreamento
type Service struct {
	opts       Options
	clock      clock.Clock
	store      *calibration.Store
	detections map[int]DetectionSource
	cameras    []int

	selector *display.Selector
	frames   *display.FrameStore
	renderer Renderer
	hub      Broadcaster
	pub      Publisher

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mutex   sync.RWMutex

	goal       r3.Vector
	goalSet    bool
	status     models.TrackerStatus
	lastReport *models.TrackingReport
	lastFix    *fix
	sequence   uint64
	fixes      uint64

	handlers     []ReportHandler
	handlersLock sync.RWMutex

	consecutiveNoFix int

	// Estatísticas de desempenho
	stats struct {
		totalCycles    int64
		cycleDurations []float64 // ms
	}
	statsLock sync.Mutex
}

// NewService cria o serviço. As câmeras consultadas são as que têm
// calibração e fonte de detecções.
func NewService(opts Options, store *calibration.Store, detections map[int]DetectionSource, selector *display.Selector, frames *display.FrameStore) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	var cameras []int
	for _, id := range store.CameraIDs() {
		if _, ok := detections[id]; ok {
			cameras = append(cameras, id)
		}
	}
	for id := range detections {
		if _, ok := store.Get(id); !ok {
			logger.Warnf("Câmera %d sem calibração: detecções ignoradas", id)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:       opts,
		clock:      opts.Clock,
		store:      store,
		detections: detections,
		cameras:    cameras,
		selector:   selector,
		frames:     frames,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.status = models.TrackerStatus{
		Status:    StatusWaitingGoal,
		Timestamp: s.clock.Now(),
		Cameras:   cameras,
	}
	s.stats.cycleDurations = make([]float64, 0, 100)
	return s
}

// SetRenderer configura a geração do frame anotado
func (s *Service) SetRenderer(r Renderer) { s.renderer = r }

// SetBroadcaster configura o hub WebSocket
func (s *Service) SetBroadcaster(b Broadcaster) { s.hub = b }

// SetPublisher configura o barramento de saída
func (s *Service) SetPublisher(p Publisher) { s.pub = p }

// Cameras retorna as câmeras consultadas a cada tick
func (s *Service) Cameras() []int {
	return append([]int(nil), s.cameras...)
}

// Start fixa o goal e inicia o loop. O goal não muda depois disso.
func (s *Service) Start(goalPoint r3.Vector) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return nil
	}
	if !geometry.IsFiniteVector(goalPoint) {
		s.mutex.Unlock()
		return fmt.Errorf("goal inválido: %w", geometry.ErrInvalidGeometry)
	}
	s.goal = goalPoint
	s.goalSet = true
	s.running = true
	s.mutex.Unlock()

	logger.Infof("Iniciando rastreamento com %d câmeras %v (tick %v, timeout %v)",
		len(s.cameras), s.cameras, s.opts.TickInterval, s.opts.PollTimeout)
	s.updateStatus(StatusRunning, "")

	go s.collectData()
	go s.monitorStats()
	return nil
}

// Stop para o serviço
func (s *Service) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	s.mutex.Unlock()

	logger.Info("Parando serviço de rastreamento")
	s.cancel()
	s.updateStatus(StatusStopped, "")
}

// IsRunning verifica se o serviço está em execução
func (s *Service) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Goal retorna o goal em uso
func (s *Service) Goal() (r3.Vector, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.goal, s.goalSet
}

// RegisterReportHandler registra uma função para receber os relatórios
func (s *Service) RegisterReportHandler(handler ReportHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.handlers = append(s.handlers, handler)
}

// GetStatus retorna o status atual
func (s *Service) GetStatus() models.TrackerStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	st := s.status
	st.Ticks = s.sequence
	st.Fixes = s.fixes
	if s.selector != nil {
		st.DisplayCamera = s.selector.Current()
	}
	return st
}

// GetLastReport retorna o último relatório gerado
func (s *Service) GetLastReport() *models.TrackingReport {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastReport
}

// collectData executa o loop principal
func (s *Service) collectData() {
	ticker := s.clock.Ticker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			start := s.clock.Now()
			s.tick()
			s.recordCycle(s.clock.Since(start))
		}
	}
}

// tick processa um ciclo completo: relatório, publicação e exibição
func (s *Service) tick() {
	results := s.pollCameras()
	report, ok := s.processTick(results)
	if !ok {
		return
	}

	// PRIORIDADE 1: WebSocket
	if s.hub != nil {
		s.hub.BroadcastReport(report)
	}

	// PRIORIDADE 2: handlers (PLC)
	s.notifyReportHandlers(report)

	// PRIORIDADE 3: barramento, sem bloquear o ciclo
	if s.pub != nil && s.pub.IsConnected() {
		go func(r models.TrackingReport) {
			if err := s.pub.WriteReport(&r); err != nil {
				logger.Errorf("Erro ao publicar relatório: %v", err)
			}
		}(report)
	}

	s.renderDisplay(results)
}

// pollCameras consulta todas as câmeras em paralelo, cada uma limitada pelo timeout
func (s *Service) pollCameras() []normalize.Result {
	results := make([]normalize.Result, len(s.cameras))

	var g errgroup.Group
	for i, id := range s.cameras {
		i, id := i, id
		g.Go(func() error {
			results[i] = s.pollCamera(id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) pollCamera(id int) normalize.Result {
	payload, dropped, ok := s.detections[id].GetLatest(s.opts.PollTimeout)
	if !ok {
		return normalize.Timeout(id)
	}

	cal, found := s.store.Get(id)
	if !found {
		return normalize.NoCalibration(id)
	}

	res := normalize.FromDetection(id, payload, cal)
	res.Dropped = dropped
	switch res.Status {
	case normalize.StatusParseError, normalize.StatusInvalidRay:
		logger.Warnf("Câmera %d: %v", id, res.Err)
	}
	return res
}

// processTick monta o relatório do tick a partir dos resultados por câmera.
// ok é false quando o tick deve ser descartado.
func (s *Service) processTick(results []normalize.Result) (models.TrackingReport, bool) {
	now := s.clock.Now()
	goalPoint, _ := s.Goal()

	s.mutex.Lock()
	s.sequence++
	seq := s.sequence
	s.mutex.Unlock()

	report := models.TrackingReport{
		Sequence:  seq,
		Timestamp: now,
		Goal:      toPoint3(goalPoint),
		Outcomes:  make([]models.CameraOutcome, 0, len(results)),
	}

	var obs []triangulation.Observation
	for _, r := range results {
		report.Outcomes = append(report.Outcomes, r.Outcome())
		if !r.Usable() || !r.Ray.IsFinite() {
			continue
		}
		p, err := s.store.ProjectionMatrix(r.CameraID)
		if err != nil {
			continue
		}
		obs = append(obs, triangulation.Observation{CameraID: r.CameraID, P: p, Ray: r.Ray})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].CameraID < obs[j].CameraID })

	target, err := triangulation.Triangulate(obs)
	switch {
	case err == nil:
		rep, gerr := geometry.NewReport(goalPoint, target)
		if gerr != nil {
			logger.Error("Tick descartado", gerr)
			return report, false
		}
		fillGeometry(&report, rep)
		report.State = models.FixOK
		report.Cameras = triangulation.CameraIDs(obs)
		report.Reprojection = triangulation.Reprojection(obs, target)

		s.mutex.Lock()
		s.lastFix = &fix{target: target, at: now, cameras: report.Cameras}
		s.fixes++
		s.mutex.Unlock()
		s.fixRestored()

	case errors.Is(err, triangulation.ErrUnderdetermined), errors.Is(err, triangulation.ErrDegenerateConfiguration):
		if errors.Is(err, triangulation.ErrDegenerateConfiguration) {
			logger.Warnf("Tick %d: %v", seq, err)
		}
		s.fillStale(&report, goalPoint, now)

	default:
		logger.Errorf("Tick %d: erro na triangulação: %v", seq, err)
		s.fillStale(&report, goalPoint, now)
	}

	s.mutex.Lock()
	stored := report
	s.lastReport = &stored
	s.mutex.Unlock()
	return report, true
}

// fillStale reaproveita o último fix, marcado como antigo, enquanto estiver no prazo
func (s *Service) fillStale(report *models.TrackingReport, goalPoint r3.Vector, now time.Time) {
	s.mutex.RLock()
	last := s.lastFix
	s.mutex.RUnlock()

	report.State = models.FixNone
	if last != nil {
		age := now.Sub(last.at)
		if age <= s.opts.StaleAfter {
			if rep, err := geometry.NewReport(goalPoint, last.target); err == nil {
				fillGeometry(report, rep)
				report.State = models.FixStale
				report.FixAge = age
				report.Cameras = last.cameras
			}
		}
	}
	if report.State == models.FixNone {
		s.noFix()
	}
}

// fixRestored / noFix controlam o status, como a contagem de erros consecutivos
func (s *Service) fixRestored() {
	s.mutex.Lock()
	n := s.consecutiveNoFix
	s.consecutiveNoFix = 0
	s.mutex.Unlock()
	if n > 0 && s.GetStatus().Status == StatusNoFix {
		logger.Infof("Alvo reencontrado após %d ticks sem posição", n)
		s.updateStatus(StatusRunning, "")
	}
}

func (s *Service) noFix() {
	s.mutex.Lock()
	s.consecutiveNoFix++
	n := s.consecutiveNoFix
	s.mutex.Unlock()
	if n == 1 && s.IsRunning() {
		s.updateStatus(StatusNoFix, "alvo não localizado por ao menos 2 câmeras")
	}
}

func fillGeometry(report *models.TrackingReport, rep geometry.Report) {
	target := toPoint3(rep.Target)
	offset := toPoint3(rep.Offset)
	distance := rep.Distance
	bearing := rep.BearingDeg
	report.Target = &target
	report.Offset = &offset
	report.Distance = &distance
	report.BearingDeg = &bearing
}

func toPoint3(v r3.Vector) models.Point3 {
	return models.Point3{X: v.X, Y: v.Y, Z: v.Z}
}

// renderDisplay gera o frame anotado da câmera selecionada
func (s *Service) renderDisplay(results []normalize.Result) {
	if s.renderer == nil || s.selector == nil || s.frames == nil || !s.opts.Annotate {
		return
	}
	cam := s.selector.Current()

	var target *geometry.Ray
	for _, r := range results {
		if r.CameraID == cam && r.Usable() {
			ray := r.Ray
			target = &ray
		}
	}

	var goalPx *r2.Point
	goalPoint, _ := s.Goal()
	if p, err := s.store.ProjectionMatrix(cam); err == nil {
		if px, err := geometry.Project(p, goalPoint); err == nil {
			goalPx = &px
		}
	}

	f, ok, err := s.renderer.Render(cam, target, goalPx)
	if err != nil {
		logger.Warnf("Erro ao gerar frame da câmera %d: %v", cam, err)
		return
	}
	if ok {
		s.frames.Store(display.Frame{Camera: cam, JPEG: f.JPEG, Timestamp: s.clock.Now()})
	}
}

// updateStatus atualiza o status e o divulga
func (s *Service) updateStatus(status string, errorMsg string) {
	s.mutex.Lock()
	s.status.Status = status
	s.status.Timestamp = s.clock.Now()
	s.status.LastError = errorMsg
	s.status.ErrorCount = s.consecutiveNoFix
	s.mutex.Unlock()

	st := s.GetStatus()
	if s.pub != nil && s.pub.IsConnected() {
		if err := s.pub.WriteStatus(st); err != nil {
			logger.Errorf("Erro ao publicar status: %v", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastStatus(st)
	}

	if status == StatusNoFix {
		logger.Warnf("Status do rastreamento alterado para %s: %s", status, errorMsg)
	} else {
		logger.Infof("Status do rastreamento: %s", status)
	}
}

// notifyReportHandlers notifica todos os handlers registrados
func (s *Service) notifyReportHandlers(report models.TrackingReport) {
	s.handlersLock.RLock()
	handlers := s.handlers
	s.handlersLock.RUnlock()

	for _, handler := range handlers {
		handler(report)
	}
}

func (s *Service) recordCycle(d time.Duration) {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()

	s.stats.totalCycles++
	s.stats.cycleDurations = append(s.stats.cycleDurations, float64(d)/float64(time.Millisecond))
	if n := len(s.stats.cycleDurations); n > 500 {
		// Manter apenas as últimas 100 amostras
		s.stats.cycleDurations = append(s.stats.cycleDurations[:0], s.stats.cycleDurations[n-100:]...)
	}
}

// monitorStats registra estatísticas de desempenho periodicamente
func (s *Service) monitorStats() {
	interval := s.opts.StatsInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.logPerformanceStats()
		}
	}
}

// CycleStats resume a duração dos ciclos recentes em ms
type CycleStats struct {
	TotalCycles int64   `json:"totalCycles"`
	MeanMs      float64 `json:"meanMs"`
	P95Ms       float64 `json:"p95Ms"`
	MaxMs       float64 `json:"maxMs"`
}

// PerformanceStats calcula as estatísticas dos ciclos recentes
func (s *Service) PerformanceStats() CycleStats {
	s.statsLock.Lock()
	samples := stats.Float64Data(append([]float64(nil), s.stats.cycleDurations...))
	total := s.stats.totalCycles
	s.statsLock.Unlock()

	out := CycleStats{TotalCycles: total}
	if len(samples) == 0 {
		return out
	}
	out.MeanMs, _ = samples.Mean()
	out.P95Ms, _ = samples.Percentile(95)
	out.MaxMs, _ = samples.Max()
	return out
}

// logPerformanceStats registra estatísticas de desempenho
func (s *Service) logPerformanceStats() {
	st := s.PerformanceStats()
	logger.Infof("Estatísticas de desempenho: %d ciclos totais, média %.1fms, p95 %.1fms, máx %.1fms",
		st.TotalCycles, st.MeanMs, st.P95Ms, st.MaxMs)
}
