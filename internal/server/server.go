package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/control"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/discovery"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/display"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/frame"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/goal"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/plc"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/redis"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/stream"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/tracker"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/websocket"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Version é a versão anunciada em /info e no mDNS
const Version = discovery.Version

// Server encapsula o servidor HTTP com todos os componentes
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *http.ServeMux

	store        *calibration.Store
	redisClient  *redis.Client
	redisService *redis.Service
	feeds        []*redis.Feed
	rectifier    *frame.Rectifier
	selector     *display.Selector
	frames       *display.FrameStore
	picker       *goal.RemotePicker
	acquirer     *goal.Acquirer
	tracker      *tracker.Service
	controller   *control.Controller

	plcService       *plc.PLCService
	wsHub            *websocket.Hub
	discoveryService *discovery.DiscoveryService
	serverInfo       ServerInfo

	ctx    context.Context
	cancel context.CancelFunc
}

// ServerInfo contém informações sobre o servidor
type ServerInfo struct {
	IP           string
	Port         int
	StartTime    time.Time
	Connections  int
	Version      string
	WebSocketURL string
	APIURL       string
}

// NewServer cria uma nova instância do servidor
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		config: cfg,
		router: http.NewServeMux(),
		serverInfo: ServerInfo{
			StartTime: time.Now(),
			Version:   Version,
			Port:      cfg.Server.Port,
		},
		ctx:    ctx,
		cancel: cancel,
	}

	ip, err := getLocalIP()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("erro ao obter IP local: %w", err)
	}
	server.serverInfo.IP = ip
	server.serverInfo.WebSocketURL = fmt.Sprintf("ws://%s:%d/ws", ip, cfg.Server.Port)
	server.serverInfo.APIURL = fmt.Sprintf("http://%s:%d/api", ip, cfg.Server.Port)

	if err := server.initComponents(); err != nil {
		server.closeFeeds()
		cancel()
		return nil, err
	}

	handler := server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.D(),
		WriteTimeout: cfg.Server.WriteTimeout.D(),
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// initComponents inicializa todos os componentes do servidor
func (s *Server) initComponents() error {
	// Calibração: câmeras que falham são excluídas, nenhuma carregada é fatal
	store, err := calibration.Load(s.config.Calibration.Dir, s.config.Calibration.FilePattern, s.config.Cameras.IDs)
	if store == nil {
		return fmt.Errorf("erro ao carregar calibração: %w", err)
	}
	if err != nil {
		logger.Warnf("%d câmera(s) excluída(s) por erro de calibração", len(multierr.Errors(err)))
	}
	s.store = store
	cameras := s.orderedCameras()

	// Hub WebSocket
	s.wsHub = websocket.NewHub()
	go s.wsHub.Run()

	// Redis: publicação e assinaturas por câmera
	s.redisClient = redis.NewClient(s.config.Redis)
	s.redisService = redis.NewService(s.redisClient)

	frameStreams := make(map[int]*stream.Latest[[]byte], len(cameras))
	detections := make(map[int]tracker.DetectionSource, len(cameras))
	for _, id := range cameras {
		frames, err := s.subscribe(redis.CameraTopic(s.config.Redis.FrameTopic, id))
		if err != nil {
			return err
		}
		dets, err := s.subscribe(redis.CameraTopic(s.config.Redis.DetectionTopic, id))
		if err != nil {
			return err
		}
		frameStreams[id] = stream.NewLatest(frames.C())
		detections[id] = stream.NewLatest(dets.C())
	}

	// Exibição
	displayCamera := s.config.Cameras.DisplayCamera
	if _, ok := store.Get(displayCamera); !ok {
		displayCamera = cameras[0]
	}
	s.selector = display.NewSelector(cameras, displayCamera)
	s.frames = &display.FrameStore{}
	s.rectifier = frame.NewRectifier(store, frameStreams, s.config.Tracker.PollTimeout.D())

	// Rastreamento
	s.tracker = tracker.NewService(tracker.Options{
		TickInterval:  s.config.Tracker.TickInterval.D(),
		PollTimeout:   s.config.Tracker.PollTimeout.D(),
		StaleAfter:    s.config.Tracker.StaleAfter.D(),
		StatsInterval: s.config.Tracker.StatsInterval.D(),
		Annotate:      s.config.Tracker.Annotate,
	}, store, detections, s.selector, s.frames)
	s.tracker.SetRenderer(s.rectifier)
	s.tracker.SetBroadcaster(s.wsHub)
	s.tracker.SetPublisher(s.redisService)

	// Goal
	s.picker = goal.NewRemotePicker(s.wsHub.BroadcastPendingPick)
	s.acquirer = s.newAcquirer()

	s.controller = control.New(s.tracker, s.selector, s.frames, s.picker)
	s.controller.SetNotifier(s.wsHub)
	s.controller.SetGoalPublisher(s.redisService)
	s.controller.SetCalibrations(store)
	s.acquirer.OnTransition(s.controller.ObserveGoal)
	s.wsHub.SetCommandHandler(s.controller)

	// PLC (se habilitado)
	if s.config.PLC.Enabled {
		s.plcService = plc.NewPLCService(s.config.PLC)
		s.tracker.RegisterReportHandler(s.plcService.UpdateReport)
	}

	// Descoberta
	if s.config.Discovery.Enabled {
		s.discoveryService = discovery.NewDiscoveryService(s.config.Discovery, s.config.Server.Port)
		s.discoveryService.SetText("name", "Goal Tracker")
		s.discoveryService.SetText("cameras", joinInts(cameras))
	}

	return nil
}

// orderedCameras mantém a ordem da configuração, só com câmeras calibradas
func (s *Server) orderedCameras() []int {
	out := make([]int, 0, s.store.Len())
	for _, id := range s.config.Cameras.IDs {
		if _, ok := s.store.Get(id); ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Server) subscribe(topic string) (*redis.Feed, error) {
	f, err := s.redisClient.NewFeed(s.ctx, topic, s.config.Redis.BufferSize)
	if err != nil {
		return nil, err
	}
	s.feeds = append(s.feeds, f)
	return f, nil
}

func (s *Server) closeFeeds() {
	for _, f := range s.feeds {
		if o := f.Overflow(); o > 0 {
			logger.Infof("Tópico %s: %d mensagens descartadas por buffer cheio", f.Topic(), o)
		}
		f.Close()
	}
	s.feeds = nil
}

// newAcquirer monta a aquisição conforme goal.mode
func (s *Server) newAcquirer() *goal.Acquirer {
	if s.config.Goal.Mode == config.GoalModeStatic {
		return goal.NewAcquirer(s.store, goal.BlankFrames{}, goal.StaticPicker{Points: s.config.Goal.StaticPoints()})
	}
	frames := goal.WithFrameTimeout(s.rectifier, s.config.Goal.FrameTimeout.D())
	return goal.NewAcquirer(s.store, frames, s.picker)
}

// acquireGoal obtém o goal e inicia o rastreamento. O goal não muda depois.
func (s *Server) acquireGoal(ctx context.Context) error {
	var (
		point   r3.Vector
		cameras []int
		clicks  map[int]r2.Point
	)

	if s.config.Goal.Mode == config.GoalModeFixed {
		f := s.config.Goal.Fixed
		point = r3.Vector{X: f[0], Y: f[1], Z: f[2]}
		logger.Infof("Goal fixo por configuração: (%.3f, %.3f, %.3f)", point.X, point.Y, point.Z)
	} else {
		logger.Infof("Aquisição do goal (%s) nas câmeras %v", s.config.Goal.Mode, s.orderedCameras())
		res, err := s.acquirer.Run(ctx, s.orderedCameras())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("aquisição do goal: %w", err)
		}
		point, cameras, clicks = res.Point, res.Cameras, res.Clicks
	}

	s.controller.SetGoal(point, cameras, clicks)
	return s.tracker.Start(point)
}

// Start inicia o servidor e todos os serviços. Retorna quando o servidor é
// encerrado ou quando a aquisição do goal falha.
func (s *Server) Start() error {
	if s.discoveryService != nil {
		if err := s.discoveryService.Start(); err != nil {
			logger.Warnf("Erro ao iniciar serviço de descoberta: %v", err)
		}
	}

	if s.plcService != nil {
		if err := s.plcService.Start(); err != nil {
			// Não abortar se o PLC falhar
			logger.Errorf("Erro ao iniciar serviço PLC: %v", err)
		}
	}

	s.logServerInfo()

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		logger.Infof("Iniciando servidor HTTP na porta %d", s.config.Server.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("erro ao iniciar servidor HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.acquireGoal(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.D())
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown encerra graciosamente o servidor e todos os serviços
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Iniciando shutdown do servidor")
	s.cancel()

	var errs error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("erro ao encerrar servidor HTTP: %w", err))
	}

	if s.discoveryService != nil {
		s.discoveryService.Stop()
	}
	if s.tracker != nil {
		s.tracker.Stop()
		stats := s.tracker.PerformanceStats()
		logger.Infof("Ciclos executados: %d", stats.TotalCycles)
	}
	if s.plcService != nil {
		s.plcService.Shutdown()
	}
	if s.wsHub != nil {
		s.wsHub.Shutdown()
	}
	s.closeFeeds()
	if s.redisService != nil {
		s.redisService.Shutdown()
	}

	if errs != nil {
		logger.Error("Shutdown com erros", errs)
	} else {
		logger.Info("Shutdown completo")
	}
	return errs
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

	return "localhost", nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// GetServerInfo retorna informações sobre o servidor
func (s *Server) GetServerInfo() ServerInfo {
	info := s.serverInfo
	info.Connections = s.wsHub.ClientCount()
	return info
}

// logServerInfo exibe informações do servidor no log
func (s *Server) logServerInfo() {
	logger.Info("===============================================")
	logger.Info("                 Goal Tracker                  ")
	logger.Info("===============================================")
	logger.Infof("Versão: %s", s.serverInfo.Version)
	logger.Infof("Endereço IP: %s", s.serverInfo.IP)
	logger.Infof("Porta HTTP: %d", s.serverInfo.Port)
	logger.Infof("WebSocket URL: %s", s.serverInfo.WebSocketURL)
	logger.Infof("API URL: %s", s.serverInfo.APIURL)
	logger.Infof("Câmeras: %v (exibindo %d)", s.selector.Cameras(), s.selector.Current())
	logger.Infof("Goal: modo %s", s.config.Goal.Mode)
	if s.discoveryService != nil {
		logger.Infof("mDNS: %s.%s.%s",
			s.discoveryService.GetInstanceName(),
			s.discoveryService.GetServiceType(),
			discovery.ServiceDomain)
	}
	logger.Info("===============================================")
	logger.Info("Servidor pronto para conexões!")
}
