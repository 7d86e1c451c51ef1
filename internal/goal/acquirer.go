// Package goal obtém o ponto de referência 3D na inicialização: uma câmera por
// vez, o operador clica no ponto sobre o frame retificado ou pula a câmera;
// com pelo menos dois cliques o ponto é triangulado uma única vez.
package goal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/normalize"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/triangulation"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// ErrInsufficientPoints menos de duas câmeras forneceram o ponto
var ErrInsufficientPoints = errors.New("goal: pontos insuficientes (mínimo 2 câmeras)")

// State é o estado de uma câmera durante a aquisição
type State int

const (
	// Pending câmera ainda não visitada
	Pending State = iota
	// AwaitingFrame esperando o primeiro frame da câmera
	AwaitingFrame
	// AwaitingClick frame exibido, esperando o operador
	AwaitingClick
	// PointCaptured operador clicou no ponto
	PointCaptured
	// Skipped operador pulou a câmera (ou ela falhou)
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case AwaitingFrame:
		return "awaiting_frame"
	case AwaitingClick:
		return "awaiting_click"
	case PointCaptured:
		return "point_captured"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Frame é a imagem retificada e recortada mostrada ao operador
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
}

// Selection é a resposta do operador para uma câmera
type Selection struct {
	Skip bool
	X, Y float64
}

// FrameSource entrega o próximo frame retificado de uma câmera, bloqueando até
// haver um ou o contexto terminar
type FrameSource interface {
	NextFrame(ctx context.Context, cameraID int) (Frame, error)
}

// Picker obtém a seleção do operador para um frame
type Picker interface {
	Pick(ctx context.Context, cameraID int, frame Frame) (Selection, error)
}

// Projections fornece P por câmera (implementado por calibration.Store)
type Projections interface {
	ProjectionMatrix(id int) (*mat.Dense, error)
}

// Observer é notificado a cada transição de estado
type Observer func(cameraID int, state State)

// Result é o goal calculado, imutável depois de pronto
type Result struct {
	Point   r3.Vector
	Cameras []int
	Clicks  map[int]r2.Point
}

// Acquirer conduz a máquina de estados da aquisição
type Acquirer struct {
	projections Projections
	frames      FrameSource
	picker      Picker

	mu        sync.RWMutex
	states    map[int]State
	clicks    map[int]r2.Point
	observers []Observer
}

// NewAcquirer cria o condutor da aquisição
func NewAcquirer(projections Projections, frames FrameSource, picker Picker) *Acquirer {
	return &Acquirer{
		projections: projections,
		frames:      frames,
		picker:      picker,
		states:      make(map[int]State),
		clicks:      make(map[int]r2.Point),
	}
}

// OnTransition registra um observador
func (a *Acquirer) OnTransition(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// States retorna uma cópia do estado atual de cada câmera
func (a *Acquirer) States() map[int]State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int]State, len(a.states))
	for id, s := range a.states {
		out[id] = s
	}
	return out
}

func (a *Acquirer) set(cameraID int, s State) {
	a.mu.Lock()
	a.states[cameraID] = s
	observers := append([]Observer(nil), a.observers...)
	a.mu.Unlock()

	logger.Debugf("Goal: câmera %d -> %s", cameraID, s)
	for _, o := range observers {
		o(cameraID, s)
	}
}

// Run visita as câmeras na ordem dada e triangula o goal. Erros de frame ou
// do picker de uma câmera a marcam como pulada; só o cancelamento do contexto
// interrompe a aquisição.
func (a *Acquirer) Run(ctx context.Context, cameraIDs []int) (Result, error) {
	for _, id := range cameraIDs {
		a.set(id, Pending)
	}

	for _, id := range cameraIDs {
		if err := a.visit(ctx, id); err != nil {
			return Result{}, err
		}
	}

	a.mu.RLock()
	clicks := make(map[int]r2.Point, len(a.clicks))
	for id, p := range a.clicks {
		clicks[id] = p
	}
	a.mu.RUnlock()

	if len(clicks) < 2 {
		logger.Errorf("Goal: apenas %d ponto(s) capturado(s); são necessárias ao menos 2 câmeras", len(clicks))
		return Result{}, ErrInsufficientPoints
	}

	obs := make([]triangulation.Observation, 0, len(clicks))
	for id, p := range clicks {
		proj, err := a.projections.ProjectionMatrix(id)
		if err != nil {
			return Result{}, fmt.Errorf("goal: câmera %d: %w", id, err)
		}
		obs = append(obs, triangulation.Observation{
			CameraID: id,
			P:        proj,
			Ray:      normalize.FromRectifiedPixel(p.X, p.Y),
		})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].CameraID < obs[j].CameraID })

	point, err := triangulation.Triangulate(obs)
	if err != nil {
		return Result{}, fmt.Errorf("goal: %w", err)
	}

	res := Result{Point: point, Cameras: triangulation.CameraIDs(obs), Clicks: clicks}
	logger.Infof("Goal calculado com câmeras %v: (%.3f, %.3f, %.3f)", res.Cameras, point.X, point.Y, point.Z)
	return res, nil
}

func (a *Acquirer) visit(ctx context.Context, id int) error {
	a.set(id, AwaitingFrame)
	frame, err := a.frames.NextFrame(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("Goal: sem frame da câmera %d, pulando: %v", id, err)
		a.set(id, Skipped)
		return nil
	}

	a.set(id, AwaitingClick)
	sel, err := a.picker.Pick(ctx, id, frame)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("Goal: seleção da câmera %d falhou, pulando: %v", id, err)
		a.set(id, Skipped)
		return nil
	}
	if sel.Skip {
		logger.Infof("Goal: câmera %d pulada pelo operador", id)
		a.set(id, Skipped)
		return nil
	}

	a.mu.Lock()
	a.clicks[id] = r2.Point{X: sel.X, Y: sel.Y}
	a.mu.Unlock()
	logger.Infof("Goal: ponto (%.1f, %.1f) capturado na câmera %d", sel.X, sel.Y, id)
	a.set(id, PointCaptured)
	return nil
}
