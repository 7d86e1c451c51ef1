package goal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

var (
	// ErrNoPendingPick nenhuma câmera aguardando seleção
	ErrNoPendingPick = errors.New("nenhuma câmera aguardando seleção")
	// ErrWrongCamera a seleção não é para a câmera pendente
	ErrWrongCamera = errors.New("câmera diferente da pendente")
	// ErrOutOfFrame clique fora dos limites do frame
	ErrOutOfFrame = errors.New("clique fora do frame")
)

type pendingPick struct {
	info  models.PendingPick
	frame Frame
	reply chan Selection
}

// RemotePicker expõe a câmera pendente para a API/WebSocket e espera o
// operador responder com Click ou Skip
type RemotePicker struct {
	mu      sync.Mutex
	pending *pendingPick
	notify  func(models.PendingPick)
}

// NewRemotePicker cria o picker; notify (opcional) é chamado a cada nova pendência
func NewRemotePicker(notify func(models.PendingPick)) *RemotePicker {
	return &RemotePicker{notify: notify}
}

// Pick implementa Picker
func (p *RemotePicker) Pick(ctx context.Context, cameraID int, frame Frame) (Selection, error) {
	pp := &pendingPick{
		info: models.PendingPick{
			RequestID: uuid.New().String(),
			Camera:    cameraID,
			Width:     frame.Width,
			Height:    frame.Height,
		},
		frame: frame,
		reply: make(chan Selection, 1),
	}

	p.mu.Lock()
	p.pending = pp
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.pending == pp {
			p.pending = nil
		}
		p.mu.Unlock()
	}()

	if p.notify != nil {
		p.notify(pp.info)
	}

	select {
	case sel := <-pp.reply:
		return sel, nil
	case <-ctx.Done():
		return Selection{}, ctx.Err()
	}
}

// Pending retorna a câmera aguardando seleção e o JPEG mostrado
func (p *RemotePicker) Pending() (models.PendingPick, []byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return models.PendingPick{}, nil, false
	}
	return p.pending.info, p.pending.frame.JPEG, true
}

// Click responde a pendência com um ponto do frame retificado
func (p *RemotePicker) Click(cameraID int, x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: (%v, %v)", ErrOutOfFrame, x, y)
	}
	return p.answer(cameraID, func(pp *pendingPick) (Selection, error) {
		w, h := float64(pp.info.Width), float64(pp.info.Height)
		if x < 0 || y < 0 || (w > 0 && x >= w) || (h > 0 && y >= h) {
			return Selection{}, fmt.Errorf("%w: (%.1f, %.1f) em %dx%d", ErrOutOfFrame, x, y, pp.info.Width, pp.info.Height)
		}
		return Selection{X: x, Y: y}, nil
	})
}

// Skip responde a pendência pulando a câmera
func (p *RemotePicker) Skip(cameraID int) error {
	return p.answer(cameraID, func(*pendingPick) (Selection, error) {
		return Selection{Skip: true}, nil
	})
}

func (p *RemotePicker) answer(cameraID int, build func(*pendingPick) (Selection, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		return ErrNoPendingPick
	}
	if p.pending.info.Camera != cameraID {
		return fmt.Errorf("%w: pendente %d, recebida %d", ErrWrongCamera, p.pending.info.Camera, cameraID)
	}
	sel, err := build(p.pending)
	if err != nil {
		return err
	}
	select {
	case p.pending.reply <- sel:
	default:
		// já respondida; a segunda resposta é ignorada
	}
	p.pending = nil
	return nil
}

// StaticPicker responde com cliques pré-definidos (execução sem operador)
type StaticPicker struct {
	Points map[int][2]float64
}

// Pick implementa Picker; câmeras sem ponto configurado são puladas
func (s StaticPicker) Pick(_ context.Context, cameraID int, _ Frame) (Selection, error) {
	p, ok := s.Points[cameraID]
	if !ok {
		return Selection{Skip: true}, nil
	}
	return Selection{X: p[0], Y: p[1]}, nil
}
