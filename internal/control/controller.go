// Package control reúne as ações do operador (troca de câmera, cliques do
// goal) e as consultas de estado usadas pela API HTTP e pelo WebSocket.
package control

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/display"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/goal"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/websocket"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Tracker é a parte do serviço de rastreamento consultada pelo controlador
type Tracker interface {
	GetStatus() models.TrackerStatus
	GetLastReport() *models.TrackingReport
}

// Notifier recebe os eventos que interessam aos clientes conectados
type Notifier interface {
	BroadcastCameraSelected(cameraID int)
	BroadcastGoal(info models.GoalInfo)
	BroadcastGoalState(ev models.GoalStateEvent)
}

// GoalPublisher publica o goal no barramento
type GoalPublisher interface {
	WriteGoal(info models.GoalInfo) error
}

// Calibrations recarrega a calibração de uma câmera (implementado por calibration.Store)
type Calibrations interface {
	Reload(id int) error
}

// ErrReloadUnavailable indica que não há store de calibração configurado
var ErrReloadUnavailable = errors.New("recarga de calibração indisponível")

// Controller implementa api.Backend e websocket.CommandHandler
type Controller struct {
	tracker  Tracker
	selector *display.Selector
	frames   *display.FrameStore
	picker   *goal.RemotePicker
	notifier Notifier
	goalPub  GoalPublisher
	calibs   Calibrations

	mu       sync.RWMutex
	goalInfo models.GoalInfo
}

// New cria o controlador. picker pode ser nil quando o goal não é remoto.
func New(tracker Tracker, selector *display.Selector, frames *display.FrameStore, picker *goal.RemotePicker) *Controller {
	return &Controller{
		tracker:  tracker,
		selector: selector,
		frames:   frames,
		picker:   picker,
		goalInfo: models.GoalInfo{States: make(map[int]string)},
	}
}

// SetNotifier configura o destino dos eventos (hub WebSocket)
func (c *Controller) SetNotifier(n Notifier) { c.notifier = n }

// SetGoalPublisher configura a publicação do goal (Redis)
func (c *Controller) SetGoalPublisher(p GoalPublisher) { c.goalPub = p }

// SetCalibrations habilita a recarga de calibração em tempo de execução
func (c *Controller) SetCalibrations(cal Calibrations) { c.calibs = cal }

// ReloadCalibration relê o arquivo de uma câmera. O goal já calculado não
// muda; o rastreamento usa a nova matriz a partir do próximo tick.
func (c *Controller) ReloadCalibration(camera int) error {
	if c.calibs == nil {
		return ErrReloadUnavailable
	}
	if err := c.calibs.Reload(camera); err != nil {
		logger.Warnf("Falha ao recarregar calibração da câmera %d: %v", camera, err)
		return err
	}
	return nil
}

// Status retorna o status do rastreamento
func (c *Controller) Status() models.TrackerStatus {
	return c.tracker.GetStatus()
}

// LastReport retorna o último relatório, se houver
func (c *Controller) LastReport() (models.TrackingReport, bool) {
	r := c.tracker.GetLastReport()
	if r == nil {
		return models.TrackingReport{}, false
	}
	return *r, true
}

// GoalInfo retorna uma cópia do estado do goal
func (c *Controller) GoalInfo() models.GoalInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyGoalInfo(c.goalInfo)
}

func copyGoalInfo(in models.GoalInfo) models.GoalInfo {
	out := in
	out.Cameras = append([]int(nil), in.Cameras...)
	if in.Point != nil {
		p := *in.Point
		out.Point = &p
	}
	if in.States != nil {
		out.States = make(map[int]string, len(in.States))
		for k, v := range in.States {
			out.States[k] = v
		}
	}
	if in.Clicks != nil {
		out.Clicks = make(map[int]models.Vertex, len(in.Clicks))
		for k, v := range in.Clicks {
			out.Clicks[k] = v
		}
	}
	return out
}

// Cameras retorna as câmeras exibíveis e a atual
func (c *Controller) Cameras() ([]int, int) {
	return c.selector.Cameras(), c.selector.Current()
}

// DisplayFrame retorna o último frame anotado
func (c *Controller) DisplayFrame() (display.Frame, bool) {
	return c.frames.Load()
}

// SelectCamera troca a câmera exibida
func (c *Controller) SelectCamera(id int) error {
	if err := c.selector.Select(id); err != nil {
		return err
	}
	c.cameraChanged(id)
	return nil
}

// StepCamera avança (delta > 0) ou volta na lista de câmeras
func (c *Controller) StepCamera(delta int) int {
	var id int
	if delta < 0 {
		id = c.selector.Prev()
	} else {
		id = c.selector.Next()
	}
	c.cameraChanged(id)
	return id
}

func (c *Controller) cameraChanged(id int) {
	logger.Infof("Câmera exibida: %d", id)
	if c.notifier != nil {
		c.notifier.BroadcastCameraSelected(id)
	}
}

// PendingPick retorna a câmera aguardando clique
func (c *Controller) PendingPick() (models.PendingPick, []byte, bool) {
	if c.picker == nil {
		return models.PendingPick{}, nil, false
	}
	return c.picker.Pending()
}

// GoalClick encaminha o clique do operador
func (c *Controller) GoalClick(camera int, x, y float64) error {
	if c.picker == nil {
		return goal.ErrNoPendingPick
	}
	return c.picker.Click(camera, x, y)
}

// GoalSkip pula a câmera pendente
func (c *Controller) GoalSkip(camera int) error {
	if c.picker == nil {
		return goal.ErrNoPendingPick
	}
	return c.picker.Skip(camera)
}

// ObserveGoal acompanha as transições do Acquirer (assinatura de goal.Observer)
func (c *Controller) ObserveGoal(cameraID int, state goal.State) {
	c.mu.Lock()
	c.goalInfo.States[cameraID] = state.String()
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.BroadcastGoalState(models.GoalStateEvent{
			Camera:    cameraID,
			State:     state.String(),
			Timestamp: time.Now(),
		})
	}
}

// SetGoal registra o goal calculado e o anuncia
func (c *Controller) SetGoal(point r3.Vector, cameras []int, clicks map[int]r2.Point) models.GoalInfo {
	c.mu.Lock()
	c.goalInfo.Ready = true
	c.goalInfo.Point = &models.Point3{X: point.X, Y: point.Y, Z: point.Z}
	c.goalInfo.Cameras = append([]int(nil), cameras...)
	sort.Ints(c.goalInfo.Cameras)
	if len(clicks) > 0 {
		c.goalInfo.Clicks = make(map[int]models.Vertex, len(clicks))
		for id, p := range clicks {
			c.goalInfo.Clicks[id] = models.Vertex{X: p.X, Y: p.Y}
		}
	}
	info := copyGoalInfo(c.goalInfo)
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.BroadcastGoal(info)
	}
	if c.goalPub != nil {
		if err := c.goalPub.WriteGoal(info); err != nil {
			logger.Warnf("Goal não publicado no Redis: %v", err)
		}
	}
	return info
}

// HandleCommand implementa websocket.CommandHandler
func (c *Controller) HandleCommand(cmd models.ClientCommand) (models.WebSocketMessage, error) {
	switch cmd.Command {
	case "get_status":
		return websocket.NewStatusMessage(c.Status()), nil

	case "get_goal":
		return websocket.NewMessage(websocket.TypeGoal, c.GoalInfo()), nil

	case "next_camera", "prev_camera":
		delta := 1
		if cmd.Command == "prev_camera" {
			delta = -1
		}
		id := c.StepCamera(delta)
		return result(cmd, map[string]int{"displayCamera": id}), nil

	case "select_camera":
		var p models.CameraParams
		if err := websocket.DecodeParams(cmd.Params, &p); err != nil {
			return models.WebSocketMessage{}, fmt.Errorf("parâmetros inválidos: %w", err)
		}
		if err := c.SelectCamera(p.Camera); err != nil {
			return models.WebSocketMessage{}, err
		}
		return result(cmd, map[string]int{"displayCamera": p.Camera}), nil

	case "goal_click":
		var p models.ClickParams
		if err := websocket.DecodeParams(cmd.Params, &p); err != nil {
			return models.WebSocketMessage{}, fmt.Errorf("parâmetros inválidos: %w", err)
		}
		if err := c.GoalClick(p.Camera, p.X, p.Y); err != nil {
			return models.WebSocketMessage{}, err
		}
		return result(cmd, p), nil

	case "goal_skip":
		var p models.CameraParams
		if err := websocket.DecodeParams(cmd.Params, &p); err != nil {
			return models.WebSocketMessage{}, fmt.Errorf("parâmetros inválidos: %w", err)
		}
		if err := c.GoalSkip(p.Camera); err != nil {
			return models.WebSocketMessage{}, err
		}
		return result(cmd, p), nil

	case "reload_calibration":
		var p models.CameraParams
		if err := websocket.DecodeParams(cmd.Params, &p); err != nil {
			return models.WebSocketMessage{}, fmt.Errorf("parâmetros inválidos: %w", err)
		}
		if err := c.ReloadCalibration(p.Camera); err != nil {
			return models.WebSocketMessage{}, err
		}
		return result(cmd, p), nil
	}
	return models.WebSocketMessage{}, fmt.Errorf("comando desconhecido: %s", cmd.Command)
}

func result(cmd models.ClientCommand, data interface{}) models.WebSocketMessage {
	return websocket.NewMessage(websocket.TypeResult, map[string]interface{}{
		"command": cmd.Command,
		"result":  data,
	})
}

// Snapshot implementa websocket.CommandHandler: estado enviado a clientes novos
func (c *Controller) Snapshot() []models.WebSocketMessage {
	msgs := []models.WebSocketMessage{
		websocket.NewStatusMessage(c.Status()),
		websocket.NewMessage(websocket.TypeGoal, c.GoalInfo()),
	}
	if r, ok := c.LastReport(); ok {
		msgs = append(msgs, websocket.NewReportMessage(r))
	}
	if p, _, ok := c.PendingPick(); ok {
		msgs = append(msgs, websocket.NewMessage(websocket.TypeGoalPending, p))
	}
	return msgs
}
