package frame

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/golang/geo/r2"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/goal"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/stream"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Rectifier entrega frames retificados das câmeras a partir dos adaptadores
// de último valor alimentados pelo transporte
type Rectifier struct {
	store       *calibration.Store
	feeds       map[int]*stream.Latest[[]byte]
	pollTimeout time.Duration
}

// NewRectifier cria o retificador
func NewRectifier(store *calibration.Store, feeds map[int]*stream.Latest[[]byte], pollTimeout time.Duration) *Rectifier {
	return &Rectifier{store: store, feeds: feeds, pollTimeout: pollTimeout}
}

// NextFrame implementa goal.FrameSource: espera até chegar um frame
// decodificável da câmera. Frames inválidos são registrados e descartados.
func (r *Rectifier) NextFrame(ctx context.Context, cameraID int) (goal.Frame, error) {
	feed, ok := r.feeds[cameraID]
	if !ok {
		return goal.Frame{}, fmt.Errorf("câmera %d sem assinatura de frames", cameraID)
	}
	cal, ok := r.store.Get(cameraID)
	if !ok {
		return goal.Frame{}, fmt.Errorf("câmera %d sem calibração", cameraID)
	}

	for {
		if err := ctx.Err(); err != nil {
			return goal.Frame{}, err
		}
		if feed.Closed() {
			return goal.Frame{}, fmt.Errorf("assinatura de frames da câmera %d encerrada", cameraID)
		}
		payload, _, ok := feed.GetLatest(r.pollTimeout)
		if !ok {
			continue
		}
		f, err := r.rectify(payload, cal, Markers{})
		if err != nil {
			logger.Warnf("Frame inválido da câmera %d: %v", cameraID, err)
			continue
		}
		return f, nil
	}
}

// Render retifica o frame mais recente da câmera e desenha os marcadores.
// ok é false quando nenhum frame chegou dentro do tempo limite.
func (r *Rectifier) Render(cameraID int, target *geometry.Ray, goalPx *r2.Point) (goal.Frame, bool, error) {
	feed, ok := r.feeds[cameraID]
	if !ok {
		return goal.Frame{}, false, fmt.Errorf("câmera %d sem assinatura de frames", cameraID)
	}
	cal, ok := r.store.Get(cameraID)
	if !ok {
		return goal.Frame{}, false, fmt.Errorf("câmera %d sem calibração", cameraID)
	}
	payload, _, ok := feed.GetLatest(r.pollTimeout)
	if !ok {
		return goal.Frame{}, false, nil
	}

	var m Markers
	if target != nil {
		m.Target = toImagePoint(target.Pixel())
	}
	if goalPx != nil {
		m.Goal = toImagePoint(*goalPx)
	}
	f, err := r.rectify(payload, cal, m)
	if err != nil {
		return goal.Frame{}, false, err
	}
	return f, true, nil
}

func (r *Rectifier) rectify(payload []byte, cal *calibration.CameraCalibration, m Markers) (goal.Frame, error) {
	img, err := Decode(payload)
	defer img.Close()
	if err != nil {
		return goal.Frame{}, err
	}

	rect, err := UndistortAndCrop(img, cal)
	defer rect.Close()
	if err != nil {
		return goal.Frame{}, err
	}

	Annotate(&rect, m)
	jpeg, err := EncodeJPEG(rect)
	if err != nil {
		return goal.Frame{}, err
	}
	return goal.Frame{JPEG: jpeg, Width: rect.Cols(), Height: rect.Rows()}, nil
}

// toImagePoint converte para pixel inteiro; pontos muito fora do frame não são desenhados
func toImagePoint(p r2.Point) *image.Point {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.Abs(p.X) > 1e6 || math.Abs(p.Y) > 1e6 {
		return nil
	}
	return &image.Point{X: int(p.X), Y: int(p.Y)}
}
