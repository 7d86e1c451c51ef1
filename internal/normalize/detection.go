// Package normalize transforma detecções brutas de cada câmera em raios
// calibrados, com um resultado tipado por câmera.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Status é o resultado da leitura de uma câmera em um tick
type Status int

const (
	// StatusDetected a câmera produziu um raio utilizável
	StatusDetected Status = iota
	// StatusNoDetection mensagem válida, mas sem alvo (caso normal)
	StatusNoDetection
	// StatusParseError mensagem recebida e não decodificável
	StatusParseError
	// StatusTimeout nenhuma mensagem dentro do tempo limite
	StatusTimeout
	// StatusInvalidRay detecção válida cujo pixel não gera um raio finito
	StatusInvalidRay
	// StatusNoCalibration câmera sem calibração carregada
	StatusNoCalibration
)

func (s Status) String() string {
	switch s {
	case StatusDetected:
		return "detected"
	case StatusNoDetection:
		return "no_detection"
	case StatusParseError:
		return "parse_error"
	case StatusTimeout:
		return "timeout"
	case StatusInvalidRay:
		return "invalid_ray"
	case StatusNoCalibration:
		return "no_calibration"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// DetectionParseError indica uma mensagem de detecção malformada
type DetectionParseError struct {
	CameraID int
	Err      error
}

func (e *DetectionParseError) Error() string {
	return fmt.Sprintf("detecção malformada da câmera %d: %v", e.CameraID, e.Err)
}

func (e *DetectionParseError) Unwrap() error { return e.Err }

// Result é o que uma câmera contribui para o tick
type Result struct {
	CameraID int
	Status   Status
	// Ray só é válido com StatusDetected
	Ray geometry.Ray
	// Pixel é o centro da região na imagem original
	Pixel   r2.Point
	Dropped int
	Err     error
}

// Usable indica se o resultado entra no conjunto de observações
func (r Result) Usable() bool {
	return r.Status == StatusDetected
}

// Outcome converte o resultado para o formato do relatório
func (r Result) Outcome() models.CameraOutcome {
	out := models.CameraOutcome{
		Camera:  r.CameraID,
		Status:  r.Status.String(),
		Dropped: r.Dropped,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	if r.Usable() {
		out.PixelX, out.PixelY = r.Ray.X, r.Ray.Y
	}
	return out
}

// Timeout monta o resultado de uma câmera que não respondeu a tempo
func Timeout(cameraID int) Result {
	return Result{CameraID: cameraID, Status: StatusTimeout}
}

// NoCalibration monta o resultado de uma câmera sem calibração
func NoCalibration(cameraID int) Result {
	return Result{CameraID: cameraID, Status: StatusNoCalibration}
}

// Decode decodifica a mensagem do detector
func Decode(payload []byte) (*models.ObjectAnnotations, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("mensagem vazia")
	}
	var msg models.ObjectAnnotations
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RegionCenter retorna o ponto médio entre os dois primeiros vértices.
// Com menos de 2 vértices, ou vértices coincidentes, não há centro.
func RegionCenter(vertices []models.Vertex) (r2.Point, bool) {
	if len(vertices) < 2 {
		return r2.Point{}, false
	}
	a := r2.Point{X: vertices[0].X, Y: vertices[0].Y}
	b := r2.Point{X: vertices[1].X, Y: vertices[1].Y}
	if a == b {
		return r2.Point{}, false
	}
	return a.Add(b).Mul(0.5), true
}

// FromDetection transforma a mensagem de uma câmera no seu resultado do tick.
// Só o primeiro objeto é considerado (um único alvo).
func FromDetection(cameraID int, payload []byte, cal *calibration.CameraCalibration) Result {
	msg, err := Decode(payload)
	if err != nil {
		return parseError(cameraID, err)
	}
	if len(msg.Objects) == 0 {
		return Result{CameraID: cameraID, Status: StatusNoDetection}
	}

	vertices := msg.Objects[0].Region.Vertices
	for i := 0; i < len(vertices) && i < 2; i++ {
		if !finite(vertices[i].X) || !finite(vertices[i].Y) {
			return parseError(cameraID, fmt.Errorf("vértice %d não finito", i))
		}
	}

	center, ok := RegionCenter(vertices)
	if !ok {
		if logger.IsDebugEnabled() {
			logger.Debugf("Câmera %d: região com %d vértices, sem observação", cameraID, len(vertices))
		}
		return Result{CameraID: cameraID, Status: StatusNoDetection}
	}

	ray, err := UndistortPoint(center, cal)
	if err != nil {
		return Result{CameraID: cameraID, Status: StatusInvalidRay, Pixel: center, Err: err}
	}
	return Result{
		CameraID: cameraID,
		Status:   StatusDetected,
		Ray:      ray,
		Pixel:    center,
	}
}

func parseError(cameraID int, err error) Result {
	return Result{
		CameraID: cameraID,
		Status:   StatusParseError,
		Err:      &DetectionParseError{CameraID: cameraID, Err: err},
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
