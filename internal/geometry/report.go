package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrInvalidGeometry indica pontos não finitos no cálculo do relatório
var ErrInvalidGeometry = errors.New("invalid geometry")

// Report é a relação entre o goal fixo e o alvo atual
type Report struct {
	Goal   r3.Vector
	Target r3.Vector
	// Offset = Goal - Target
	Offset   r3.Vector
	Distance float64
	// BearingDeg é atan2(Offset.Y, Offset.X) em graus, em (-180, 180]
	BearingDeg float64
}

// NewReport calcula deslocamento, distância e direção horizontal do alvo ao goal
func NewReport(goal, target r3.Vector) (Report, error) {
	if !IsFiniteVector(goal) {
		return Report{}, errors.Wrapf(ErrInvalidGeometry, "goal %v", goal)
	}
	if !IsFiniteVector(target) {
		return Report{}, errors.Wrapf(ErrInvalidGeometry, "target %v", target)
	}

	offset := goal.Sub(target)
	return Report{
		Goal:       goal,
		Target:     target,
		Offset:     offset,
		Distance:   offset.Norm(),
		BearingDeg: math.Atan2(offset.Y, offset.X) * 180 / math.Pi,
	}, nil
}

// Round arredonda as coordenadas de v para o número de casas informado
func Round(v r3.Vector, decimals int) r3.Vector {
	scale := math.Pow(10, float64(decimals))
	round := func(f float64) float64 { return math.Round(f*scale) / scale }
	return r3.Vector{X: round(v.X), Y: round(v.Y), Z: round(v.Z)}
}
