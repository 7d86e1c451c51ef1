package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Project projeta um ponto 3D em pixels com uma matriz de projeção 3x4
func Project(p mat.Matrix, x r3.Vector) (r2.Point, error) {
	if r, c := p.Dims(); r != 3 || c != 4 {
		return r2.Point{}, errors.Errorf("projection matrix must be 3x4, got %dx%d", r, c)
	}
	if !IsFiniteVector(x) {
		return r2.Point{}, errors.Wrapf(ErrInvalidGeometry, "point %v", x)
	}

	var img mat.VecDense
	img.MulVec(p, mat.NewVecDense(4, []float64{x.X, x.Y, x.Z, 1}))

	w := img.AtVec(2)
	if math.Abs(w) < 1e-12 {
		return r2.Point{}, errors.Wrapf(ErrInvalidGeometry, "point %v lies on the camera plane", x)
	}
	return r2.Point{X: img.AtVec(0) / w, Y: img.AtVec(1) / w}, nil
}
