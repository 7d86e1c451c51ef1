package normalize

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
)

const (
	// número máximo de iterações do ponto fixo
	maxIterations = 50
	// critério de parada sobre o deslocamento ao quadrado, em coordenadas normalizadas
	convergenceEps = 1e-24
)

// ErrUndistortFailed indica um pixel fora do domínio em que o modelo de lente
// pode ser invertido (fator radial negativo ou infinito)
var ErrUndistortFailed = errors.New("correção de distorção sem solução")

// UndistortPoint converte um pixel da imagem original para o frame retificado
// descrito por nK, invertendo o modelo radial/tangencial por iteração de ponto
// fixo (mesmo esquema do undistortPoints do OpenCV). O resultado não é limitado
// à ROI: pontos fora dela continuam válidos para a triangulação.
// Onde o OpenCV desiste da iteração (fator radial negativo) o pixel é
// rejeitado com ErrUndistortFailed em vez de devolver o ponto distorcido.
func UndistortPoint(px r2.Point, cal *calibration.CameraCalibration) (geometry.Ray, error) {
	var d [8]float64
	copy(d[:], cal.Dist)
	k1, k2, p1, p2, k3, k4, k5, k6 := d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7]

	x0, y0 := normalizePixel(px, cal.K)
	x, y := x0, y0
	for i := 0; i < maxIterations; i++ {
		r2 := x*x + y*y
		kInv := (1 + ((k6*r2+k5)*r2+k4)*r2) / (1 + ((k3*r2+k2)*r2+k1)*r2)
		if kInv < 0 || math.IsNaN(kInv) || math.IsInf(kInv, 0) {
			return geometry.Ray{}, fmt.Errorf("%w: pixel (%.1f, %.1f)", ErrUndistortFailed, px.X, px.Y)
		}
		deltaX := 2*p1*x*y + p2*(r2+2*x*x)
		deltaY := p1*(r2+2*y*y) + 2*p2*x*y

		nx := (x0 - deltaX) * kInv
		ny := (y0 - deltaY) * kInv
		e := (nx-x)*(nx-x) + (ny-y)*(ny-y)
		x, y = nx, ny
		if e < convergenceEps {
			break
		}
	}

	ray := reproject(x, y, cal.NK)
	if !ray.IsFinite() {
		return geometry.Ray{}, fmt.Errorf("%w: pixel (%.1f, %.1f)", ErrUndistortFailed, px.X, px.Y)
	}
	return ray, nil
}

// normalizePixel aplica K⁻¹ (com skew) ao pixel
func normalizePixel(px r2.Point, k mat.Matrix) (float64, float64) {
	fx, fy := k.At(0, 0), k.At(1, 1)
	skew := k.At(0, 1)
	cx, cy := k.At(0, 2), k.At(1, 2)

	y := (px.Y - cy) / fy
	x := (px.X - cx - skew*y) / fx
	return x, y
}

// reproject leva o ponto normalizado para pixels do frame retificado
func reproject(x, y float64, nk mat.Matrix) geometry.Ray {
	var out mat.VecDense
	out.MulVec(nk, mat.NewVecDense(3, []float64{x, y, 1}))
	w := out.AtVec(2)
	return geometry.Ray{X: out.AtVec(0) / w, Y: out.AtVec(1) / w}
}

// FromRectifiedPixel homogeniza um clique feito sobre o frame já retificado.
// Não há segunda correção de distorção.
func FromRectifiedPixel(x, y float64) geometry.Ray {
	return geometry.Ray{X: x, Y: y}
}
