// Package triangulation recupera um ponto 3D a partir de duas ou mais
// observações calibradas com a transformação linear direta (DLT).
package triangulation

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
)

var (
	// ErrUnderdetermined: menos de duas câmeras observaram o ponto
	ErrUnderdetermined = errors.New("underdetermined: need observations from at least 2 cameras")
	// ErrDegenerateConfiguration: a solução homogênea está no infinito
	ErrDegenerateConfiguration = errors.New("degenerate camera configuration")
)

// degenerateTol limita |w| em relação à norma do vetor solução
const degenerateTol = 1e-12

// Observation é a visão de uma câmera: a matriz de projeção 3x4 e o raio no
// mesmo referencial retificado para onde a matriz projeta.
type Observation struct {
	CameraID int
	P        mat.Matrix
	Ray      geometry.Ray
}

// Triangulate resolve A·[X; λ_1..λ_k] = 0, onde o bloco de linhas i é
// [P_i | 0 .. -u_i .. 0] e cada câmera tem sua própria escala λ_i. A solução é
// o vetor singular à direita do menor valor singular, dividido pela 4ª
// componente. Observações com id de câmera repetido mantêm a primeira.
func Triangulate(obs []Observation) (r3.Vector, error) {
	obs = unique(obs)
	if len(obs) < 2 {
		return r3.Vector{}, errors.Wrapf(ErrUnderdetermined, "got %d", len(obs))
	}

	k := len(obs)
	a := mat.NewDense(3*k, 4+k, nil)
	for i, o := range obs {
		if r, c := o.P.Dims(); r != 3 || c != 4 {
			return r3.Vector{}, errors.Errorf("camera %d: projection matrix must be 3x4, got %dx%d", o.CameraID, r, c)
		}
		if !o.Ray.IsFinite() {
			return r3.Vector{}, errors.Errorf("camera %d: non-finite ray %+v", o.CameraID, o.Ray)
		}
		u := [3]float64{o.Ray.X, o.Ray.Y, 1}
		for row := 0; row < 3; row++ {
			for col := 0; col < 4; col++ {
				a.Set(3*i+row, col, o.P.At(row, col))
			}
			a.Set(3*i+row, 4+i, -u[row])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return r3.Vector{}, errors.New("failed to factorize A")
	}
	var v mat.Dense
	svd.VTo(&v)

	// valores singulares vêm em ordem decrescente; com 3k >= 4+k a
	// última coluna de V corresponde ao menor
	sol := v.ColView(4 + k - 1)
	w := sol.AtVec(3)
	if math.Abs(w) < degenerateTol*mat.Norm(sol, 2) {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateConfiguration, "homogeneous w = %g", w)
	}

	x := r3.Vector{X: sol.AtVec(0) / w, Y: sol.AtVec(1) / w, Z: sol.AtVec(2) / w}
	if !geometry.IsFiniteVector(x) {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateConfiguration, "non-finite solution %v", x)
	}
	return x, nil
}

// Reprojection retorna, por câmera, a distância em pixels entre o raio
// observado e a projeção de x.
func Reprojection(obs []Observation, x r3.Vector) map[int]float64 {
	out := make(map[int]float64, len(obs))
	for _, o := range obs {
		px, err := geometry.Project(o.P, x)
		if err != nil {
			out[o.CameraID] = math.Inf(1)
			continue
		}
		out[o.CameraID] = px.Sub(o.Ray.Pixel()).Norm()
	}
	return out
}

// CameraIDs lista as câmeras das observações em ordem crescente
func CameraIDs(obs []Observation) []int {
	ids := make([]int, 0, len(obs))
	for _, o := range obs {
		ids = append(ids, o.CameraID)
	}
	sort.Ints(ids)
	return ids
}

func unique(obs []Observation) []Observation {
	seen := make(map[int]bool, len(obs))
	out := obs[:0:0]
	for _, o := range obs {
		if seen[o.CameraID] {
			continue
		}
		seen[o.CameraID] = true
		out = append(out, o)
	}
	return out
}
