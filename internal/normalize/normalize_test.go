package normalize

import (
	"errors"
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

func newCalibration(t *testing.T, dist []float64, nk *mat.Dense) *calibration.CameraCalibration {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{800, 0, 320, 0, 810, 240, 0, 0, 1})
	if nk == nil {
		nk = k
	}
	rt := mat.NewDense(3, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 5})
	cal, err := calibration.NewCameraCalibration(1, k, dist, nk, image.Rect(0, 0, 640, 480), rt)
	require.NoError(t, err)
	return cal
}

// distortNormalized aplica o modelo de lente direto a um ponto normalizado
func distortNormalized(x, y float64, d [8]float64) (float64, float64) {
	k1, k2, p1, p2, k3, k4, k5, k6 := d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7]
	r2 := x*x + y*y
	radial := (1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2) / (1 + k4*r2 + k5*r2*r2 + k6*r2*r2*r2)
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

func TestUndistortPointWithoutDistortion(t *testing.T) {
	t.Parallel()
	cal := newCalibration(t, []float64{0, 0, 0, 0, 0}, nil)

	ray, err := UndistortPoint(r2.Point{X: 100, Y: 400}, cal)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, ray.X, 1e-9)
	assert.InDelta(t, 400.0, ray.Y, 1e-9)
}

func TestUndistortPointUsesNewIntrinsics(t *testing.T) {
	t.Parallel()
	nk := mat.NewDense(3, 3, []float64{700, 0, 300, 0, 700, 250, 0, 0, 1})
	cal := newCalibration(t, []float64{0, 0, 0, 0}, nk)

	// (720, 645) em K corresponde a (0.5, 0.5) normalizado
	ray, err := UndistortPoint(r2.Point{X: 720, Y: 645}, cal)
	require.NoError(t, err)
	assert.InDelta(t, 650.0, ray.X, 1e-9)
	assert.InDelta(t, 600.0, ray.Y, 1e-9)
}

func TestUndistortPointInvertsLensModel(t *testing.T) {
	t.Parallel()

	coeffs := [][]float64{
		{-0.2, 0.05, 0.001, -0.0015, 0},
		{0.08, -0.02, 0.0005, 0.0007, 0.001, 0.01, -0.002, 0.0005},
	}
	for _, dist := range coeffs {
		cal := newCalibration(t, dist, nil)
		var d [8]float64
		copy(d[:], dist)

		for _, p := range []r2.Point{{X: 0.1, Y: -0.2}, {X: -0.3, Y: 0.25}, {X: 0.35, Y: 0.3}} {
			xd, yd := distortNormalized(p.X, p.Y, d)
			px := r2.Point{X: 800*xd + 320, Y: 810*yd + 240}

			ray, err := UndistortPoint(px, cal)
			require.NoError(t, err)
			assert.InDelta(t, 800*p.X+320, ray.X, 1e-6)
			assert.InDelta(t, 810*p.Y+240, ray.Y, 1e-6)
		}
	}
}

func TestUndistortPointOutsideLensDomain(t *testing.T) {
	t.Parallel()
	cal := newCalibration(t, []float64{-0.5, 0, 0, 0}, nil)

	tests := []struct {
		name string
		px   r2.Point
	}{
		// (1, 1) normalizado: 1 + k1·r² = 0
		{"fator infinito", r2.Point{X: 1120, Y: 1050}},
		// r² = 4.5: 1 + k1·r² < 0
		{"fator negativo", r2.Point{X: 2020, Y: 240}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UndistortPoint(tt.px, cal)
			assert.ErrorIs(t, err, ErrUndistortFailed)
		})
	}

	// perto do centro o mesmo modelo continua invertível
	ray, err := UndistortPoint(r2.Point{X: 400, Y: 300}, cal)
	require.NoError(t, err)
	assert.True(t, ray.IsFinite())
}

func TestRegionCenter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		vertices []models.Vertex
		want     r2.Point
		ok       bool
	}{
		{"nenhum", nil, r2.Point{}, false},
		{"um vértice", []models.Vertex{{X: 1, Y: 2}}, r2.Point{}, false},
		{"coincidentes", []models.Vertex{{X: 5, Y: 5}, {X: 5, Y: 5}}, r2.Point{}, false},
		{"caixa", []models.Vertex{{X: 10, Y: 20}, {X: 30, Y: 60}, {X: 99, Y: 99}}, r2.Point{X: 20, Y: 40}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RegionCenter(tt.vertices)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromDetection(t *testing.T) {
	t.Parallel()
	cal := newCalibration(t, []float64{0, 0, 0, 0}, nil)

	res := FromDetection(3, []byte(`{"objects":[{"label":"alvo","region":{"vertices":[{"x":100,"y":100},{"x":200,"y":300}]}}]}`), cal)
	require.Equal(t, StatusDetected, res.Status)
	assert.True(t, res.Usable())
	assert.Equal(t, 3, res.CameraID)
	assert.InDelta(t, 150.0, res.Ray.X, 1e-9)
	assert.InDelta(t, 200.0, res.Ray.Y, 1e-9)
	assert.Equal(t, r2.Point{X: 150, Y: 200}, res.Pixel)

	out := res.Outcome()
	assert.Equal(t, "detected", out.Status)
	assert.InDelta(t, 150.0, out.PixelX, 1e-9)
}

func TestFromDetectionNoObservation(t *testing.T) {
	t.Parallel()
	cal := newCalibration(t, []float64{0, 0, 0, 0}, nil)

	for _, payload := range []string{
		`{"objects":[]}`,
		`{}`,
		`{"objects":[{"region":{"vertices":[{"x":1,"y":1}]}}]}`,
		`{"objects":[{"region":{"vertices":[{"x":1,"y":1},{"x":1,"y":1}]}}]}`,
	} {
		res := FromDetection(1, []byte(payload), cal)
		assert.Equal(t, StatusNoDetection, res.Status, payload)
		assert.NoError(t, res.Err, payload)
		assert.False(t, res.Usable())
	}
}

func TestFromDetectionParseError(t *testing.T) {
	t.Parallel()
	cal := newCalibration(t, []float64{0, 0, 0, 0}, nil)

	for _, payload := range []string{"", "not json", `{"objects":"x"}`} {
		res := FromDetection(2, []byte(payload), cal)
		assert.Equal(t, StatusParseError, res.Status, payload)

		var perr *DetectionParseError
		require.True(t, errors.As(res.Err, &perr), payload)
		assert.Equal(t, 2, perr.CameraID)
		assert.NotEmpty(t, res.Outcome().Error)
	}
}

func TestFromDetectionInvalidRay(t *testing.T) {
	t.Parallel()
	cal := newCalibration(t, []float64{-0.5, 0, 0, 0}, nil)

	res := FromDetection(3, []byte(`{"objects":[{"region":{"vertices":[{"x":1110,"y":1040},{"x":1130,"y":1060}]}}]}`), cal)
	assert.Equal(t, StatusInvalidRay, res.Status)
	assert.False(t, res.Usable())
	assert.ErrorIs(t, res.Err, ErrUndistortFailed)
	assert.Equal(t, r2.Point{X: 1120, Y: 1050}, res.Pixel)

	out := res.Outcome()
	assert.Equal(t, "invalid_ray", out.Status)
	assert.NotEmpty(t, out.Error)
}

func TestNoCalibration(t *testing.T) {
	t.Parallel()
	res := NoCalibration(5)
	assert.Equal(t, StatusNoCalibration, res.Status)
	assert.Equal(t, "no_calibration", res.Outcome().Status)
	assert.False(t, res.Usable())
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	res := Timeout(4)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Equal(t, "timeout", res.Outcome().Status)
	assert.False(t, res.Usable())
}

func TestFromRectifiedPixel(t *testing.T) {
	t.Parallel()
	ray := FromRectifiedPixel(12, 34)
	assert.Equal(t, 12.0, ray.X)
	assert.Equal(t, 34.0, ray.Y)
}
