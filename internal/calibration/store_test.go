package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/triangulation"
)

const pattern = "calib_rt%d.json"

func testBundle(tx float64) map[string]interface{} {
	return map[string]interface{}{
		"K":    [][]float64{{800, 0, 320}, {0, 800, 240}, {0, 0, 1}},
		"dist": []float64{0.1, -0.05, 0.001, 0.002, 0},
		"nK":   [][]float64{{780, 0, 318}, {0, 780, 242}, {0, 0, 1}},
		"roi":  []int{4, 6, 630, 470},
		"rt":   [][]float64{{1, 0, 0, tx}, {0, 1, 0, 0}, {0, 0, 1, 10}},
	}
}

func writeBundle(t *testing.T, dir string, id int, b interface{}) {
	t.Helper()
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf(pattern, id)), raw, 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, 1, testBundle(0))
	writeBundle(t, dir, 2, testBundle(-2))

	store, err := Load(dir, pattern, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, store.CameraIDs())

	cal, ok := store.Get(2)
	require.True(t, ok)
	assert.Equal(t, image.Rect(4, 6, 634, 476), cal.ROI)
	assert.Equal(t, []float64{0.1, -0.05, 0.001, 0.002, 0}, cal.Dist)

	p, err := store.ProjectionMatrix(2)
	require.NoError(t, err)
	var want mat.Dense
	want.Mul(cal.NK, cal.RT)
	assert.True(t, mat.EqualApprox(&want, p, 1e-12))

	// memoizado: mesma instância a cada chamada
	p2, _ := store.ProjectionMatrix(2)
	assert.Same(t, p, p2)
}

func TestLoadExcludesBrokenCameras(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, 1, testBundle(0))

	noRT := testBundle(0)
	delete(noRT, "rt")
	writeBundle(t, dir, 2, noRT)

	badK := testBundle(0)
	badK["K"] = [][]float64{{1, 2}, {3, 4}}
	writeBundle(t, dir, 3, badK)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "calib_rt4.json"), []byte("{"), 0o644))
	// camera 5 has no file at all

	store, err := Load(dir, pattern, []int{1, 2, 3, 4, 5})
	require.NotNil(t, store)
	require.Error(t, err)
	assert.Equal(t, []int{1}, store.CameraIDs())

	var loadErr *CalibrationLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, 2, loadErr.CameraID)
	assert.Contains(t, err.Error(), "camera 5")
}

func TestLoadNothing(t *testing.T) {
	store, err := Load(t.TempDir(), pattern, []int{1, 2})
	assert.Nil(t, store)
	assert.True(t, errors.Is(err, ErrInsufficientCameras))
}

func TestLoadHomogeneousRT(t *testing.T) {
	dir := t.TempDir()
	b := testBundle(1)
	b["rt"] = [][]float64{{1, 0, 0, 1}, {0, 1, 0, 0}, {0, 0, 1, 10}, {0, 0, 0, 1}}
	writeBundle(t, dir, 1, b)

	store, err := Load(dir, pattern, []int{1})
	require.NoError(t, err)
	cal, _ := store.Get(1)
	assert.Equal(t, 1.0, cal.RT.At(0, 3))
}

func TestNewCameraCalibrationValidation(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{800, 0, 320, 0, 800, 240, 0, 0, 1})
	rt := mat.NewDense(3, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0})
	roi := image.Rect(0, 0, 640, 480)

	_, err := NewCameraCalibration(1, k, []float64{0, 0, 0}, k, roi, rt)
	assert.Error(t, err, "dist curto")

	_, err = NewCameraCalibration(1, k, []float64{0, 0, 0, 0}, k, image.Rectangle{}, rt)
	assert.Error(t, err, "roi vazia")

	_, err = NewCameraCalibration(1, k, []float64{0, 0, 0, 0}, k, roi, mat.NewDense(3, 3, nil))
	assert.Error(t, err, "rt 3x3")

	cal, err := NewCameraCalibration(1, k, make([]float64, 8), k, roi, rt)
	require.NoError(t, err)
	assert.Len(t, cal.Dist, 8)
}

func TestReloadDoesNotAffectGoal(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, 1, testBundle(0))
	writeBundle(t, dir, 2, testBundle(-2))

	store, err := Load(dir, pattern, []int{1, 2})
	require.NoError(t, err)

	point := r3.Vector{X: 0.4, Y: 0.2, Z: 1}
	observations := func() []triangulation.Observation {
		var obs []triangulation.Observation
		for _, id := range store.CameraIDs() {
			p, err := store.ProjectionMatrix(id)
			require.NoError(t, err)
			px, err := geometry.Project(p, point)
			require.NoError(t, err)
			obs = append(obs, triangulation.Observation{CameraID: id, P: p, Ray: geometry.RayFromPixel(px)})
		}
		return obs
	}

	obs := observations()
	goal, err := triangulation.Triangulate(obs)
	require.NoError(t, err)
	assert.InDelta(t, point.X, goal.X, 1e-6)

	oldP, _ := store.ProjectionMatrix(2)
	writeBundle(t, dir, 2, testBundle(-3))
	require.NoError(t, store.Reload(2))
	newP, _ := store.ProjectionMatrix(2)
	assert.NotSame(t, oldP, newP)
	cal, ok := store.Get(2)
	require.True(t, ok)
	assert.Equal(t, -3.0, cal.RT.At(0, 3))
	var want mat.Dense
	want.Mul(cal.NK, cal.RT)
	assert.True(t, mat.EqualApprox(&want, newP, 1e-9))
	assert.False(t, mat.EqualApprox(oldP, newP, 1e-9))

	// os mesmos pixels agora triangulam em outro ponto; o goal não muda
	moved, err := triangulation.Triangulate([]triangulation.Observation{
		{CameraID: 1, P: obs[0].P, Ray: obs[0].Ray},
		{CameraID: 2, P: newP, Ray: obs[1].Ray},
	})
	require.NoError(t, err)
	assert.NotEqual(t, geometry.Round(goal, 6), geometry.Round(moved, 6))
	assert.InDelta(t, point.X, goal.X, 1e-6)
}

func TestReloadFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, 1, testBundle(0))
	store, err := Load(dir, pattern, []int{1})
	require.NoError(t, err)
	before, _ := store.ProjectionMatrix(1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "calib_rt1.json"), []byte("[]"), 0o644))
	err = store.Reload(1)
	var loadErr *CalibrationLoadError
	assert.True(t, errors.As(err, &loadErr))

	after, _ := store.ProjectionMatrix(1)
	assert.Same(t, before, after)
}

func TestReloadUnknownCamera(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, 1, testBundle(0))
	store, err := Load(dir, pattern, []int{1})
	require.NoError(t, err)

	// o arquivo existe, mas a câmera não fazia parte do carregamento inicial
	writeBundle(t, dir, 2, testBundle(-2))
	assert.ErrorIs(t, store.Reload(2), ErrUnknownCamera)
	assert.Equal(t, []int{1}, store.CameraIDs())

	assert.Error(t, NewStore().Reload(1))
}
