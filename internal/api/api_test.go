package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/display"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/goal"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

type fakeBackend struct {
	report   *models.TrackingReport
	frame    *display.Frame
	selector *display.Selector
	pending  *models.PendingPick
	clickErr error
	clicks   []models.ClickParams
	skipped  []int
	reloaded []int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{selector: display.NewSelector([]int{1, 2, 3}, 1)}
}

func (f *fakeBackend) Status() models.TrackerStatus {
	return models.TrackerStatus{Status: "running", DisplayCamera: f.selector.Current()}
}
func (f *fakeBackend) LastReport() (models.TrackingReport, bool) {
	if f.report == nil {
		return models.TrackingReport{}, false
	}
	return *f.report, true
}
func (f *fakeBackend) GoalInfo() models.GoalInfo {
	return models.GoalInfo{Ready: true, Point: &models.Point3{}}
}
func (f *fakeBackend) Cameras() ([]int, int) { return f.selector.Cameras(), f.selector.Current() }
func (f *fakeBackend) DisplayFrame() (display.Frame, bool) {
	if f.frame == nil {
		return display.Frame{}, false
	}
	return *f.frame, true
}
func (f *fakeBackend) SelectCamera(id int) error { return f.selector.Select(id) }
func (f *fakeBackend) StepCamera(delta int) int {
	if delta < 0 {
		return f.selector.Prev()
	}
	return f.selector.Next()
}
func (f *fakeBackend) PendingPick() (models.PendingPick, []byte, bool) {
	if f.pending == nil {
		return models.PendingPick{}, nil, false
	}
	return *f.pending, []byte{0xff, 0xd8}, true
}
func (f *fakeBackend) GoalClick(camera int, x, y float64) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks = append(f.clicks, models.ClickParams{Camera: camera, X: x, Y: y})
	return nil
}
func (f *fakeBackend) GoalSkip(camera int) error {
	if f.pending == nil {
		return goal.ErrNoPendingPick
	}
	f.skipped = append(f.skipped, camera)
	return nil
}

func (f *fakeBackend) ReloadCalibration(camera int) error {
	switch camera {
	case 9:
		return pkgerrors.Wrapf(calibration.ErrUnknownCamera, "camera %d", camera)
	case 3:
		return &calibration.CalibrationLoadError{CameraID: 3, Path: "calib_rt3.json", Err: fmt.Errorf("arquivo truncado")}
	}
	f.reloaded = append(f.reloaded, camera)
	return nil
}

func serve(t *testing.T, b Backend, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := NewRouter(b, "api/")
	r.Setup()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetStatusAndMethod(t *testing.T) {
	b := newFakeBackend()
	rec := serve(t, b, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode(t, rec)["status"])

	rec = serve(t, b, http.MethodPost, "/api/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetReport(t *testing.T) {
	b := newFakeBackend()
	rec := serve(t, b, http.MethodGet, "/api/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	d := 5.0
	b.report = &models.TrackingReport{Sequence: 3, State: models.FixOK, Distance: &d}
	rec = serve(t, b, http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fix", body["state"])
	assert.EqualValues(t, 5, body["distance"])
}

func TestDisplayCamera(t *testing.T) {
	b := newFakeBackend()

	rec := serve(t, b, http.MethodPost, "/api/display/camera", `{"direction":"next"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["displayCamera"])

	rec = serve(t, b, http.MethodPost, "/api/display/camera", `{"camera":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["displayCamera"])

	rec = serve(t, b, http.MethodPost, "/api/display/camera", `{"direction":"prev"}`)
	assert.EqualValues(t, 2, decode(t, rec)["displayCamera"])

	rec = serve(t, b, http.MethodPost, "/api/display/camera", `{"camera":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, b.selector.Current())

	rec = serve(t, b, http.MethodPost, "/api/display/camera", `{"cam":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, b, http.MethodGet, "/api/cameras", "")
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["displayCamera"])
	assert.Len(t, body["cameras"], 3)
}

func TestDisplayFrame(t *testing.T) {
	b := newFakeBackend()
	rec := serve(t, b, http.MethodGet, "/api/display/frame", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	b.frame = &display.Frame{Camera: 2, JPEG: []byte{0xff, 0xd8, 0xff}, Timestamp: time.Unix(100, 0)}
	rec = serve(t, b, http.MethodGet, "/api/display/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Camera-ID"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, rec.Body.Bytes())
}

func TestGoalPendingAndFrame(t *testing.T) {
	b := newFakeBackend()
	rec := serve(t, b, http.MethodGet, "/api/goal/pending", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(t, b, http.MethodGet, "/api/goal/frame", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	b.pending = &models.PendingPick{RequestID: "r1", Camera: 2, Width: 640, Height: 480}
	rec = serve(t, b, http.MethodGet, "/api/goal/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["camera"])

	rec = serve(t, b, http.MethodGet, "/api/goal/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", rec.Header().Get("X-Request-ID"))
}

func TestGoalClickErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusAccepted},
		{goal.ErrNoPendingPick, http.StatusConflict},
		{fmt.Errorf("câmera 3: %w", goal.ErrWrongCamera), http.StatusConflict},
		{goal.ErrOutOfFrame, http.StatusBadRequest},
	}
	for _, c := range cases {
		b := newFakeBackend()
		b.clickErr = c.err
		rec := serve(t, b, http.MethodPost, "/api/goal/click", `{"camera":2,"x":10,"y":20}`)
		assert.Equal(t, c.code, rec.Code, "%v", c.err)
		if c.err == nil {
			assert.Equal(t, []models.ClickParams{{Camera: 2, X: 10, Y: 20}}, b.clicks)
		}
	}
}

func TestGoalSkip(t *testing.T) {
	b := newFakeBackend()
	rec := serve(t, b, http.MethodPost, "/api/goal/skip", `{"camera":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	b.pending = &models.PendingPick{Camera: 2}
	rec = serve(t, b, http.MethodPost, "/api/goal/skip", `{"camera":2}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int{2}, b.skipped)

	rec = serve(t, b, http.MethodPost, "/api/goal/skip", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalibrationReload(t *testing.T) {
	b := newFakeBackend()

	rec := serve(t, b, http.MethodPost, "/api/calibration/reload", `{"camera":2}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["reloaded"])
	assert.Equal(t, []int{2}, b.reloaded)

	rec = serve(t, b, http.MethodPost, "/api/calibration/reload", `{"camera":9}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, b, http.MethodPost, "/api/calibration/reload", `{"camera":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(t, b, http.MethodPost, "/api/calibration/reload", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, b, http.MethodGet, "/api/calibration/reload", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, []int{2}, b.reloaded)
}

func TestMiddlewareChain(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), CorsMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	order = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
