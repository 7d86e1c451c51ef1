package goal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/geometry"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

type fakeProjections map[int]*mat.Dense

func (f fakeProjections) ProjectionMatrix(id int) (*mat.Dense, error) {
	p, ok := f[id]
	if !ok {
		return nil, errors.New("sem calibração")
	}
	return p, nil
}

type fakeFrames struct {
	missing map[int]bool
}

func (f fakeFrames) NextFrame(ctx context.Context, id int) (Frame, error) {
	if f.missing[id] {
		return Frame{}, errors.New("sem frame")
	}
	return Frame{JPEG: []byte{0xff, 0xd8}, Width: 640, Height: 480}, nil
}

// blockingFrames nunca entrega, como uma câmera que não está publicando
type blockingFrames struct{}

func (blockingFrames) NextFrame(ctx context.Context, _ int) (Frame, error) {
	<-ctx.Done()
	return Frame{}, ctx.Err()
}

func projection(tx, ty float64) *mat.Dense {
	k := mat.NewDense(3, 3, []float64{700, 0, 320, 0, 700, 240, 0, 0, 1})
	rt := mat.NewDense(3, 4, []float64{1, 0, 0, tx, 0, 1, 0, ty, 0, 0, 1, 8})
	var p mat.Dense
	p.Mul(k, rt)
	return &p
}

func rigAndClicks(t *testing.T, point r3.Vector) (fakeProjections, map[int][2]float64) {
	t.Helper()
	proj := fakeProjections{1: projection(0, 0), 2: projection(-1.5, 0), 3: projection(0, -1), 4: projection(1, 1)}
	clicks := make(map[int][2]float64)
	for id, p := range proj {
		px, err := geometry.Project(p, point)
		require.NoError(t, err)
		clicks[id] = [2]float64{px.X, px.Y}
	}
	return proj, clicks
}

func assertNear(t *testing.T, want, got r3.Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6)
	assert.InDelta(t, want.Y, got.Y, 1e-6)
	assert.InDelta(t, want.Z, got.Z, 1e-6)
}

func TestAcquirerStaticPicker(t *testing.T) {
	t.Parallel()

	point := r3.Vector{X: 0.3, Y: -0.2, Z: 0.5}
	proj, clicks := rigAndClicks(t, point)
	delete(clicks, 3) // camera 3 is skipped

	a := NewAcquirer(proj, fakeFrames{}, StaticPicker{Points: clicks})

	var mu sync.Mutex
	var transitions []State
	a.OnTransition(func(id int, s State) {
		if id == 1 {
			mu.Lock()
			transitions = append(transitions, s)
			mu.Unlock()
		}
	})

	res, err := a.Run(context.Background(), []int{1, 2, 3, 4})
	require.NoError(t, err)
	assertNear(t, point, res.Point)
	assert.Equal(t, []int{1, 2, 4}, res.Cameras)

	states := a.States()
	assert.Equal(t, PointCaptured, states[1])
	assert.Equal(t, Skipped, states[3])
	assert.Equal(t, []State{Pending, AwaitingFrame, AwaitingClick, PointCaptured}, transitions)
}

func TestAcquirerInsufficientPoints(t *testing.T) {
	t.Parallel()

	point := r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}
	proj, clicks := rigAndClicks(t, point)

	a := NewAcquirer(proj, fakeFrames{missing: map[int]bool{2: true}}, StaticPicker{Points: map[int][2]float64{1: clicks[1], 2: clicks[2]}})
	_, err := a.Run(context.Background(), []int{1, 2, 3})
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	states := a.States()
	assert.Equal(t, PointCaptured, states[1])
	assert.Equal(t, Skipped, states[2])
	assert.Equal(t, Skipped, states[3])
}

func TestAcquirerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	a := NewAcquirer(fakeProjections{}, blockingFrames{}, StaticPicker{})
	_, err := a.Run(ctx, []int{1, 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, AwaitingFrame, a.States()[1])
}

func TestAcquirerRemotePicker(t *testing.T) {
	t.Parallel()

	point := r3.Vector{X: -0.4, Y: 0.25, Z: 1}
	proj, clicks := rigAndClicks(t, point)

	pendings := make(chan models.PendingPick, 4)
	picker := NewRemotePicker(func(p models.PendingPick) { pendings <- p })
	a := NewAcquirer(proj, fakeFrames{}, picker)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.Run(context.Background(), []int{1, 2, 3})
		done <- outcome{res, err}
	}()

	p := <-pendings
	assert.Equal(t, 1, p.Camera)
	assert.NotEmpty(t, p.RequestID)
	assert.ErrorIs(t, picker.Click(2, 1, 1), ErrWrongCamera)
	info, jpeg, ok := picker.Pending()
	require.True(t, ok)
	assert.Equal(t, 640, info.Width)
	assert.NotEmpty(t, jpeg)
	require.NoError(t, picker.Click(1, clicks[1][0], clicks[1][1]))

	p = <-pendings
	assert.Equal(t, 2, p.Camera)
	require.NoError(t, picker.Skip(2))

	p = <-pendings
	assert.Equal(t, 3, p.Camera)
	assert.ErrorIs(t, picker.Click(3, 700, 10), ErrOutOfFrame)
	require.NoError(t, picker.Click(3, clicks[3][0], clicks[3][1]))

	out := <-done
	require.NoError(t, out.err)
	assertNear(t, point, out.res.Point)
	assert.Equal(t, []int{1, 3}, out.res.Cameras)

	_, _, ok = picker.Pending()
	assert.False(t, ok)
	assert.ErrorIs(t, picker.Skip(1), ErrNoPendingPick)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "awaiting_click", AwaitingClick.String())
	assert.Equal(t, "skipped", Skipped.String())
}

func TestAcquirerBlankFramesStatic(t *testing.T) {
	t.Parallel()

	point := r3.Vector{X: -0.4, Y: 0.2, Z: 1}
	proj, clicks := rigAndClicks(t, point)

	a := NewAcquirer(proj, BlankFrames{}, StaticPicker{Points: clicks})
	res, err := a.Run(context.Background(), []int{1, 2, 3, 4})
	require.NoError(t, err)
	assertNear(t, point, res.Point)
	assert.Equal(t, []int{1, 2, 3, 4}, res.Cameras)
}

func TestFrameTimeoutSkipsCamera(t *testing.T) {
	t.Parallel()

	point := r3.Vector{X: 0, Y: 0, Z: 0}
	proj, clicks := rigAndClicks(t, point)

	frames := WithFrameTimeout(blockingFrames{}, 10*time.Millisecond)
	a := NewAcquirer(proj, frames, StaticPicker{Points: clicks})
	_, err := a.Run(context.Background(), []int{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, Skipped, a.States()[1])
	assert.Equal(t, Skipped, a.States()[2])

	assert.Equal(t, FrameSource(BlankFrames{}), WithFrameTimeout(BlankFrames{}, 0))
}
