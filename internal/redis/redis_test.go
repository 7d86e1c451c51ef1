package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

func disabledClient() *Client {
	return NewClient(config.RedisConfig{Enabled: false, Prefix: "GoalTracker"})
}

func TestFormatChannel(t *testing.T) {
	t.Parallel()
	c := disabledClient()
	assert.Equal(t, "GoalTracker.Report", c.FormatChannel(ReportChannel))
	assert.Equal(t, "CameraGateway.3.Frame", CameraTopic("CameraGateway.%d.Frame", 3))
	assert.Equal(t, "Tiffany.2.Detection", CameraTopic("Tiffany.%d.Detection", 2))
}

func TestDisabledClient(t *testing.T) {
	t.Parallel()
	c := disabledClient()

	assert.False(t, c.Enabled())
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Connect())
	assert.NoError(t, c.Publish("x", []byte("y")))
	assert.NoError(t, c.Close())

	s := NewService(c)
	assert.False(t, s.IsConnected())
	assert.NoError(t, s.WriteReport(&models.TrackingReport{State: models.FixNone}))
	assert.NoError(t, s.WriteStatus(models.TrackerStatus{Status: "running"}))
}

func TestDisabledFeedIsIdle(t *testing.T) {
	t.Parallel()
	c := disabledClient()

	f, err := c.NewFeed(context.Background(), "CameraGateway.1.Frame", 4)
	require.NoError(t, err)
	assert.Equal(t, "CameraGateway.1.Frame", f.Topic())

	select {
	case <-f.C():
		t.Fatal("feed ocioso não deveria entregar mensagens")
	case <-time.After(10 * time.Millisecond):
	}

	f.Close()
	f.Close()
	_, open := <-f.C()
	assert.False(t, open)
}

func TestFeedDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	f := &Feed{out: make(chan []byte, 2)}
	in := make(chan *redis.Message, 5)
	for _, p := range []string{"a", "b", "c", "d"} {
		in <- &redis.Message{Payload: p}
	}
	close(in)

	f.forward(context.Background(), in)

	assert.Equal(t, uint64(2), f.Overflow())
	assert.Equal(t, []byte("c"), <-f.out)
	assert.Equal(t, []byte("d"), <-f.out)
}

func TestFeedForwardStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := &Feed{out: make(chan []byte, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.forward(ctx, make(chan *redis.Message))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward não terminou após cancelamento")
	}
}
