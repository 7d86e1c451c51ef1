package plc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/utils"
)

type fakeS7 struct {
	connected  bool
	connectErr error
	writeErr   error
	lastErr    error
	writes     [][]byte
	db         int
}

func (f *fakeS7) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}
func (f *fakeS7) Disconnect()       { f.connected = false }
func (f *fakeS7) IsConnected() bool { return f.connected }
func (f *fakeS7) WriteDataBlock(db int, _ int, data []byte) error {
	if f.writeErr != nil {
		f.lastErr = f.writeErr
		return f.writeErr
	}
	f.lastErr = nil
	f.db = db
	f.writes = append(f.writes, data)
	return nil
}
func (f *fakeS7) GetLastError() error { return f.lastErr }

func fixReport(seq uint64, state models.FixState) models.TrackingReport {
	d, b := 5.0, -126.87
	return models.TrackingReport{
		Sequence:   seq,
		State:      state,
		Target:     &models.Point3{X: 3, Y: 4, Z: 0},
		Offset:     &models.Point3{X: -3, Y: -4, Z: 0},
		Distance:   &d,
		BearingDeg: &b,
	}
}

func readReal(buf []byte, off int) float32 { return utils.BytesToFloat32(buf[off : off+4]) }

func TestEncodeReportFix(t *testing.T) {
	buf := EncodeReport(fixReport(7, models.FixOK))
	require.Len(t, buf, ReportSize)

	assert.Equal(t, float32(5), readReal(buf, OffsetDistance))
	assert.InDelta(t, -126.87, readReal(buf, OffsetBearing), 1e-4)
	assert.Equal(t, float32(-3), readReal(buf, OffsetOffsetX))
	assert.Equal(t, float32(-4), readReal(buf, OffsetOffsetY))
	assert.Equal(t, float32(3), readReal(buf, OffsetTargetX))
	assert.Equal(t, float32(4), readReal(buf, OffsetTargetY))
	assert.Equal(t, StateFix, utils.BytesToInt16(buf[OffsetState:]))
	assert.Equal(t, int16(7), utils.BytesToInt16(buf[OffsetSequence:]))
}

func TestEncodeReportStaleAndNoFix(t *testing.T) {
	stale := EncodeReport(fixReport(1, models.FixStale))
	assert.Equal(t, StateStale, utils.BytesToInt16(stale[OffsetState:]))
	assert.Equal(t, float32(5), readReal(stale, OffsetDistance))

	none := EncodeReport(models.TrackingReport{Sequence: 40000, State: models.FixNone})
	assert.Equal(t, StateNoFix, utils.BytesToInt16(none[OffsetState:]))
	assert.Equal(t, float32(0), readReal(none, OffsetDistance))
	assert.Equal(t, int16(40000%32768), utils.BytesToInt16(none[OffsetSequence:]))
}

func TestSendReportSkipsRepeatedSequence(t *testing.T) {
	fake := &fakeS7{}
	s := newPLCService(config.PLCConfig{Enabled: true, DBNumber: 100}, fake)

	s.sendReportToPLC(fixReport(1, models.FixOK))
	s.sendReportToPLC(fixReport(1, models.FixOK))
	s.sendReportToPLC(fixReport(2, models.FixOK))

	assert.Len(t, fake.writes, 2)
	assert.Equal(t, 100, fake.db)
	assert.True(t, fake.connected)
}

func TestSendReportRetriesAfterWriteError(t *testing.T) {
	fake := &fakeS7{connected: true, writeErr: errors.New("timeout")}
	s := newPLCService(config.PLCConfig{Enabled: true, DBNumber: 100}, fake)

	s.sendReportToPLC(fixReport(1, models.FixOK))
	assert.Empty(t, fake.writes)

	fake.writeErr = nil
	s.sendReportToPLC(fixReport(1, models.FixOK))
	assert.Len(t, fake.writes, 1)
}

func TestHealth(t *testing.T) {
	fake := &fakeS7{connected: true, writeErr: errors.New("timeout")}
	s := newPLCService(config.PLCConfig{Enabled: true, DBNumber: 100}, fake)

	h := s.Health()
	assert.True(t, h.Connected)
	assert.Empty(t, h.LastWrite)
	assert.Empty(t, h.LastError)

	s.sendReportToPLC(fixReport(1, models.FixOK))
	h = s.Health()
	assert.Equal(t, 1, h.Failures)
	assert.Equal(t, "timeout", h.LastError)
	assert.Empty(t, h.LastWrite)

	fake.writeErr = nil
	s.sendReportToPLC(fixReport(2, models.FixOK))
	h = s.Health()
	assert.Equal(t, 0, h.Failures)
	assert.Empty(t, h.LastError)
	assert.Equal(t, uint64(2), h.Sequence)
	// formato "2006-01-02 15:04:05.000"
	assert.Len(t, h.LastWrite, 23)
}

func TestStartDisabledAndConnectFailure(t *testing.T) {
	s := newPLCService(config.PLCConfig{Enabled: false}, &fakeS7{})
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())

	s = newPLCService(config.PLCConfig{Enabled: true}, &fakeS7{connectErr: errors.New("recusado")})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())

	fake := &fakeS7{}
	s = newPLCService(config.PLCConfig{Enabled: true}, fake)
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	s.Shutdown()
	assert.False(t, s.IsRunning())
	assert.False(t, fake.connected)
}
