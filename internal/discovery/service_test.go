package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/config"
)

func TestNewDiscoveryServiceDefaults(t *testing.T) {
	s := NewDiscoveryService(config.DiscoveryConfig{}, 8080)
	assert.Equal(t, DefaultServiceType, s.GetServiceType())
	assert.True(t, strings.HasPrefix(s.GetInstanceName(), "GoalTracker-"))
	assert.Equal(t, 8080, s.GetPort())
	assert.False(t, s.IsRunning())

	s = NewDiscoveryService(config.DiscoveryConfig{Instance: "Campo2", Service: "_teste._tcp"}, 9000)
	assert.Equal(t, "_teste._tcp", s.GetServiceType())
	assert.True(t, strings.HasPrefix(s.GetInstanceName(), "Campo2-"))
}

func TestTXTRecordsRoundTrip(t *testing.T) {
	s := NewDiscoveryService(config.DiscoveryConfig{}, 8080)
	s.SetText("cameras", "1,2,3,4")

	records := txtRecords(s.text)
	assert.Equal(t, []string{"cameras=1,2,3,4", "version=" + Version}, records)
	assert.Equal(t, map[string]string{"cameras": "1,2,3,4", "version": Version}, parseTXT(records))
}
