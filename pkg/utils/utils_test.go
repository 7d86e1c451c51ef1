package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFloat32Bytes(t *testing.T) {
	b := Float32ToBytes(5)
	assert.Equal(t, []byte{0x40, 0xa0, 0x00, 0x00}, b)
	assert.Equal(t, float32(5), BytesToFloat32(b))

	assert.Equal(t, float32(-126.87), BytesToFloat32(Float32ToBytes(-126.87)))
}

func TestInt16Bytes(t *testing.T) {
	assert.Equal(t, []byte{0xff, 0xfe}, Int16ToBytes(-2))
	assert.Equal(t, int16(-2), BytesToInt16([]byte{0xff, 0xfe}))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "5", FormatFloat(5.0, 3))
	assert.Equal(t, "-126.87", FormatFloat(-126.8699, 2))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", FormatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 0m 1s", FormatDuration(2*time.Hour+time.Second+300*time.Millisecond))
}
