package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DEBUG,
		"INFO":  INFO,
		"warn":  WARN,
		"error": ERROR,
		"fatal": FATAL,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verboso")
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	Init()
	defer SetLevel(INFO)

	SetLevel(DEBUG)
	assert.True(t, IsDebugEnabled())
	assert.Equal(t, DEBUG, GetLevel())

	SetLevel(WARN)
	assert.False(t, IsDebugEnabled())
	assert.Equal(t, WARN, GetLevel())
}

func TestFatalPanics(t *testing.T) {
	Init()
	assert.Panics(t, func() { Fatal("falha", nil) })
}

func TestEnableFileLogging(t *testing.T) {
	Init()
	dir := t.TempDir()
	require.NoError(t, EnableFileLogging(dir, "teste"))
	Info("mensagem de teste")
	Sync()
	assert.FileExists(t, dir+"/teste_app.log")
}
