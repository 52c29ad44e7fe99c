package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() {
		SetLogger(nil)
		SetDebug(false)
	})
	return &lines
}

func TestSetLoggerCaptures(t *testing.T) {
	lines := captureLogs(t)
	Logf("revolution %d", 7)
	assert.Equal(t, []string{"revolution 7"}, *lines)
}

func TestSetLoggerNilIsNoop(t *testing.T) {
	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("dropped %d", 1) })
}

func TestDebugfGated(t *testing.T) {
	lines := captureLogs(t)

	Debugf("hidden")
	assert.Empty(t, *lines)

	SetDebug(true)
	assert.True(t, DebugEnabled())
	Debugf("gap=%.2f", 0.5)
	assert.Equal(t, []string{"[debug] gap=0.50"}, *lines)
}
