package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	defer SetLogWriters(nil, nil, nil)

	opsf("lost sync after %d bytes", 12)
	diagf("decoded %d", 3)
	tracef("frame ts=%d", 99)

	assert.Contains(t, ops.String(), "[parse] ")
	assert.Contains(t, ops.String(), "lost sync after 12 bytes")
	assert.Contains(t, diag.String(), "decoded 3")
	assert.Contains(t, trace.String(), "frame ts=99")
}

func TestLogStreamsDisabled(t *testing.T) {
	SetLogWriters(nil, nil, nil)
	assert.Nil(t, opsLogger)
	assert.Nil(t, diagLogger)
	assert.Nil(t, traceLogger)

	// Must not panic with no writers installed.
	opsf("dropped %d", 1)
	diagf("dropped %d", 1)
	tracef("dropped %d", 1)
}
