package kfmt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeveledLogging(t *testing.T) {
	defer func(origLevel Level) {
		outputSink = nil
		logLevel = origLevel
	}(logLevel)

	var buf bytes.Buffer
	outputSink = &buf

	SetLevel(LevelInfo)
	Errorf("pmm", "out of frames")
	Warnf("vmm", "remap of %x", 0x1000)
	Infof("kmain", "booted")
	Debugf("task", "hidden %d", 1)
	Tracef("trap", "hidden")

	assert.Equal(t, "[ERROR][pmm] out of frames\n[ WARN][vmm] remap of 1000\n[ INFO][kmain] booted\n", buf.String())

	buf.Reset()
	SetLevel(LevelTrace)
	Tracef("trap", "scause=%d", 8)
	assert.Equal(t, "[TRACE][trap] scause=8\n", buf.String())
	assert.True(t, Enabled(LevelDebug))
}

func TestParseLevel(t *testing.T) {
	specs := []struct {
		input string
		exp   Level
		ok    bool
	}{
		{"error", LevelError, true},
		{"WARN", LevelWarn, true},
		{"Debug", LevelDebug, true},
		{"trace", LevelTrace, true},
		{"verbose", LevelInfo, false},
	}

	for _, spec := range specs {
		got, ok := ParseLevel(spec.input)
		assert.Equal(t, spec.ok, ok, spec.input)
		assert.Equal(t, spec.exp, got, spec.input)
	}

	assert.Equal(t, "UNKNOWN", Level(42).String())
}
