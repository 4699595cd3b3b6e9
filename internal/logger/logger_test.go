package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitDebugUsesTextFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(true, buf)

	assert.Equal(t, logrus.DebugLevel, Base().GetLevel())
	Log().Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestInitProductionWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(false, buf)

	Component("ratelimit").WithField("limiter", "login").Info("hello")
	out := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %s", out)
	assert.Contains(t, out, `"component":"ratelimit"`)
	assert.Contains(t, out, `"limiter":"login"`)

	buf.Reset()
	Log().Debug("hidden")
	assert.Empty(t, buf.String())
}
