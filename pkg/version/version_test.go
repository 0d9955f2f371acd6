package version

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	v := Version()
	assert.Equal(t, "wslbootstrap", v.AppName)
	assert.Equal(t, runtime.Version(), v.GoVersion)
	assert.NotEmpty(t, v.Version)
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	Fprint(&buf)
	assert.Contains(t, buf.String(), "wslbootstrap ")

	buf.Reset()
	FprintFull(&buf)
	assert.Contains(t, buf.String(), "go version:")
}
